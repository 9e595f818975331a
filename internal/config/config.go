// Package config loads watcher configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the watcher.
type Config struct {
	// Solana
	RPCEndpoint  string   // primary RPC HTTP endpoint
	RPCFallbacks []string // fallback endpoints, tried in order
	WSEndpoint   string   // WebSocket endpoint, empty disables live logs
	Program      string   // monitored program address

	// Polling
	PollInterval    time.Duration
	RefreshInterval time.Duration
	SweepInterval   time.Duration
	PageLimit       int
	SeenRetention   time.Duration
	FetchWorkers    int

	// Lifecycle
	AlertThreshold  int
	GraduationRule  string // "volume_band" or "score_threshold"
	VolumeBandLower float64
	VolumeBandUpper float64
	GraduationScore int
	StaleAfter      time.Duration

	// Storage
	StorageBackend string // "memory" or "postgres"
	PostgresDSN    string
	ClickhouseDSN  string // empty disables the timeseries store
	RedisAddr      string // empty keeps the seen-set in memory

	// Alerts
	WebhookURL string

	// HTTP
	MetricsAddr string
}

// Load reads configuration from the environment. A .env file at envPath is
// merged in first when present; a missing file is not an error.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: could not load %s: %v", envPath, err)
		}
	}

	cfg := &Config{
		RPCEndpoint:  getEnvString("SOLANA_RPC_ENDPOINT", ""),
		RPCFallbacks: splitList(getEnvString("SOLANA_RPC_FALLBACKS", "")),
		WSEndpoint:   getEnvString("SOLANA_WS_ENDPOINT", ""),
		Program:      getEnvString("WATCH_PROGRAM", ""),

		PollInterval:    getEnvDuration("POLL_INTERVAL", 10*time.Second),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", time.Minute),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		PageLimit:       getEnvInt("POLL_PAGE_LIMIT", 50),
		SeenRetention:   getEnvDuration("SEEN_RETENTION", 24*time.Hour),
		FetchWorkers:    getEnvInt("FETCH_WORKERS", 8),

		AlertThreshold:  getEnvInt("ALERT_THRESHOLD", 80),
		GraduationRule:  getEnvString("GRADUATION_RULE", "volume_band"),
		VolumeBandLower: getEnvFloat("GRADUATION_VOLUME_LOWER", 50_000),
		VolumeBandUpper: getEnvFloat("GRADUATION_VOLUME_UPPER", 69_000),
		GraduationScore: getEnvInt("GRADUATION_SCORE", 90),
		StaleAfter:      getEnvDuration("STALE_AFTER", 24*time.Hour),

		StorageBackend: getEnvString("STORAGE_BACKEND", "memory"),
		PostgresDSN:    getEnvString("POSTGRES_DSN", ""),
		ClickhouseDSN:  getEnvString("CLICKHOUSE_DSN", ""),
		RedisAddr:      getEnvString("REDIS_ADDR", ""),

		WebhookURL: getEnvString("ALERT_WEBHOOK_URL", ""),

		MetricsAddr: getEnvString("METRICS_ADDR", ":9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("SOLANA_RPC_ENDPOINT is required")
	}
	if c.Program == "" {
		return fmt.Errorf("WATCH_PROGRAM is required")
	}
	switch c.StorageBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.StorageBackend == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
	}
	switch c.GraduationRule {
	case "volume_band", "score_threshold":
	default:
		return fmt.Errorf("unknown GRADUATION_RULE %q", c.GraduationRule)
	}
	if c.VolumeBandLower >= c.VolumeBandUpper {
		return fmt.Errorf("GRADUATION_VOLUME_LOWER must be below GRADUATION_VOLUME_UPPER")
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		return fmt.Errorf("ALERT_THRESHOLD must be within 0..100")
	}
	return nil
}

// Endpoints returns the primary endpoint followed by the fallbacks.
func (c *Config) Endpoints() []string {
	return append([]string{c.RPCEndpoint}, c.RPCFallbacks...)
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
