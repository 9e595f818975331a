// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the watcher.
type Metrics struct {
	// Polling metrics
	PollCycles          *prometheus.CounterVec
	SignaturesFetched   prometheus.Counter
	SignaturesSkipped   *prometheus.CounterVec
	TransactionsFetched prometheus.Counter
	HighWaterSlot       prometheus.Gauge

	// Classification metrics
	EventsClassified *prometheus.CounterVec

	// Lifecycle metrics
	TokensTracked   prometheus.Counter
	TokensGraduated prometheus.Counter
	TokensSwept     prometheus.Counter
	ActiveTokens    prometheus.Gauge

	// Alert metrics
	AlertsDispatched *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency    *prometheus.HistogramVec
	RPCErrors         *prometheus.CounterVec
	EndpointFailovers prometheus.Counter

	// Price feed metrics
	SolPriceUSD prometheus.Gauge

	// Health metrics
	LastSuccessfulPoll    prometheus.Gauge
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchwatch"
	}

	return &Metrics{
		// Polling metrics
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by result",
		}, []string{"result"}),
		SignaturesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "signatures_fetched_total",
			Help:      "Total number of signatures returned by signature polling",
		}),
		SignaturesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "signatures_skipped_total",
			Help:      "Total number of signatures skipped by reason",
		}, []string{"reason"}),
		TransactionsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "transactions_fetched_total",
			Help:      "Total number of full transactions fetched",
		}),
		HighWaterSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "high_water_slot",
			Help:      "Highest committed slot number",
		}),

		// Classification metrics
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "events_total",
			Help:      "Total number of classified events by type",
		}, []string{"type"}),

		// Lifecycle metrics
		TokensTracked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_tracked_total",
			Help:      "Total number of tokens entering tracking",
		}),
		TokensGraduated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_graduated_total",
			Help:      "Total number of tokens graduated",
		}),
		TokensSwept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_swept_total",
			Help:      "Total number of tokens marked stale by the sweeper",
		}),
		ActiveTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "active_tokens",
			Help:      "Current number of active tokens",
		}),

		// Alert metrics
		AlertsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "dispatched_total",
			Help:      "Total number of alerts dispatched by type",
		}, []string{"type"}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Total number of RPC errors by method",
		}, []string{"method"}),
		EndpointFailovers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "endpoint_failovers_total",
			Help:      "Total number of failovers to a fallback RPC endpoint",
		}),

		// Price feed metrics
		SolPriceUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "sol_price_usd",
			Help:      "Last observed SOL/USDT quote",
		}),

		// Health metrics
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last committed poll cycle",
		}),
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of the last metric refresh pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPollCycle records one poll cycle outcome ("committed", "empty" or "error").
func RecordPollCycle(result string) {
	DefaultMetrics.PollCycles.WithLabelValues(result).Inc()
}

// RecordSignaturesFetched adds to the fetched-signature counter.
func RecordSignaturesFetched(n int) {
	DefaultMetrics.SignaturesFetched.Add(float64(n))
}

// RecordSignatureSkipped records a skipped signature by reason.
func RecordSignatureSkipped(reason string) {
	DefaultMetrics.SignaturesSkipped.WithLabelValues(reason).Inc()
}

// RecordTransactionFetched increments the fetched-transaction counter.
func RecordTransactionFetched() {
	DefaultMetrics.TransactionsFetched.Inc()
}

// UpdateHighWaterSlot updates the committed slot gauge.
func UpdateHighWaterSlot(slot int64) {
	DefaultMetrics.HighWaterSlot.Set(float64(slot))
}

// RecordEventClassified increments the classified-event counter for one type.
func RecordEventClassified(eventType string) {
	DefaultMetrics.EventsClassified.WithLabelValues(eventType).Inc()
}

// RecordTokenTracked increments the tracked-token counter.
func RecordTokenTracked() {
	DefaultMetrics.TokensTracked.Inc()
}

// RecordTokenGraduated increments the graduated-token counter.
func RecordTokenGraduated() {
	DefaultMetrics.TokensGraduated.Inc()
}

// RecordTokensSwept adds to the swept-token counter.
func RecordTokensSwept(n int) {
	DefaultMetrics.TokensSwept.Add(float64(n))
}

// UpdateActiveTokens updates the active-token gauge.
func UpdateActiveTokens(n int) {
	DefaultMetrics.ActiveTokens.Set(float64(n))
}

// RecordAlertDispatched increments the dispatched-alert counter for one type.
func RecordAlertDispatched(alertType string) {
	DefaultMetrics.AlertsDispatched.WithLabelValues(alertType).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError increments the RPC error counter for one method.
func RecordRPCError(method string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method).Inc()
}

// RecordEndpointFailover increments the endpoint failover counter.
func RecordEndpointFailover() {
	DefaultMetrics.EndpointFailovers.Inc()
}

// UpdateSolPrice updates the SOL price gauge.
func UpdateSolPrice(price float64) {
	DefaultMetrics.SolPriceUSD.Set(price)
}

// RecordSuccessfulPoll updates the poll health timestamp.
func RecordSuccessfulPoll(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulPoll.Set(float64(unixSeconds))
}

// RecordSuccessfulRefresh updates the refresh health timestamp.
func RecordSuccessfulRefresh(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRefresh.Set(float64(unixSeconds))
}
