package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"launchwatch/internal/domain"
)

// LogNotifier writes alerts to a standard logger. It is the default
// notification surface when no external target is configured.
type LogNotifier struct {
	logger *log.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[alert] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, a *domain.Alert) error {
	n.logger.Printf("%s %s (%s) score=%d", a.Type, a.TokenAddress, a.TokenSymbol, a.Score)
	return nil
}

// WebhookNotifier POSTs the alert as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
