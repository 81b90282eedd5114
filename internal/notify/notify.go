// Package notify delivers export completion events to an external webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reportexporter/internal/observability"
	"reportexporter/pkg/backoff"
)

// Event describes the outcome of one export, delivered as the webhook body.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ReportID   string    `json:"reportId"`
	ReportName string    `json:"reportName,omitempty"`
	Status     string    `json:"status"`
	Filename   string    `json:"filename,omitempty"`
	Bytes      int       `json:"bytes,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Event types.
const (
	TypeExportSucceeded = "report.export.succeeded"
	TypeExportFailed    = "report.export.failed"
)

// Notifier delivers completion events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	ExportComplete(ctx context.Context, event *Event) error
}

// maxDeliveryAttempts bounds webhook retries.
const maxDeliveryAttempts = 3

// Config holds configuration for a webhook notifier.
type Config struct {
	URL         string
	Secret      string         // HMAC key for payload signing; empty disables signing
	HTTPTimeout time.Duration  // Per-request timeout (default: 10s)
	Backoff     backoff.Policy // Delay between delivery attempts
	Metrics     *observability.Metrics
}

// Webhook posts signed JSON events to a configured endpoint, retrying
// transient failures. A 4xx response is treated as a permanent rejection
// and is not retried.
type Webhook struct {
	url     string
	secret  string
	client  *http.Client
	policy  backoff.Policy
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg Config) *Webhook {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     cfg.URL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: timeout},
		policy:  cfg.Backoff,
		metrics: cfg.Metrics,
		logger:  slog.With("component", "notify"),
	}
}

// ExportComplete delivers the event, assigning it an ID and timestamp if
// the caller left them empty.
func (w *Webhook) ExportComplete(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.ID, err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		err := w.deliver(ctx, payload)
		if err == nil {
			if w.metrics != nil {
				w.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
			}
			return nil
		}
		lastErr = err

		var rejected *rejectedError
		if errors.As(err, &rejected) {
			break
		}
		if attempt < maxDeliveryAttempts {
			w.logger.Warn("Webhook delivery failed, retrying",
				"eventId", event.ID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxDeliveryAttempts
			case <-time.After(w.policy.Delay(attempt)):
			}
		}
	}

	if w.metrics != nil {
		w.metrics.RecordNotifyFailed(ctx)
	}
	return fmt.Errorf("delivering event %s: %w", event.ID, lastErr)
}

// rejectedError marks a 4xx response, which is never retried.
type rejectedError struct {
	status int
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("endpoint rejected event with status %d", e.status)
}

func (w *Webhook) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Signature-256", Sign(w.secret, payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &rejectedError{status: resp.StatusCode}
	default:
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
}

// Sign computes the hex-encoded HMAC-SHA256 signature of the payload in
// the form "sha256=<hex>".
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the given signature matches the payload.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}
