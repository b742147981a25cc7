// Package webhooks delivers signed solve notifications to caller-supplied URLs.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"fleetopt/internal/metrics"
)

const (
	HeaderSignature = "X-Signature"
	HeaderEventType = "X-Event-Type"
)

// Notifier POSTs JSON events, retrying failed deliveries with exponential backoff.
type Notifier struct {
	HTTP        *http.Client
	MaxAttempts int
	// Backoff returns the wait before the next attempt; nextBackoff when nil.
	Backoff func(attempt int) time.Duration
}

func NewNotifier(maxAttempts int) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Notifier{HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts}
}

// Envelope is the delivered body.
type Envelope struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// Notify delivers one event. It blocks until delivered, attempts are exhausted or ctx ends.
func (n *Notifier) Notify(ctx context.Context, url, secret string, evt Envelope) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode webhook: %w", err)
	}
	backoff := n.Backoff
	if backoff == nil {
		backoff = nextBackoff
	}
	var lastErr error
	for attempt := 0; attempt < n.MaxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		code, latency, err := n.deliver(ctx, url, secret, evt.Type, body)
		status := "delivered"
		if err != nil {
			status = "retry"
			if attempt+1 >= n.MaxAttempts {
				status = "failed"
			}
		}
		metrics.WebhookDeliveries.WithLabelValues(evt.Type, status).Inc()
		metrics.WebhookLatency.WithLabelValues(evt.Type, status).Observe(float64(latency.Milliseconds()))
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("event", evt.Type).Str("url", url).Int("attempt", attempt+1).Int("code", code).Msg("webhook delivery failed")
	}
	return fmt.Errorf("webhook %s after %d attempts: %w", evt.Type, n.MaxAttempts, lastErr)
}

func (n *Notifier) deliver(ctx context.Context, url, secret, eventType string, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, eventType)
	if secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(secret, body))
	}
	start := time.Now()
	resp, err := n.HTTP.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latency, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over body.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a signature produced by SignHMAC; receivers use it on the raw body.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), b)
}
