package webhook

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
)

// Target is an external HTTP endpoint that receives forwarded events.
type Target struct {
	URL     string
	Secret  string            // optional HMAC-SHA256 signing key
	Headers map[string]string // extra request headers
}

// ForwardPayload is the JSON body POSTed to a Target.
type ForwardPayload struct {
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
	SentAt    time.Time              `json:"sent_at"`
}

// Forwarder builds handlers that POST events to external URLs.
type Forwarder struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// NewForwarder creates a forwarder with the given per-request timeout and
// attempt count. Retries wait backoff, 2*backoff, ... between attempts.
func NewForwarder(timeout time.Duration, attempts int, backoff time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Forwarder{
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		backoff:  backoff,
	}
}

// Handler returns a Handler that delivers each event to target. The result
// is the final HTTP status code.
func (f *Forwarder) Handler(target Target) Handler {
	return func(ctx context.Context, data map[string]interface{}) (interface{}, error) {
		status, err := f.send(ctx, target, ForwardPayload{
			EventType: EventTypeFromContext(ctx),
			Data:      data,
			SentAt:    time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status_code": status, "url": target.URL}, nil
	}
}

func (f *Forwarder) send(ctx context.Context, target Target, payload ForwardPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}

	var signature string
	if target.Secret != "" {
		signature = "sha256=" + Sign(body, target.Secret)
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("webhook to %s cancelled: %w", target.URL, ctx.Err())
			case <-time.After(time.Duration(attempt) * f.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "GHL-Voice-Governor-Webhook/1.0")
		req.Header.Set("X-Governor-Event", payload.EventType)
		if signature != "" {
			req.Header.Set("X-Governor-Signature", signature)
		}
		for k, v := range target.Headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, target.URL)
	}
	return 0, fmt.Errorf("webhook failed after %d attempts: %w", f.attempts, lastErr)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
