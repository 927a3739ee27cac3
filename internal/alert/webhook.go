package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rzbill/warden/internal/intruder"
)

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	// Timeout bounds one delivery in addition to the caller's context.
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for BreakerTimeout.
	MaxFailures    uint32
	BreakerTimeout time.Duration
}

// WebhookPayload is the JSON body posted for each lockout.
type WebhookPayload struct {
	Type      string    `json:"type"`
	Dimension string    `json:"dimension"`
	Key       string    `json:"key"`
	Attempts  uint32    `json:"attempts"`
	AgeMs     int64     `json:"ageMs"`
	At        time.Time `json:"at"`
}

// WebhookNotifier POSTs lockouts to an HTTP endpoint.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	maxFailures := cfg.MaxFailures
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "alert-webhook",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
	}
}

// State exposes the breaker state.
func (n *WebhookNotifier) State() gobreaker.State { return n.breaker.State() }

func (n *WebhookNotifier) NotifyLockout(ctx context.Context, l intruder.Lockout) error {
	body, err := json.Marshal(WebhookPayload{
		Type:      "intruder.lockout",
		Dimension: l.Dimension.String(),
		Key:       l.Key,
		Attempts:  l.Attempts,
		AgeMs:     l.Age.Milliseconds(),
		At:        l.At.UTC(),
	})
	if err != nil {
		return err
	}
	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("alert webhook (%s): %w", n.breaker.Name(), err)
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
