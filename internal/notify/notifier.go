// Package notify delivers committed events to an external webhook. The
// notifier tails the event log past a durable watermark, so a restart resumes
// where the previous run stopped and no committed event is skipped.
package notify

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

	"github.com/hbeckert/covault/internal/platform/logger"
	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/event"
)

const (
	consumerName = "webhook"

	headerSignature = "X-Covault-Signature"
	headerEventType = "X-Covault-Event"
)

// Notifier POSTs each event to a webhook URL, signing the payload with
// HMAC-SHA256 over the shared secret.
type Notifier struct {
	events     storage.EventStore
	watermarks storage.WatermarkStore
	client     *http.Client
	log        *logger.Logger

	url    string
	secret string

	pollInterval time.Duration
	maxAttempts  int
	batchSize    int
}

// Config holds the notifier settings.
type Config struct {
	URL    string
	Secret string

	// PollInterval defaults to 5s, MaxAttempts to 5, BatchSize to 50.
	PollInterval time.Duration
	MaxAttempts  int
	BatchSize    int
}

// New creates a notifier. The caller runs it with Run.
func New(events storage.EventStore, watermarks storage.WatermarkStore, cfg Config, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Notifier{
		events:       events,
		watermarks:   watermarks,
		client:       &http.Client{Timeout: 5 * time.Second},
		log:          log,
		url:          cfg.URL,
		secret:       cfg.Secret,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		batchSize:    cfg.BatchSize,
	}
}

// Run polls the event log until the context is canceled.
func (n *Notifier) Run(ctx context.Context) {
	n.log.Info("webhook notifier started", "url", n.url, "interval", n.pollInterval)
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		if err := n.Drain(ctx); err != nil {
			n.log.Error("drain events", "error", err)
		}
		select {
		case <-ctx.Done():
			n.log.Info("webhook notifier stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain delivers every event past the watermark, advancing it after each
// successful delivery. Events that exhaust their attempts are skipped so one
// dead endpoint response cannot stall the feed forever.
func (n *Notifier) Drain(ctx context.Context) error {
	for {
		watermark, err := n.watermarks.GetWatermark(ctx, consumerName)
		if err != nil {
			return fmt.Errorf("load watermark: %w", err)
		}
		events, err := n.events.ListEvents(ctx, watermark, n.batchSize)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := n.deliver(ctx, evt); err != nil {
				n.log.Error("event delivery abandoned", "seq", evt.Seq, "type", evt.Type, "error", err)
			}
			if err := n.watermarks.PutWatermark(ctx, consumerName, evt.Seq); err != nil {
				return fmt.Errorf("advance watermark: %w", err)
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, evt event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if lastErr = n.post(ctx, evt, payload); lastErr == nil {
			n.log.Debug("event delivered", "seq", evt.Seq, "type", evt.Type, "attempt", attempt)
			return nil
		}
		n.log.Warn("event delivery failed", "seq", evt.Seq, "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("after %d attempts: %w", n.maxAttempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, evt event.Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "covault-webhook/1.0")
	req.Header.Set(headerEventType, string(evt.Type))
	req.Header.Set(headerSignature, Sign(n.secret, payload))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of the payload. Receivers recompute it
// to verify the sender holds the shared secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
