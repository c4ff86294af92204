package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/store"
)

// Webhook request headers.
const (
	headerEvent     = "X-Webhook-Event"
	headerTimestamp = "X-Webhook-Timestamp"
	headerSignature = "X-Webhook-Signature"
)

// webhookEnvelope is the JSON body POSTed to subscriber endpoints.
type webhookEnvelope struct {
	Event        string          `json:"event"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
	OwnerID      *uuid.UUID      `json:"ownerId,omitempty"`
	SubscriberID uuid.UUID       `json:"subscriberId"`
}

// DispatcherConfig holds configuration for webhook delivery.
type DispatcherConfig struct {
	// RequestTimeout bounds each outbound HTTP request.
	RequestTimeout time.Duration

	// MaxAttempts is the total number of delivery attempts per
	// subscriber per event.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts; it doubles on
	// each subsequent attempt.
	RetryBackoff time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    3,
		RetryBackoff:   time.Second,
	}
}

// Dispatcher consumes the bus delivery queue and POSTs each event to every
// matching active webhook subscriber. Deliveries to different subscribers
// run concurrently and fail independently; one dead endpoint never delays
// or suppresses delivery to the others.
type Dispatcher struct {
	bus         *Bus
	subscribers store.WebhookSubscriberStore
	client      *http.Client
	cfg         DispatcherConfig
	logger      *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a webhook dispatcher reading from the given bus.
func NewDispatcher(
	bus *Bus,
	subscribers store.WebhookSubscriberStore,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultDispatcherConfig().RequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultDispatcherConfig().MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultDispatcherConfig().RetryBackoff
	}

	return &Dispatcher{
		bus:         bus,
		subscribers: subscribers,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		cfg:         cfg,
		logger:      logger.With("component", "webhook_dispatcher"),
	}
}

// Start launches the delivery loop. The loop exits when the bus delivery
// queue is closed or the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("webhook dispatcher started")

		for {
			select {
			case <-ctx.Done():
				d.logger.Info("webhook dispatcher stopping", "reason", ctx.Err())
				return
			case event, ok := <-d.bus.DeliveryQueue():
				if !ok {
					d.logger.Info("delivery queue closed, dispatcher exiting")
					return
				}
				d.dispatch(ctx, event)
			}
		}
	}()
}

// Stop cancels in-flight deliveries and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// dispatch fans one event out to all matching subscribers and waits for
// every delivery goroutine to settle before returning.
func (d *Dispatcher) dispatch(ctx context.Context, event *Event) {
	subs, err := d.subscribers.ListActive(ctx)
	if err != nil {
		d.logger.Error("failed to list webhook subscribers, skipping event",
			"event", event.Name,
			"event_id", event.ID,
			"error", err)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.Matches(event.Name) {
			continue
		}
		if event.OwnerID != uuid.Nil && sub.OwnerID != event.OwnerID {
			continue
		}

		wg.Add(1)
		go func(sub *domain.WebhookSubscriber) {
			defer wg.Done()
			d.deliver(ctx, event, sub)
		}(sub)
	}
	wg.Wait()
}

// deliver POSTs one event to one subscriber, retrying transport errors
// and non-2xx responses with exponential backoff until attempts run out.
func (d *Dispatcher) deliver(ctx context.Context, event *Event, sub *domain.WebhookSubscriber) {
	body, err := d.buildBody(event, sub)
	if err != nil {
		d.logger.Error("failed to encode webhook body",
			"event_id", event.ID,
			"subscriber_id", sub.ID,
			"error", err)
		return
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.post(ctx, event, sub, body)
		if err == nil {
			d.logger.Debug("webhook delivered",
				"event", event.Name,
				"subscriber_id", sub.ID,
				"attempt", attempt)
			return
		}

		if attempt == d.cfg.MaxAttempts {
			d.logger.Warn("webhook delivery abandoned",
				"event", event.Name,
				"event_id", event.ID,
				"subscriber_id", sub.ID,
				"attempts", attempt,
				"error", err)
			return
		}

		backoff := d.cfg.RetryBackoff << (attempt - 1)
		d.logger.Debug("webhook delivery failed, retrying",
			"event", event.Name,
			"subscriber_id", sub.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// buildBody serializes the webhook envelope for one subscriber. The body
// bytes are reused across retries so the signature stays stable.
func (d *Dispatcher) buildBody(event *Event, sub *domain.WebhookSubscriber) ([]byte, error) {
	envelope := webhookEnvelope{
		Event:        event.Name,
		Timestamp:    event.Timestamp,
		Data:         event.Payload,
		SubscriberID: sub.ID,
	}
	if event.OwnerID != uuid.Nil {
		ownerID := event.OwnerID
		envelope.OwnerID = &ownerID
	}
	return json.Marshal(envelope)
}

// post performs a single delivery attempt.
func (d *Dispatcher) post(ctx context.Context, event *Event, sub *domain.WebhookSubscriber, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, event.Name)
	req.Header.Set(headerTimestamp, event.Timestamp.Format(time.RFC3339))
	if sub.Secret != "" {
		req.Header.Set(headerSignature, Sign(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 of the raw request body using
// the subscriber secret. Receivers recompute this over the bytes they
// received to authenticate the delivery.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the given signature matches the body
// under the secret. Comparison is constant-time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
