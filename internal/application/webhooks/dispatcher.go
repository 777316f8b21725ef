// Package webhooks receives Shopify webhook deliveries and keeps session storage in
// step with the app's installation state.
package webhooks

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Topics handled by this package
const (
	TopicAppUninstalled       = "app/uninstalled"
	TopicShopRedact           = "shop/redact"
	TopicCustomersRedact      = "customers/redact"
	TopicCustomersDataRequest = "customers/data_request"
)

// Event is a verified webhook delivery
type Event struct {
	Topic     string
	Shop      string
	WebhookID string
	Payload   []byte
}

// Handler processes the topics it accepts
type Handler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *Event) error
}

// Dispatcher routes an event to every registered handler accepting its topic
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher with the given handlers
func NewDispatcher(logger zerolog.Logger, handlers ...Handler) *Dispatcher {
	return &Dispatcher{
		handlers: handlers,
		logger:   logger,
	}
}

// Register adds a handler
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Dispatch runs the matching handlers. It reports false when no handler accepted the
// topic; handler failures are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) (bool, error) {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		if h.CanHandle(event.Topic) {
			handlers = append(handlers, h)
		}
	}
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug().
			Str("topic", event.Topic).
			Str("shop", event.Shop).
			Msg("No handler for webhook topic")
		return false, nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}
