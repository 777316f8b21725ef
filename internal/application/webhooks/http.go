package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"shopify-admin-auth/internal/infrastructure/metrics"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	headerTopic      = "X-Shopify-Topic"
	headerShopDomain = "X-Shopify-Shop-Domain"
	headerWebhookID  = "X-Shopify-Webhook-Id"

	maxPayloadSize = 5 << 20
)

// HTTPHandler verifies webhook deliveries with the app secret and dispatches them
type HTTPHandler struct {
	app        goshopify.App
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHTTPHandler creates the webhook endpoint
func NewHTTPHandler(apiKey, apiSecret string, dispatcher *Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		app:        goshopify.App{ApiKey: apiKey, ApiSecret: apiSecret},
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get(headerTopic)
	if topic == "" {
		h.logger.Warn().Msg("Missing X-Shopify-Topic header")
		http.Error(w, "Missing X-Shopify-Topic header", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	if !h.app.VerifyWebhookRequest(r) {
		h.metrics.Webhook(topic, "rejected")
		h.logger.Warn().
			Str("topic", topic).
			Str("shop", r.Header.Get(headerShopDomain)).
			Msg("Webhook signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read webhook payload")
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	event := &Event{
		Topic:     topic,
		Shop:      r.Header.Get(headerShopDomain),
		WebhookID: r.Header.Get(headerWebhookID),
		Payload:   payload,
	}

	handled, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		h.metrics.Webhook(topic, "error")
		h.logger.Error().
			Err(err).
			Str("topic", topic).
			Str("shop", event.Shop).
			Str("webhook_id", event.WebhookID).
			Msg("Failed to dispatch webhook event")

		// a non-2xx status makes Shopify retry the delivery
		http.Error(w, "Failed to process webhook event", http.StatusInternalServerError)
		return
	}

	result := "processed"
	if !handled {
		result = "ignored"
	}
	h.metrics.Webhook(topic, result)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"received": "true"})
}
