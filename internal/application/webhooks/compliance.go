package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// CustomerPrivacyHandler acknowledges the mandatory customer privacy webhooks.
// Sessions carry no customer data, so there is nothing to export or erase.
type CustomerPrivacyHandler struct {
	logger zerolog.Logger
}

// NewCustomerPrivacyHandler creates the customer privacy handler
func NewCustomerPrivacyHandler(logger zerolog.Logger) *CustomerPrivacyHandler {
	return &CustomerPrivacyHandler{logger: logger}
}

func (h *CustomerPrivacyHandler) CanHandle(topic string) bool {
	return topic == TopicCustomersRedact || topic == TopicCustomersDataRequest
}

func (h *CustomerPrivacyHandler) Handle(_ context.Context, event *Event) error {
	var payload struct {
		ShopDomain string `json:"shop_domain"`
		Customer   struct {
			ID int64 `json:"id"`
		} `json:"customer"`
		OrdersRequested []int64 `json:"orders_requested"`
		OrdersToRedact  []int64 `json:"orders_to_redact"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse %s webhook payload: %w", event.Topic, err)
	}

	h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", payload.ShopDomain).
		Int64("customer_id", payload.Customer.ID).
		Int("orders", len(payload.OrdersRequested)+len(payload.OrdersToRedact)).
		Msg("Customer privacy request acknowledged, no customer data stored")
	return nil
}
