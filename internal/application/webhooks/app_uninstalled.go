package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"shopify-admin-auth/internal/application/auth"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
)

// AppUninstalledHandler deletes a shop's sessions when the app is uninstalled or the
// shop asks for its data to be erased
type AppUninstalledHandler struct {
	sessions ports.ShopSessionCleaner
	logger   zerolog.Logger
}

// NewAppUninstalledHandler creates the uninstall handler
func NewAppUninstalledHandler(sessions ports.ShopSessionCleaner, logger zerolog.Logger) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// CanHandle returns true for app/uninstalled and shop/redact
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == TopicAppUninstalled || topic == TopicShopRedact
}

// Handle removes every stored session of the event's shop
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *Event) error {
	shop, err := eventShop(event)
	if err != nil {
		return err
	}

	deleted, err := h.sessions.DeleteSessionsByShop(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to delete sessions of %s: %w", shop, err)
	}

	h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", shop).
		Int64("sessions", deleted).
		Msg("Deleted shop sessions")
	return nil
}

// eventShop returns the shop of an event, falling back to the payload when the
// delivery header was missing
func eventShop(event *Event) (string, error) {
	if shop, ok := auth.SanitizeShop(event.Shop); ok {
		return shop, nil
	}

	var payload struct {
		Domain          string `json:"domain"`
		MyshopifyDomain string `json:"myshopify_domain"`
		ShopDomain      string `json:"shop_domain"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return "", fmt.Errorf("failed to parse %s webhook payload: %w", event.Topic, err)
	}
	for _, candidate := range []string{payload.MyshopifyDomain, payload.ShopDomain, payload.Domain} {
		if shop, ok := auth.SanitizeShop(candidate); ok {
			return shop, nil
		}
	}
	return "", fmt.Errorf("%s webhook does not name a valid shop", event.Topic)
}
