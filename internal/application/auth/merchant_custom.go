package auth

import (
	"context"
	"fmt"
	"net/http"

	"shopify-admin-auth/internal/domain"

	"github.com/rs/zerolog"
)

// MerchantCustomStrategy serves apps created in a single shop's admin. The session is
// built from the configured Admin API access token and no OAuth or token exchange
// ever happens.
type MerchantCustomStrategy struct {
	cfg    domain.AppConfig
	logger zerolog.Logger
}

// NewMerchantCustomStrategy creates the static token strategy
func NewMerchantCustomStrategy(deps Deps) *MerchantCustomStrategy {
	return &MerchantCustomStrategy{
		cfg:    deps.Config,
		logger: deps.Logger.With().Str("strategy", StrategyMerchantCustom).Logger(),
	}
}

func (s *MerchantCustomStrategy) Name() string { return StrategyMerchantCustom }

// RespondToOAuthRequests is a no-op
func (s *MerchantCustomStrategy) RespondToOAuthRequests(context.Context, *http.Request) error {
	return nil
}

// Authenticate synthesizes the offline session of shop
func (s *MerchantCustomStrategy) Authenticate(_ context.Context, _ *http.Request, sc *domain.SessionContext) (*domain.Session, error) {
	if sc.Shop == "" {
		return nil, domain.NewResponse(http.StatusBadRequest, "shop is required")
	}
	if s.cfg.AdminAPIAccessToken == "" {
		return nil, fmt.Errorf("%w: admin api access token is not set", domain.ErrConfiguration)
	}

	return &domain.Session{
		ID:          domain.OfflineSessionID(sc.Shop),
		Shop:        sc.Shop,
		IsOnline:    false,
		Scope:       s.cfg.Scopes.String(),
		AccessToken: s.cfg.AdminAPIAccessToken,
	}, nil
}

// HandleClientError turns a 401 into ErrAccessTokenRevoked: a static token cannot be refreshed
func (s *MerchantCustomStrategy) HandleClientError(_ context.Context, _ *http.Request, session *domain.Session, err error) error {
	if domain.HTTPStatus(err) != http.StatusUnauthorized {
		return err
	}

	s.logger.Error().
		Str("shop", session.Shop).
		Msg("Admin API access token was rejected, it must be replaced in the app configuration")
	return fmt.Errorf("%w: %w", domain.ErrAccessTokenRevoked, err)
}
