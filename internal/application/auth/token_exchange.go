package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
)

// TokenExchangeStrategy trades App Bridge session tokens for access tokens without
// leaving the admin iframe
type TokenExchangeStrategy struct {
	cfg        domain.AppConfig
	storage    ports.SessionStorage
	tokens     ports.TokenClient
	redirector *Redirector
	hooks      hookRunner
	logger     zerolog.Logger
	now        func() time.Time
}

// NewTokenExchangeStrategy creates the token exchange strategy
func NewTokenExchangeStrategy(deps Deps, redirector *Redirector) *TokenExchangeStrategy {
	deps.withDefaults()
	logger := deps.Logger.With().Str("strategy", StrategyTokenExchange).Logger()
	return &TokenExchangeStrategy{
		cfg:        deps.Config,
		storage:    deps.Storage,
		tokens:     deps.Tokens,
		redirector: redirector,
		hooks: hookRunner{
			hook:     deps.AfterAuth,
			handler:  deps.Hooks,
			adminAPI: deps.AdminAPI,
			metrics:  deps.Metrics,
			logger:   logger,
		},
		logger: logger,
		now:    deps.Now,
	}
}

func (s *TokenExchangeStrategy) Name() string { return StrategyTokenExchange }

// RespondToOAuthRequests is a no-op: token exchange owns no OAuth routes
func (s *TokenExchangeStrategy) RespondToOAuthRequests(context.Context, *http.Request) error {
	return nil
}

// Authenticate returns the stored session when it is active. Otherwise it refreshes an
// expired offline token or exchanges the session token for new grants.
func (s *TokenExchangeStrategy) Authenticate(ctx context.Context, r *http.Request, sc *domain.SessionContext) (*domain.Session, error) {
	if sc.IdentityToken == nil || sc.IdentityToken.Raw == "" {
		return nil, s.redirector.InvalidSessionToken(r)
	}

	now := s.now()
	if sc.Session.IsActive(s.cfg.Scopes, now) {
		return sc.Session, nil
	}

	session, err := s.acquire(ctx, sc, now)
	if err != nil {
		if domain.IsInvalidToken(err) || domain.IsInvalidSubjectToken(err) {
			s.logger.Debug().
				Err(err).
				Str("shop", sc.Shop).
				Msg("Session token rejected during token exchange")
			return nil, s.redirector.InvalidSessionToken(r)
		}
		if resp, ok := domain.AsResponse(err); ok {
			return nil, resp
		}

		s.logger.Error().
			Err(err).
			Str("shop", sc.Shop).
			Msg("Token exchange failed")
		return nil, domain.NewResponse(http.StatusInternalServerError, "token exchange failed")
	}

	return session, nil
}

func (s *TokenExchangeStrategy) acquire(ctx context.Context, sc *domain.SessionContext, now time.Time) (*domain.Session, error) {
	existing := sc.Session
	if existing != nil && !existing.IsOnline && existing.AccessToken != "" &&
		existing.IsExpired(now) && existing.IsRefreshable(now) {
		refreshed, err := s.refresh(ctx, existing)
		if err == nil {
			return refreshed, nil
		}
		if domain.HTTPStatus(err) != http.StatusBadRequest {
			return nil, err
		}
		s.logger.Debug().
			Err(err).
			Str("shop", sc.Shop).
			Msg("Refresh token rejected, falling back to token exchange")
	}

	offline, err := s.exchange(ctx, sc, ports.OfflineAccessToken)
	if err != nil {
		return nil, err
	}
	session := offline

	if s.cfg.UseOnlineTokens {
		online, err := s.exchange(ctx, sc, ports.OnlineAccessToken)
		if err != nil {
			return nil, err
		}
		session = online
	}

	if err := s.hooks.run(ctx, sc.IdentityToken.Raw, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *TokenExchangeStrategy) exchange(ctx context.Context, sc *domain.SessionContext, tokenType ports.RequestedTokenType) (*domain.Session, error) {
	session, err := s.tokens.ExchangeToken(ctx, ports.TokenExchangeInput{
		Shop:               sc.Shop,
		SessionToken:       sc.IdentityToken.Raw,
		RequestedTokenType: tokenType,
		Expiring:           s.cfg.ExpiringOfflineAccessTokens,
	})
	if err != nil {
		return nil, err
	}

	if err := s.storage.StoreSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("shop", session.Shop).
		Str("session_id", session.ID).
		Bool("online", session.IsOnline).
		Msg("Exchanged session token for access token")
	return session, nil
}

func (s *TokenExchangeStrategy) refresh(ctx context.Context, existing *domain.Session) (*domain.Session, error) {
	session, err := s.tokens.RefreshToken(ctx, existing.Shop, existing.RefreshToken)
	if err != nil {
		return nil, err
	}
	session.ID = existing.ID
	if session.RefreshToken == "" {
		session.RefreshToken = existing.RefreshToken
		session.RefreshTokenExpires = existing.RefreshTokenExpires
	}

	if err := s.storage.StoreSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("shop", session.Shop).
		Str("session_id", session.ID).
		Msg("Refreshed expired offline access token")
	return session, nil
}

// HandleClientError invalidates the session on a 401 so the next request obtains a new
// token, and answers like an invalid session token
func (s *TokenExchangeStrategy) HandleClientError(ctx context.Context, r *http.Request, session *domain.Session, err error) error {
	if domain.HTTPStatus(err) != http.StatusUnauthorized {
		return err
	}

	s.logger.Debug().
		Str("shop", session.Shop).
		Str("session_id", session.ID).
		Msg("Admin API rejected access token, invalidating session")

	session.Invalidate()
	if storeErr := s.storage.StoreSession(ctx, session); storeErr != nil {
		return errors.Join(err, storeErr)
	}
	return s.redirector.InvalidSessionToken(r)
}
