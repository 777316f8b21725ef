package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
)

// AuthCodeFlowStrategy authenticates through the OAuth authorization code grant,
// redirecting the merchant through the consent screen when no active session exists
type AuthCodeFlowStrategy struct {
	cfg        domain.AppConfig
	storage    ports.SessionStorage
	tokens     ports.TokenClient
	redirector *Redirector
	cookies    cookieJar
	hooks      hookRunner
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAuthCodeFlowStrategy creates the authorization code strategy
func NewAuthCodeFlowStrategy(deps Deps, redirector *Redirector) *AuthCodeFlowStrategy {
	deps.withDefaults()
	logger := deps.Logger.With().Str("strategy", StrategyAuthCodeFlow).Logger()
	return &AuthCodeFlowStrategy{
		cfg:        deps.Config,
		storage:    deps.Storage,
		tokens:     deps.Tokens,
		redirector: redirector,
		cookies:    newCookieJar(deps.Config.APISecret),
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

func (s *AuthCodeFlowStrategy) Name() string { return StrategyAuthCodeFlow }

// RespondToOAuthRequests handles the begin and callback routes. For other document
// requests it makes sure the app is installed on the shop.
func (s *AuthCodeFlowStrategy) RespondToOAuthRequests(ctx context.Context, r *http.Request) error {
	path := r.URL.Path
	if path == s.cfg.Auth.Begin || path == s.cfg.Auth.Callback {
		shop, ok := SanitizeShop(r.URL.Query().Get("shop"))
		if !ok {
			return domain.NewResponse(http.StatusBadRequest, "shop param is invalid")
		}
		if path == s.cfg.Auth.Begin {
			return s.begin(r, shop, false)
		}
		return s.callback(ctx, r, shop)
	}

	if HasBearerToken(r) {
		return nil
	}
	return s.ensureInstalledOnShop(ctx, r)
}

// ensureInstalledOnShop sends document requests for shops without an offline session
// into the OAuth flow
func (s *AuthCodeFlowStrategy) ensureInstalledOnShop(ctx context.Context, r *http.Request) error {
	shop, ok := SanitizeShop(r.URL.Query().Get("shop"))
	if !ok {
		// the orchestrator decides how to answer a missing shop
		return nil
	}

	offline, err := s.storage.LoadSession(ctx, domain.OfflineSessionID(shop))
	if err != nil {
		return fmt.Errorf("failed to load offline session: %w", err)
	}
	if offline.IsActive(nil, s.now()) {
		return nil
	}

	s.logger.Debug().
		Str("shop", shop).
		Msg("App is not installed on shop, starting OAuth")
	if IsEmbedded(r) {
		return s.redirector.ExitIframe(r, s.beginPath(shop))
	}
	return s.begin(r, shop, false)
}

// Authenticate returns the session when active and otherwise redirects to OAuth
func (s *AuthCodeFlowStrategy) Authenticate(_ context.Context, r *http.Request, sc *domain.SessionContext) (*domain.Session, error) {
	if sc.Session == nil {
		s.logger.Debug().Str("shop", sc.Shop).Msg("No session found, redirecting to OAuth")
		return nil, s.redirectToAuth(r, sc.Shop)
	}
	if !sc.Session.IsActive(s.cfg.Scopes, s.now()) {
		s.logger.Debug().Str("shop", sc.Shop).Msg("Found a session, but it is not active, redirecting to OAuth")
		return nil, s.redirectToAuth(r, sc.Shop)
	}
	return sc.Session, nil
}

// HandleClientError restarts OAuth when the Admin API rejects the access token
func (s *AuthCodeFlowStrategy) HandleClientError(_ context.Context, r *http.Request, session *domain.Session, err error) error {
	if domain.HTTPStatus(err) != http.StatusUnauthorized {
		return err
	}
	s.logger.Debug().
		Str("shop", session.Shop).
		Msg("Admin API rejected access token, redirecting to OAuth")
	return s.redirectToAuth(r, session.Shop)
}

func (s *AuthCodeFlowStrategy) beginPath(shop string) string {
	return s.cfg.Auth.Begin + "?" + url.Values{"shop": {shop}}.Encode()
}

// redirectToAuth leaves the iframe when needed before starting OAuth
func (s *AuthCodeFlowStrategy) redirectToAuth(r *http.Request, shop string) *domain.Response {
	switch {
	case HasBearerToken(r):
		return s.redirector.AppBridgeHeaders(s.cfg.AppURL+s.beginPath(shop), 0)
	case IsEmbedded(r):
		return s.redirector.ExitIframe(r, s.beginPath(shop))
	default:
		return domain.Redirect(s.beginPath(shop), "redirect to oauth")
	}
}

// begin redirects to the consent screen with a signed state cookie
func (s *AuthCodeFlowStrategy) begin(r *http.Request, shop string, isOnline bool) error {
	state, err := newState(isOnline)
	if err != nil {
		return err
	}

	authURL, err := s.tokens.AuthorizeURL(shop, state, isOnline)
	if err != nil {
		return fmt.Errorf("failed to begin oauth: %w", err)
	}

	cookie, err := s.cookies.cookie(StateCookieName, state, s.cfg.Auth.Callback, s.now().Add(stateCookieTTL))
	if err != nil {
		return fmt.Errorf("failed to sign oauth state: %w", err)
	}
	resp := domain.Redirect(authURL, "begin oauth")
	setCookie(resp.Header, cookie)

	s.logger.Debug().
		Str("shop", shop).
		Bool("online", isOnline).
		Msg("Beginning OAuth")
	return resp
}

// callback completes OAuth: it verifies the request, exchanges the code and stores the session
func (s *AuthCodeFlowStrategy) callback(ctx context.Context, r *http.Request, shop string) error {
	valid, err := s.tokens.VerifyCallback(r.URL)
	if err != nil || !valid {
		s.logger.Warn().
			Err(err).
			Str("shop", shop).
			Msg("OAuth callback failed hmac validation")
		return domain.NewResponse(http.StatusBadRequest, "invalid oauth callback")
	}

	query := r.URL.Query()
	state, ok := s.cookies.read(r, StateCookieName)
	if !ok || state != query.Get("state") {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback state mismatch")
		return domain.NewResponse(http.StatusBadRequest, "invalid oauth state")
	}

	code := query.Get("code")
	if code == "" {
		return domain.NewResponse(http.StatusBadRequest, "missing authorization code")
	}

	// the offline grant is always requested first; the online grant follows when configured
	isOnline := strings.HasPrefix(state, onlineStatePrefix)
	session, err := s.tokens.ExchangeCode(ctx, shop, code, isOnline)
	if err != nil {
		if status := domain.HTTPStatus(err); status >= 400 && status < 500 {
			return domain.NewResponse(http.StatusBadRequest, "authorization code rejected")
		}
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := s.storage.StoreSession(ctx, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	s.logger.Info().
		Str("shop", shop).
		Str("session_id", session.ID).
		Bool("online", session.IsOnline).
		Msg("OAuth completed")

	if s.cfg.UseOnlineTokens && !session.IsOnline {
		return s.begin(r, shop, true)
	}

	if err := s.hooks.run(ctx, "auth_code:"+shop+":"+code, session); err != nil {
		return err
	}

	resp := s.redirectToShopifyOrAppRoot(r, shop)
	if !s.cfg.IsEmbeddedApp {
		expires := s.now().Add(24 * time.Hour)
		if session.Expires != nil {
			expires = *session.Expires
		}
		cookie, err := s.cookies.cookie(SessionCookieName, session.ID, "/", expires)
		if err != nil {
			return fmt.Errorf("failed to sign session cookie: %w", err)
		}
		setCookie(resp.Header, cookie)
	}
	return resp
}

func (s *AuthCodeFlowStrategy) redirectToShopifyOrAppRoot(r *http.Request, shop string) *domain.Response {
	host := r.URL.Query().Get("host")
	if s.cfg.IsEmbeddedApp {
		if embeddedURL, ok := s.redirector.EmbeddedAppURL(host); ok {
			return domain.Redirect(embeddedURL, "redirect to embedded app")
		}
	}
	query := url.Values{"shop": {shop}}
	if host != "" {
		query.Set("host", host)
	}
	return domain.Redirect("/?"+query.Encode(), "redirect to app root")
}

// SessionIDFromCookie returns the session id of a non-embedded app from its signed cookie
func (s *AuthCodeFlowStrategy) SessionIDFromCookie(r *http.Request) (string, bool) {
	return s.cookies.read(r, SessionCookieName)
}

// onlineStatePrefix marks the state of a per-user grant so the callback knows which
// kind of token the code is for
const onlineStatePrefix = "online-"

func newState(isOnline bool) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := hex.EncodeToString(buf)
	if isOnline {
		state = onlineStatePrefix + state
	}
	return state, nil
}
