package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/metrics"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
)

// AdminAuthenticator authenticates requests made to the app from Shopify admin:
// document loads inside the admin iframe, fetches from the app frontend, and
// standalone visits for non-embedded apps.
type AdminAuthenticator struct {
	cfg        domain.AppConfig
	storage    ports.SessionStorage
	validator  ports.SessionTokenValidator
	adminAPI   ports.AdminAPI
	billing    ports.BillingFactory
	bots       *BotPolicy
	strategy   Strategy
	redirector *Redirector
	cookies    cookieJar
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewAdminAuthenticator validates the configuration and selects the strategy
func NewAdminAuthenticator(deps Deps) (*AdminAuthenticator, error) {
	deps.withDefaults()

	if err := deps.Config.Validate(deps.Storage != nil); err != nil {
		return nil, err
	}
	if deps.Config.IsEmbeddedApp && deps.Validator == nil {
		return nil, fmt.Errorf("%w: embedded apps need a session token validator", domain.ErrConfiguration)
	}

	strategy, err := NewStrategy(deps)
	if err != nil {
		return nil, err
	}

	deps.Logger.Info().
		Str("strategy", strategy.Name()).
		Str("distribution", string(deps.Config.Distribution)).
		Bool("embedded", deps.Config.IsEmbeddedApp).
		Bool("online_tokens", deps.Config.UseOnlineTokens).
		Msg("Admin authentication configured")

	return &AdminAuthenticator{
		cfg:        deps.Config,
		storage:    deps.Storage,
		validator:  deps.Validator,
		adminAPI:   deps.AdminAPI,
		billing:    deps.Billing,
		bots:       deps.Bots,
		strategy:   strategy,
		redirector: NewRedirector(deps.Config),
		cookies:    newCookieJar(deps.Config.APISecret),
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}, nil
}

// Strategy returns the active authorization strategy
func (a *AdminAuthenticator) Strategy() Strategy {
	return a.strategy
}

// Config returns the effective app configuration
func (a *AdminAuthenticator) Config() domain.AppConfig {
	return a.cfg
}

// Authenticate returns the admin context of r. When the request cannot proceed the error
// is a *domain.Response to send as is; any other error is an unexpected failure.
func (a *AdminAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AdminContext, error) {
	adminCtx, err := a.authenticate(ctx, r)
	if err == nil {
		a.metrics.Authentication(a.strategy.Name(), "success")
		return adminCtx, nil
	}

	if resp, ok := domain.AsResponse(err); ok {
		a.metrics.Authentication(a.strategy.Name(), strconv.Itoa(resp.Status))
		a.logger.Debug().
			Str("path", r.URL.Path).
			Int("status", resp.Status).
			Str("reason", resp.Reason).
			Msg("Authentication responded")
		if a.cfg.IsEmbeddedApp {
			newCORS(a.cfg, r).Apply(resp)
		}
		return nil, resp
	}

	a.metrics.Authentication(a.strategy.Name(), "error")
	a.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("Authentication failed")
	return nil, err
}

func (a *AdminAuthenticator) authenticate(ctx context.Context, r *http.Request) (*AdminContext, error) {
	if a.bots.IsBotRequest(r) {
		a.metrics.BotRejected()
		a.logger.Debug().
			Str("user_agent", r.UserAgent()).
			Msg("Rejecting bot request")
		return nil, domain.NewResponse(http.StatusGone, "bot request")
	}

	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		return nil, preflightResponse(a.cfg, r)
	}

	if a.cfg.IsEmbeddedApp {
		switch r.URL.Path {
		case a.cfg.Auth.PatchSessionToken:
			shop, _ := SanitizeShop(r.URL.Query().Get("shop"))
			return nil, a.redirector.AppBridgePage(shop, "", "")
		case a.cfg.Auth.ExitIframe:
			return nil, a.exitIframe(r)
		}
	}

	if err := a.strategy.RespondToOAuthRequests(ctx, r); err != nil {
		return nil, err
	}

	if !HasBearerToken(r) {
		if resp := a.checkDocumentRequest(r); resp != nil {
			return nil, resp
		}
	}

	sc, err := a.sessionContext(r)
	if err != nil {
		return nil, err
	}

	if sc.SessionID != "" && a.storage != nil && a.strategy.Name() != StrategyMerchantCustom {
		session, err := a.storage.LoadSession(ctx, sc.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		sc.Session = session
		if sc.Shop == "" && session != nil {
			sc.Shop = session.Shop
		}
	}
	if sc.Shop == "" {
		return nil, domain.Redirect(a.cfg.Auth.Login, "missing shop")
	}

	session, err := a.strategy.Authenticate(ctx, r, sc)
	if err != nil {
		return nil, err
	}

	return a.newContext(r, session, sc.IdentityToken), nil
}

// checkDocumentRequest makes sure an embedded document load happens inside the admin and
// carries a session token
func (a *AdminAuthenticator) checkDocumentRequest(r *http.Request) *domain.Response {
	if !a.cfg.IsEmbeddedApp {
		return nil
	}

	query := r.URL.Query()
	rawShop, rawHost := query.Get("shop"), query.Get("host")
	if rawShop == "" || rawHost == "" {
		if IsEmbedded(r) && query.Get(sessionTokenParam) == "" {
			return a.redirector.BouncePage(r)
		}
		return domain.Redirect(a.cfg.Auth.Login, "missing shop or host")
	}

	if _, ok := SanitizeShop(rawShop); !ok {
		return domain.Redirect(a.cfg.Auth.Login, "invalid shop")
	}
	host, ok := SanitizeHost(rawHost)
	if !ok {
		return domain.Redirect(a.cfg.Auth.Login, "invalid host")
	}

	if !IsEmbedded(r) {
		embeddedURL, _ := a.redirector.EmbeddedAppURL(host)
		return domain.Redirect(embeddedURL+r.URL.Path, "load app inside admin")
	}

	if query.Get(sessionTokenParam) == "" {
		return a.redirector.BouncePage(r)
	}
	return nil
}

// sessionContext resolves the shop and session id of the request: from the session token
// for embedded apps, from the shop parameter and session cookie otherwise
func (a *AdminAuthenticator) sessionContext(r *http.Request) (*domain.SessionContext, error) {
	if !a.cfg.IsEmbeddedApp {
		shop, _ := SanitizeShop(r.URL.Query().Get("shop"))
		sessionID, _ := a.cookies.read(r, SessionCookieName)
		if sessionID == "" && shop != "" && !a.cfg.UseOnlineTokens {
			sessionID = domain.OfflineSessionID(shop)
		}
		return &domain.SessionContext{Shop: shop, SessionID: sessionID}, nil
	}

	token, ok := BearerToken(r)
	if !ok {
		token = r.URL.Query().Get(sessionTokenParam)
	}
	if token == "" {
		return nil, a.redirector.InvalidSessionToken(r)
	}

	identity, err := a.validator.Validate(token, ports.ValidateOptions{CheckAudience: a.cfg.CheckAudience})
	if err != nil {
		a.logger.Debug().
			Err(err).
			Str("path", r.URL.Path).
			Msg("Session token is invalid")
		return nil, a.redirector.InvalidSessionToken(r)
	}

	shop := identity.Shop()
	sessionID := domain.SessionID(shop, a.cfg.UseOnlineTokens, identity.Subject)
	return &domain.SessionContext{
		Shop:          shop,
		SessionID:     sessionID,
		IdentityToken: identity,
	}, nil
}

func (a *AdminAuthenticator) newContext(r *http.Request, session *domain.Session, identity *domain.IdentityToken) *AdminContext {
	admin := &sessionAdminClient{
		api:      a.adminAPI,
		session:  session,
		strategy: a.strategy,
		request:  r,
	}

	adminCtx := &AdminContext{
		Session: session,
		Admin:   admin,
		CORS:    newCORS(a.cfg, r),
	}
	if a.billing != nil {
		adminCtx.Billing = a.billing(session, admin)
	}

	if a.cfg.IsEmbeddedApp {
		adminCtx.SessionToken = identity
		adminCtx.Redirect = func(target string, opts RedirectOptions) *domain.Response {
			return a.redirector.Decide(r, session.Shop, target, opts)
		}
	}
	return adminCtx
}

func (a *AdminAuthenticator) exitIframe(r *http.Request) *domain.Response {
	destination, ok := a.redirector.ValidateExitDestination(r.URL.Query().Get(exitIframeParam))
	if !ok {
		return domain.NewResponse(http.StatusBadRequest, "invalid exit iframe destination")
	}
	shop, _ := SanitizeShop(r.URL.Query().Get("shop"))
	return a.redirector.AppBridgePage(shop, destination, TargetTop)
}

// Login answers the login route: a valid shop starts installation, otherwise a shop form
// is rendered
func (a *AdminAuthenticator) Login(r *http.Request) *domain.Response {
	raw := r.URL.Query().Get("shop")
	if raw == "" && r.Method == http.MethodPost {
		raw = r.PostFormValue("shop")
	}

	shop, ok := SanitizeShop(raw)
	if !ok {
		resp := domain.HTML(loginForm(raw != ""), "login form")
		if raw != "" {
			resp.Status = http.StatusBadRequest
		}
		return resp
	}

	if a.cfg.IsEmbeddedApp && a.strategy.Name() == StrategyTokenExchange {
		installURL := fmt.Sprintf("https://%s/store/%s/oauth/install?client_id=%s", adminHost, ShopName(shop), a.cfg.APIKey)
		return domain.Redirect(installURL, "install from admin")
	}
	return domain.Redirect(a.cfg.Auth.Begin+"?shop="+shop, "begin oauth")
}

func loginForm(invalid bool) string {
	message := ""
	if invalid {
		message = "<p>Enter a valid shop domain, e.g. my-shop.myshopify.com</p>"
	}
	return `<form method="post"><label>Shop domain <input name="shop" type="text"></label>` +
		message + `<button type="submit">Log in</button></form>`
}
