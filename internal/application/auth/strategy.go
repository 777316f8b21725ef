package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/idempotency"
	"shopify-admin-auth/internal/infrastructure/metrics"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
)

// Strategy names reported in logs and metrics
const (
	StrategyTokenExchange  = "token_exchange"
	StrategyAuthCodeFlow   = "auth_code_flow"
	StrategyMerchantCustom = "merchant_custom"
)

// Strategy obtains a usable session for a request.
// Outcomes that must become an HTTP response are returned as *domain.Response.
type Strategy interface {
	Name() string

	// RespondToOAuthRequests answers the OAuth routes the strategy owns.
	// It returns nil when r is not one of them.
	RespondToOAuthRequests(ctx context.Context, r *http.Request) error

	// Authenticate returns an active session for the identity in sc
	Authenticate(ctx context.Context, r *http.Request, sc *domain.SessionContext) (*domain.Session, error)

	// HandleClientError reacts to an Admin API failure made with session.
	// It returns the error the caller should see, which is err itself when unhandled.
	HandleClientError(ctx context.Context, r *http.Request, session *domain.Session, err error) error
}

// AfterAuthHook runs once a new grant was obtained, e.g. to register webhooks
type AfterAuthHook func(ctx context.Context, session *domain.Session, admin ports.AdminClient) error

// Deps are the collaborators shared by the strategies and the authenticator
type Deps struct {
	Config    domain.AppConfig
	Storage   ports.SessionStorage
	Tokens    ports.TokenClient
	Validator ports.SessionTokenValidator
	AdminAPI  ports.AdminAPI
	Billing   ports.BillingFactory
	AfterAuth AfterAuthHook
	// Hooks de-duplicates after-auth hook runs per session token
	Hooks   *idempotency.Handler[struct{}]
	Bots    *BotPolicy
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (d *Deps) withDefaults() {
	d.Config = d.Config.WithDefaults()
	if d.Hooks == nil {
		d.Hooks = idempotency.NewHandler[struct{}]()
	}
	if d.Bots == nil {
		d.Bots = DefaultBotPolicy()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewStrategy picks the strategy for the app's distribution and feature flags
func NewStrategy(deps Deps) (Strategy, error) {
	deps.withDefaults()
	redirector := NewRedirector(deps.Config)

	switch {
	case deps.Config.Distribution == domain.DistributionShopifyAdmin:
		return NewMerchantCustomStrategy(deps), nil
	case deps.Config.TokenExchange && deps.Config.IsEmbeddedApp:
		if deps.Tokens == nil || deps.Storage == nil {
			return nil, fmt.Errorf("%w: token exchange needs a token client and session storage", domain.ErrConfiguration)
		}
		return NewTokenExchangeStrategy(deps, redirector), nil
	default:
		if deps.Tokens == nil || deps.Storage == nil {
			return nil, fmt.Errorf("%w: authorization code flow needs a token client and session storage", domain.ErrConfiguration)
		}
		return NewAuthCodeFlowStrategy(deps, redirector), nil
	}
}

// hookRunner runs the after-auth hook at most once per key while the key is cached
type hookRunner struct {
	hook     AfterAuthHook
	handler  *idempotency.Handler[struct{}]
	adminAPI ports.AdminAPI
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// run waits for the hook keyed by key. A *domain.Response from the hook is returned
// as is; any other failure becomes a 500.
func (h hookRunner) run(ctx context.Context, key string, session *domain.Session) error {
	if h.hook == nil {
		return nil
	}

	hookCtx := context.WithoutCancel(ctx)
	promise := h.handler.Handle(key, func() (struct{}, error) {
		admin := &sessionAdminClient{api: h.adminAPI, session: session}
		err := h.hook(hookCtx, session, admin)
		h.metrics.AfterAuthHook(err)
		return struct{}{}, err
	})

	_, err := promise.Wait(ctx)
	if err == nil {
		return nil
	}
	if resp, ok := domain.AsResponse(err); ok {
		return resp
	}

	h.logger.Error().
		Err(err).
		Str("shop", session.Shop).
		Msg("After auth hook failed")
	return domain.NewResponse(http.StatusInternalServerError, "after auth hook failed")
}
