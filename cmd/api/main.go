package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopify-admin-auth/internal/application/auth"
	"shopify-admin-auth/internal/application/webhooks"
	"shopify-admin-auth/internal/config"
	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/idempotency"
	"shopify-admin-auth/internal/infrastructure/metrics"
	"shopify-admin-auth/internal/infrastructure/shopify"
	"shopify-admin-auth/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	config.LoadDotEnv(logger)

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}
	logger = logger.Level(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := newSessionStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	app := cfg.App
	tokens := shopify.NewTokenClient(app.APIKey, app.APISecret, app.Scopes, app.AppURL+app.Auth.Callback, logger,
		shopify.WithTokenMetrics(m))
	adminAPI := shopify.NewAdminClient(app.APIKey, app.APISecret, app.APIVersion, logger, shopify.WithRetries(3))

	authenticator, err := auth.NewAdminAuthenticator(auth.Deps{
		Config:    app,
		Storage:   storage,
		Tokens:    tokens,
		Validator: shopify.NewSessionTokenValidator(app.APIKey, app.APISecret),
		AdminAPI:  adminAPI,
		AfterAuth: afterAuth(logger),
		Hooks:     idempotency.NewHandler[struct{}](idempotency.WithTTL(cfg.HookTTL)),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	dispatcher := webhooks.NewDispatcher(logger,
		webhooks.NewAppUninstalledHandler(storage, logger),
		webhooks.NewCustomerPrivacyHandler(logger),
	)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(routerDeps{
			authenticator: authenticator,
			webhooks:      webhooks.NewHTTPHandler(app.APIKey, app.APISecret, dispatcher, m, logger),
			registry:      registry,
			logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("app_url", app.AppURL).
			Str("storage", cfg.Storage.Kind).
			Msg("Starting API server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// afterAuth runs once per new grant. It checks the token works by reading the shop name.
func afterAuth(logger zerolog.Logger) auth.AfterAuthHook {
	return func(ctx context.Context, session *domain.Session, admin ports.AdminClient) error {
		var resp struct {
			Shop struct {
				Name string `json:"name"`
			} `json:"shop"`
		}
		if err := admin.GraphQL(ctx, shopQuery, nil, &resp); err != nil {
			return err
		}
		logger.Info().
			Str("shop", session.Shop).
			Str("shop_name", resp.Shop.Name).
			Bool("online", session.IsOnline).
			Msg("App authorized on shop")
		return nil
	}
}
