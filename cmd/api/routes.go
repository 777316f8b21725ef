package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"shopify-admin-auth/internal/application/auth"
	"shopify-admin-auth/internal/domain"
	authmiddleware "shopify-admin-auth/internal/infrastructure/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shopQuery = `{ shop { name } }`

type routerDeps struct {
	authenticator *auth.AdminAuthenticator
	webhooks      http.Handler
	registry      *prometheus.Registry
	logger        zerolog.Logger
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))
	r.Post("/webhooks", deps.webhooks.ServeHTTP)

	login := func(w http.ResponseWriter, r *http.Request) {
		deps.authenticator.Login(r).Write(w)
	}
	r.Get("/auth/login", login)
	r.Post("/auth/login", login)

	adminAuth := authmiddleware.AdminAuth(deps.authenticator, deps.logger)

	r.Group(func(r chi.Router) {
		r.Use(adminAuth)
		// the authenticator answers every auth route itself
		r.HandleFunc("/auth", http.NotFound)
		r.HandleFunc("/auth/*", http.NotFound)
		r.Get("/app", appPage)
		r.Get("/app/*", appPage)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{
				domain.HeaderReauthorize,
				domain.HeaderReauthorizeURL,
				domain.HeaderRetryInvalidSession,
			},
			MaxAge: 7200,
		}))
		r.Use(adminAuth)
		r.Get("/shop", shopHandler(deps.logger))
	})

	return r
}

func appPage(w http.ResponseWriter, r *http.Request) {
	adminCtx, _ := authmiddleware.FromContext(r.Context())
	w.Header().Set("Content-Type", "text/html;charset=utf-8")
	_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><body><h1>%s</h1></body></html>", html.EscapeString(adminCtx.Session.Shop))
}

// shopHandler proxies a small Admin API query for the authenticated shop
func shopHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminCtx, _ := authmiddleware.FromContext(r.Context())

		var resp struct {
			Shop struct {
				Name string `json:"name"`
			} `json:"shop"`
		}
		if err := adminCtx.Admin.GraphQL(r.Context(), shopQuery, nil, &resp); err != nil {
			if resp, ok := domain.AsResponse(err); ok {
				adminCtx.CORS.Apply(resp).Write(w)
				return
			}
			logger.Error().Err(err).Str("shop", adminCtx.Session.Shop).Msg("Failed to query shop")
			http.Error(w, "Failed to query shop", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"shop": adminCtx.Session.Shop,
			"name": resp.Shop.Name,
		})
	}
}
