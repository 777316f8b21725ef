// Package middleware adapts the admin authenticator to net/http handler chains.
package middleware

import (
	"context"
	"net/http"

	"shopify-admin-auth/internal/application/auth"
	"shopify-admin-auth/internal/domain"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type contextKey string

const adminContextKey contextKey = "shopify_admin_context"

// Authenticator is the part of auth.AdminAuthenticator the middleware needs
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*auth.AdminContext, error)
}

// AdminAuth authenticates every request. Responses decided by the authenticator are
// written as is; unexpected failures become a 500. Authenticated requests carry the
// admin context, see FromContext.
func AdminAuth(authenticator Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminCtx, err := authenticator.Authenticate(r.Context(), r)
			if err != nil {
				if resp, ok := domain.AsResponse(err); ok {
					resp.Write(w)
					return
				}
				logger.Error().
					Err(err).
					Str("request_id", chimiddleware.GetReqID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Admin authentication failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), adminContextKey, adminCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the admin context stored by AdminAuth
func FromContext(ctx context.Context) (*auth.AdminContext, bool) {
	adminCtx, ok := ctx.Value(adminContextKey).(*auth.AdminContext)
	return adminCtx, ok && adminCtx != nil
}
