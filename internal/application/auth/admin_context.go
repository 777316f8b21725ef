package auth

import (
	"context"
	"fmt"
	"net/http"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"
)

// AdminContext is the result of a successful admin authentication
type AdminContext struct {
	Session *domain.Session
	Admin   ports.AdminClient
	Billing ports.Billing
	CORS    CORS

	// SessionToken is the decoded session token. Only set for embedded apps.
	SessionToken *domain.IdentityToken

	// Redirect is only set for embedded apps
	Redirect func(target string, opts RedirectOptions) *domain.Response
}

// sessionAdminClient binds the Admin API to a session and hands failures to the strategy
// so an invalid token leads to re-authentication
type sessionAdminClient struct {
	api      ports.AdminAPI
	session  *domain.Session
	strategy Strategy
	request  *http.Request
}

var errAdminAPIMissing = fmt.Errorf("%w: no admin api client configured", domain.ErrConfiguration)

var _ ports.AdminClient = (*sessionAdminClient)(nil)

func (c *sessionAdminClient) GraphQL(ctx context.Context, query string, variables map[string]any, resp any) error {
	if c.api == nil {
		return errAdminAPIMissing
	}
	return c.handle(ctx, c.api.GraphQL(ctx, c.session, query, variables, resp))
}

func (c *sessionAdminClient) REST(ctx context.Context, req ports.RESTRequest, resp any) error {
	if c.api == nil {
		return errAdminAPIMissing
	}
	return c.handle(ctx, c.api.REST(ctx, c.session, req, resp))
}

func (c *sessionAdminClient) handle(ctx context.Context, err error) error {
	if err == nil || c.strategy == nil {
		return err
	}
	return c.strategy.HandleClientError(ctx, c.request, c.session, err)
}
