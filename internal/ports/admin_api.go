package ports

import (
	"context"

	"shopify-admin-auth/internal/domain"
)

// RESTRequest is a call to the Admin REST API relative to the versioned admin path
type RESTRequest struct {
	Method string
	// Path is relative, e.g. "products.json"
	Path  string
	Query map[string]string
	Body  any
}

// AdminAPI defines the Shopify Admin API operations used on behalf of a session.
// HTTP failures are returned as *domain.HTTPError so callers can inspect the status.
type AdminAPI interface {
	// GraphQL runs a query or mutation and decodes the data into resp
	GraphQL(ctx context.Context, session *domain.Session, query string, variables map[string]any, resp any) error

	// REST performs a REST call and decodes the JSON body into resp
	REST(ctx context.Context, session *domain.Session, req RESTRequest, resp any) error
}

// AdminClient is the Admin API bound to one authenticated session
type AdminClient interface {
	GraphQL(ctx context.Context, query string, variables map[string]any, resp any) error
	REST(ctx context.Context, req RESTRequest, resp any) error
}

// Billing is the billing surface exposed to authenticated requests.
// Plan computation lives outside this module.
type Billing interface {
	Require(ctx context.Context, plans []string) error
	Check(ctx context.Context, plans []string) (bool, error)
}

// BillingFactory builds the billing surface for an authenticated session
type BillingFactory func(session *domain.Session, admin AdminClient) Billing
