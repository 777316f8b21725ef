package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// DefaultAPIVersion is the Admin API version used when none is configured
const DefaultAPIVersion = "2025-01"

// AdminClient calls the Admin API on behalf of a session using go-shopify
type AdminClient struct {
	app        goshopify.App
	apiVersion string
	retries    int
	httpClient *http.Client
	logger     zerolog.Logger
}

// AdminClientOption configures an AdminClient
type AdminClientOption func(*AdminClient)

// WithRetries retries rate-limited and server-failed requests
func WithRetries(n int) AdminClientOption {
	return func(c *AdminClient) { c.retries = n }
}

// WithAdminHTTPClient overrides the HTTP client handed to go-shopify
func WithAdminHTTPClient(client *http.Client) AdminClientOption {
	return func(c *AdminClient) { c.httpClient = client }
}

// NewAdminClient creates an Admin API adapter
func NewAdminClient(apiKey, apiSecret, apiVersion string, logger zerolog.Logger, opts ...AdminClientOption) *AdminClient {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	c := &AdminClient{
		app: goshopify.App{
			ApiKey:    apiKey,
			ApiSecret: apiSecret,
		},
		apiVersion: apiVersion,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.AdminAPI = (*AdminClient)(nil)

// createClient is a helper to create a goshopify client bound to a session
func (c *AdminClient) createClient(session *domain.Session) (*goshopify.Client, error) {
	if session == nil || session.AccessToken == "" {
		return nil, fmt.Errorf("session has no access token")
	}

	opts := []goshopify.Option{goshopify.WithVersion(c.apiVersion)}
	if c.retries > 0 {
		opts = append(opts, goshopify.WithRetry(c.retries))
	}
	if c.httpClient != nil {
		opts = append(opts, goshopify.WithHTTPClient(c.httpClient))
	}

	client, err := goshopify.NewClient(c.app, session.Shop, session.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// GraphQL runs query against the Admin GraphQL API. Documents that do not parse are
// rejected before any request is made.
func (c *AdminClient) GraphQL(ctx context.Context, session *domain.Session, query string, variables map[string]any, resp any) error {
	if _, err := parser.ParseQuery(&ast.Source{Name: "admin", Input: query}); err != nil {
		return fmt.Errorf("invalid graphql document: %w", err)
	}

	client, err := c.createClient(session)
	if err != nil {
		return err
	}

	if err := client.GraphQL.Query(ctx, query, variables, resp); err != nil {
		c.logger.Debug().
			Err(err).
			Str("shop", session.Shop).
			Msg("Admin GraphQL request failed")
		return translateError(err)
	}
	return nil
}

// REST performs a call against the versioned Admin REST API
func (c *AdminClient) REST(ctx context.Context, session *domain.Session, req ports.RESTRequest, resp any) error {
	client, err := c.createClient(session)
	if err != nil {
		return err
	}

	path := strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		values := url.Values{}
		for key, value := range req.Query {
			values.Set(key, value)
		}
		path += "?" + values.Encode()
	}

	switch strings.ToUpper(req.Method) {
	case http.MethodGet, "":
		err = client.Get(ctx, path, resp, nil)
	case http.MethodPost:
		err = client.Post(ctx, path, req.Body, resp)
	case http.MethodPut:
		err = client.Put(ctx, path, req.Body, resp)
	case http.MethodDelete:
		err = client.Delete(ctx, path)
	default:
		return fmt.Errorf("unsupported REST method %q", req.Method)
	}

	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("shop", session.Shop).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("Admin REST request failed")
		return translateError(err)
	}
	return nil
}

// translateError maps go-shopify response errors to domain.HTTPError so the
// auth layer can react to status codes without knowing the client library
func translateError(err error) error {
	var rateLimited goshopify.RateLimitError
	if errors.As(err, &rateLimited) {
		return &domain.HTTPError{Status: rateLimited.Status, Message: rateLimited.Message}
	}

	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) && respErr.Status != 0 {
		return &domain.HTTPError{Status: respErr.Status, Message: respErr.Message}
	}

	var respErrPtr *goshopify.ResponseError
	if errors.As(err, &respErrPtr) && respErrPtr.Status != 0 {
		return &domain.HTTPError{Status: respErrPtr.Status, Message: respErrPtr.Message}
	}

	return err
}
