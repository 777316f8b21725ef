package ports

import (
	"context"
	"net/url"

	"shopify-admin-auth/internal/domain"
)

// RequestedTokenType selects the kind of access token a token exchange returns
type RequestedTokenType string

const (
	OnlineAccessToken  RequestedTokenType = "urn:shopify:params:oauth:token-type:online-access-token"
	OfflineAccessToken RequestedTokenType = "urn:shopify:params:oauth:token-type:offline-access-token"
)

// TokenExchangeInput is the subject of a token exchange
type TokenExchangeInput struct {
	Shop               string
	SessionToken       string
	RequestedTokenType RequestedTokenType
	// Expiring asks for an offline token that expires and comes with a refresh token
	Expiring bool
}

// TokenClient defines the calls made against a shop's OAuth token endpoint.
// Failures from the endpoint are returned as *domain.HTTPError.
type TokenClient interface {
	// ExchangeToken trades a session token for an access token
	ExchangeToken(ctx context.Context, input TokenExchangeInput) (*domain.Session, error)

	// RefreshToken trades a refresh token for a new offline access token
	RefreshToken(ctx context.Context, shop string, refreshToken string) (*domain.Session, error)

	// ExchangeCode completes the authorization code grant
	ExchangeCode(ctx context.Context, shop string, code string, isOnline bool) (*domain.Session, error)

	// AuthorizeURL builds the OAuth consent url for the authorization code grant
	AuthorizeURL(shop string, state string, isOnline bool) (string, error)

	// VerifyCallback checks the hmac of an OAuth callback query
	VerifyCallback(u *url.URL) (bool, error)
}
