package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/metrics"
	"shopify-admin-auth/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	grantTypeRefreshToken  = "refresh_token"
	grantTypeAuthCode      = "authorization_code"
	subjectTokenTypeID     = "urn:ietf:params:oauth:token-type:id_token"

	defaultTokenTimeout = 15 * time.Second
	maxTokenBodySize    = 1 << 20
)

// tokenResponse is the body returned by /admin/oauth/access_token
type tokenResponse struct {
	AccessToken           string                 `json:"access_token"`
	Scope                 string                 `json:"scope"`
	ExpiresIn             int64                  `json:"expires_in"`
	RefreshToken          string                 `json:"refresh_token"`
	RefreshTokenExpiresIn int64                  `json:"refresh_token_expires_in"`
	AssociatedUserScope   string                 `json:"associated_user_scope"`
	AssociatedUser        *domain.AssociatedUser `json:"associated_user"`
}

type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenClient talks to a shop's OAuth token endpoint
type TokenClient struct {
	apiKey      string
	apiSecret   string
	app         goshopify.App
	httpClient  *http.Client
	shopBaseURL func(shop string) string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// TokenClientOption configures a TokenClient
type TokenClientOption func(*TokenClient)

// WithHTTPClient overrides the HTTP client used for token requests
func WithHTTPClient(client *http.Client) TokenClientOption {
	return func(c *TokenClient) { c.httpClient = client }
}

// WithShopBaseURL overrides how a shop domain maps to its base url
func WithShopBaseURL(fn func(shop string) string) TokenClientOption {
	return func(c *TokenClient) { c.shopBaseURL = fn }
}

// WithTokenMetrics records token endpoint calls
func WithTokenMetrics(m *metrics.Metrics) TokenClientOption {
	return func(c *TokenClient) { c.metrics = m }
}

// WithTokenClock sets the time source used for expiry computation
func WithTokenClock(now func() time.Time) TokenClientOption {
	return func(c *TokenClient) { c.now = now }
}

// NewTokenClient creates a token client for the app's credentials.
// redirectURL is the auth callback used by the authorization code grant.
func NewTokenClient(apiKey, apiSecret string, scopes domain.Scopes, redirectURL string, logger zerolog.Logger, opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		app: goshopify.App{
			ApiKey:      apiKey,
			ApiSecret:   apiSecret,
			RedirectUrl: redirectURL,
			Scope:       scopes.String(),
		},
		httpClient: &http.Client{Timeout: defaultTokenTimeout},
		shopBaseURL: func(shop string) string {
			return "https://" + shop
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.TokenClient = (*TokenClient)(nil)

// ExchangeToken trades a session token for an online or offline access token
func (c *TokenClient) ExchangeToken(ctx context.Context, input ports.TokenExchangeInput) (*domain.Session, error) {
	body := map[string]string{
		"client_id":            c.apiKey,
		"client_secret":        c.apiSecret,
		"grant_type":           grantTypeTokenExchange,
		"subject_token":        input.SessionToken,
		"subject_token_type":   subjectTokenTypeID,
		"requested_token_type": string(input.RequestedTokenType),
	}
	if input.Expiring && input.RequestedTokenType == ports.OfflineAccessToken {
		body["expiring"] = "1"
	}

	resp, err := c.post(ctx, input.Shop, "token_exchange", body)
	if err != nil {
		return nil, err
	}

	isOnline := input.RequestedTokenType == ports.OnlineAccessToken
	return c.sessionFromResponse(input.Shop, resp, isOnline)
}

// RefreshToken trades a refresh token for a new expiring offline access token
func (c *TokenClient) RefreshToken(ctx context.Context, shop string, refreshToken string) (*domain.Session, error) {
	resp, err := c.post(ctx, shop, grantTypeRefreshToken, map[string]string{
		"client_id":     c.apiKey,
		"client_secret": c.apiSecret,
		"grant_type":    grantTypeRefreshToken,
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return c.sessionFromResponse(shop, resp, false)
}

// ExchangeCode completes the authorization code grant
func (c *TokenClient) ExchangeCode(ctx context.Context, shop string, code string, isOnline bool) (*domain.Session, error) {
	resp, err := c.post(ctx, shop, grantTypeAuthCode, map[string]string{
		"client_id":     c.apiKey,
		"client_secret": c.apiSecret,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}
	return c.sessionFromResponse(shop, resp, isOnline)
}

// AuthorizeURL builds the OAuth consent url. Online access adds the per-user grant option.
func (c *TokenClient) AuthorizeURL(shop string, state string, isOnline bool) (string, error) {
	authURL, err := c.app.AuthorizeUrl(shop, state)
	if err != nil {
		return "", fmt.Errorf("failed to build authorize url: %w", err)
	}
	if !isOnline {
		return authURL, nil
	}

	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse authorize url: %w", err)
	}
	q := u.Query()
	q.Set("grant_options[]", "per-user")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyCallback checks the hmac Shopify adds to the OAuth callback query
func (c *TokenClient) VerifyCallback(u *url.URL) (bool, error) {
	return c.app.VerifyAuthorizationURL(u)
}

func (c *TokenClient) post(ctx context.Context, shop string, grant string, body map[string]string) (*tokenResponse, error) {
	start := c.now()
	resp, err := c.doPost(ctx, shop, body)
	c.metrics.TokenRequest(grant, err, c.now().Sub(start))

	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("shop", shop).
			Str("grant", grant).
			Msg("Token request failed")
		return nil, err
	}

	c.logger.Debug().
		Str("shop", shop).
		Str("grant", grant).
		Str("scope", resp.Scope).
		Msg("Token request succeeded")
	return resp, nil
}

func (c *TokenClient) doPost(ctx context.Context, shop string, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	tokenURL := c.shopBaseURL(shop) + "/admin/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &domain.HTTPError{Status: resp.StatusCode}
		var oauthErr oauthErrorBody
		if json.Unmarshal(respBody, &oauthErr) == nil {
			httpErr.Code = oauthErr.Error
			httpErr.Message = oauthErr.ErrorDescription
		}
		return nil, httpErr
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response did not include an access token")
	}
	return &tokenResp, nil
}

func (c *TokenClient) sessionFromResponse(shop string, resp *tokenResponse, isOnline bool) (*domain.Session, error) {
	now := c.now()
	session := &domain.Session{
		Shop:        shop,
		IsOnline:    isOnline,
		Scope:       resp.Scope,
		AccessToken: resp.AccessToken,
	}
	if resp.ExpiresIn > 0 {
		expires := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		session.Expires = &expires
	}

	if !isOnline {
		session.ID = domain.OfflineSessionID(shop)
		session.RefreshToken = resp.RefreshToken
		if resp.RefreshTokenExpiresIn > 0 {
			refreshExpires := now.Add(time.Duration(resp.RefreshTokenExpiresIn) * time.Second)
			session.RefreshTokenExpires = &refreshExpires
		}
		return session, nil
	}

	if resp.AssociatedUser == nil || resp.AssociatedUser.ID == 0 {
		return nil, fmt.Errorf("online token response for %s has no associated user", shop)
	}
	session.ID = domain.OnlineSessionID(shop, strconv.FormatInt(resp.AssociatedUser.ID, 10))
	session.OnlineAccessInfo = &domain.OnlineAccessInfo{
		ExpiresIn:           resp.ExpiresIn,
		AssociatedUserScope: resp.AssociatedUserScope,
		AssociatedUser:      *resp.AssociatedUser,
	}
	return session, nil
}
