package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Distribution is how the app is distributed to merchants
type Distribution string

const (
	DistributionAppStore       Distribution = "app_store"
	DistributionSingleMerchant Distribution = "single_merchant"
	// DistributionShopifyAdmin is a merchant custom app created in the Shopify admin.
	// It authenticates with a static Admin API access token.
	DistributionShopifyAdmin Distribution = "shopify_admin"
)

// ErrConfiguration marks configuration problems detected at startup or first use
var ErrConfiguration = errors.New("invalid app configuration")

// AuthPaths are the app routes owned by the authentication layer
type AuthPaths struct {
	Login             string
	Begin             string
	Callback          string
	ExitIframe        string
	PatchSessionToken string
}

// DefaultAuthPaths returns the standard auth routes
func DefaultAuthPaths() AuthPaths {
	return AuthPaths{
		Login:             "/auth/login",
		Begin:             "/auth",
		Callback:          "/auth/callback",
		ExitIframe:        "/auth/exit-iframe",
		PatchSessionToken: "/auth/session-token",
	}
}

// AppConfig is the app's registration with Shopify plus the auth feature switches
type AppConfig struct {
	APIKey        string
	APISecret     string
	Scopes        Scopes
	AppURL        string
	APIVersion    string
	Distribution  Distribution
	IsEmbeddedApp bool

	// UseOnlineTokens makes the online (per-user) session the active one
	UseOnlineTokens bool
	// TokenExchange selects the token-exchange strategy for embedded apps
	TokenExchange bool
	// ExpiringOfflineAccessTokens requests offline tokens that expire and can be refreshed
	ExpiringOfflineAccessTokens bool

	// AdminAPIAccessToken is only used by merchant custom apps
	AdminAPIAccessToken string

	// CheckAudience verifies the session token's aud claim against APIKey
	CheckAudience bool

	Auth AuthPaths
}

// Validate fails fast on configurations that cannot authenticate anything.
// hasSessionStorage reports whether a session store was wired.
func (c *AppConfig) Validate(hasSessionStorage bool) error {
	var problems []string

	if c.APIKey == "" {
		problems = append(problems, "api key is required")
	}
	if c.APISecret == "" && c.Distribution != DistributionShopifyAdmin {
		problems = append(problems, "api secret is required")
	}

	u, err := url.Parse(c.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("app url %q is not an absolute url", c.AppURL))
	}

	switch c.Distribution {
	case DistributionShopifyAdmin:
		if c.AdminAPIAccessToken == "" {
			problems = append(problems, "merchant custom apps require an admin api access token")
		}
	case DistributionAppStore, DistributionSingleMerchant, "":
		if !hasSessionStorage {
			problems = append(problems, "session storage is required")
		}
		if c.TokenExchange && !c.IsEmbeddedApp {
			problems = append(problems, "token exchange is only available to embedded apps")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown distribution %q", c.Distribution))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// AppOrigin returns scheme://host of the app url
func (c *AppConfig) AppOrigin() string {
	u, err := url.Parse(c.AppURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// WithDefaults fills unset auth paths
func (c AppConfig) WithDefaults() AppConfig {
	defaults := DefaultAuthPaths()
	if c.Auth.Login == "" {
		c.Auth.Login = defaults.Login
	}
	if c.Auth.Begin == "" {
		c.Auth.Begin = defaults.Begin
	}
	if c.Auth.Callback == "" {
		c.Auth.Callback = defaults.Callback
	}
	if c.Auth.ExitIframe == "" {
		c.Auth.ExitIframe = defaults.ExitIframe
	}
	if c.Auth.PatchSessionToken == "" {
		c.Auth.PatchSessionToken = defaults.PatchSessionToken
	}
	if c.Distribution == "" {
		c.Distribution = DistributionAppStore
	}
	c.AppURL = strings.TrimSuffix(c.AppURL, "/")
	return c
}
