package domain

import (
	"net/url"
	"time"
)

// IdentityToken is a decoded and verified session token issued by Shopify admin
type IdentityToken struct {
	Raw       string
	Issuer    string
	Dest      string
	Audience  []string
	Subject   string
	SessionID string
	JTI       string
	ExpiresAt time.Time
	IssuedAt  time.Time
	NotBefore time.Time
}

// Shop returns the shop domain from the dest claim, e.g. "test.myshopify.com"
func (t *IdentityToken) Shop() string {
	u, err := url.Parse(t.Dest)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Hostname()
}

// SessionContext is the per-request identity resolved before the strategy runs
type SessionContext struct {
	Shop          string
	SessionID     string
	Session       *Session
	IdentityToken *IdentityToken
}
