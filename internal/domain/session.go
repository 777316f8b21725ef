package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// expiryMargin treats a session as expired slightly before its real expiry so a token
// is never handed out that dies mid-request.
const expiryMargin = 500 * time.Millisecond

// Session represents a merchant (offline) or merchant+user (online) authorization grant
type Session struct {
	ID                  string            `json:"id" bson:"_id"`
	Shop                string            `json:"shop" bson:"shop"`
	State               string            `json:"state,omitempty" bson:"state,omitempty"`
	IsOnline            bool              `json:"is_online" bson:"is_online"`
	Scope               string            `json:"scope,omitempty" bson:"scope,omitempty"`
	AccessToken         string            `json:"access_token,omitempty" bson:"access_token,omitempty"`
	Expires             *time.Time        `json:"expires,omitempty" bson:"expires,omitempty"`
	RefreshToken        string            `json:"refresh_token,omitempty" bson:"refresh_token,omitempty"`
	RefreshTokenExpires *time.Time        `json:"refresh_token_expires,omitempty" bson:"refresh_token_expires,omitempty"`
	OnlineAccessInfo    *OnlineAccessInfo `json:"online_access_info,omitempty" bson:"online_access_info,omitempty"`
}

// OnlineAccessInfo carries the user an online token was issued for
type OnlineAccessInfo struct {
	ExpiresIn           int64          `json:"expires_in" bson:"expires_in"`
	AssociatedUserScope string         `json:"associated_user_scope" bson:"associated_user_scope"`
	AssociatedUser      AssociatedUser `json:"associated_user" bson:"associated_user"`
}

// AssociatedUser is the staff member behind an online session
type AssociatedUser struct {
	ID            int64  `json:"id" bson:"id"`
	FirstName     string `json:"first_name" bson:"first_name"`
	LastName      string `json:"last_name" bson:"last_name"`
	Email         string `json:"email" bson:"email"`
	EmailVerified bool   `json:"email_verified" bson:"email_verified"`
	AccountOwner  bool   `json:"account_owner" bson:"account_owner"`
	Locale        string `json:"locale" bson:"locale"`
	Collaborator  bool   `json:"collaborator" bson:"collaborator"`
}

// OfflineSessionID returns the id of the shop-wide session
func OfflineSessionID(shop string) string {
	return "offline_" + shop
}

// OnlineSessionID returns the id of the session for a given user of a shop
func OnlineSessionID(shop, userID string) string {
	return fmt.Sprintf("%s_%s", shop, userID)
}

// SessionID derives the session id from its identity. userID is ignored for offline sessions.
func SessionID(shop string, isOnline bool, userID string) string {
	if isOnline {
		return OnlineSessionID(shop, userID)
	}
	return OfflineSessionID(shop)
}

// IsExpired reports whether the access token has expired at now.
// A session without an expiry never expires.
func (s *Session) IsExpired(now time.Time) bool {
	if s.Expires == nil {
		return false
	}
	return !s.Expires.Add(-expiryMargin).After(now)
}

// IsRefreshable reports whether the refresh token can still be used at now
func (s *Session) IsRefreshable(now time.Time) bool {
	if s.RefreshToken == "" {
		return false
	}
	if s.RefreshTokenExpires == nil {
		return true
	}
	return s.RefreshTokenExpires.After(now)
}

// IsActive reports whether the session can be used to call the Admin API.
// Online sessions must also carry exactly the configured scopes.
func (s *Session) IsActive(scopes Scopes, now time.Time) bool {
	if s == nil || s.AccessToken == "" || s.IsExpired(now) {
		return false
	}
	if s.IsOnline && len(scopes) > 0 && !scopes.Equal(ParseScopes(s.Scope)) {
		return false
	}
	return true
}

// Invalidate clears the access token so the session is no longer active
func (s *Session) Invalidate() {
	s.AccessToken = ""
}

// Scopes is a normalized permission set
type Scopes []string

// ParseScopes splits a comma-joined scope string. Implied read scopes are expanded
// from write scopes so "write_products" equals "read_products,write_products".
func ParseScopes(raw string) Scopes {
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		seen[scope] = struct{}{}
		if rest, ok := strings.CutPrefix(scope, "write_"); ok {
			seen["read_"+rest] = struct{}{}
		} else if rest, ok := strings.CutPrefix(scope, "unauthenticated_write_"); ok {
			seen["unauthenticated_read_"+rest] = struct{}{}
		}
	}

	scopes := make(Scopes, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// Equal compares two scope sets after normalization
func (s Scopes) Equal(other Scopes) bool {
	a := ParseScopes(strings.Join(s, ","))
	b := ParseScopes(strings.Join(other, ","))
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String joins the scopes with commas
func (s Scopes) String() string {
	return strings.Join(s, ",")
}
