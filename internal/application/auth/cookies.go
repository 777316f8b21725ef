package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	// SessionCookieName carries the session id of non-embedded apps
	SessionCookieName = "shopify_app_session"
	// StateCookieName carries the OAuth state between begin and callback
	StateCookieName = "shopify_app_state"

	stateCookieTTL = 60 * time.Second
)

// cookieJar signs cookie values with the app's API secret so a client cannot
// forge a session id or an OAuth state. Values are authenticated, not encrypted.
type cookieJar struct {
	state   *securecookie.SecureCookie
	session *securecookie.SecureCookie
}

func newCookieJar(apiSecret string) cookieJar {
	key := []byte(apiSecret)
	return cookieJar{
		state: securecookie.New(key, nil).
			SetSerializer(securecookie.JSONEncoder{}).
			MaxAge(int(stateCookieTTL / time.Second)),
		// session cookie lifetime follows the session's own expiry
		session: securecookie.New(key, nil).
			SetSerializer(securecookie.JSONEncoder{}).
			MaxAge(0),
	}
}

func (j cookieJar) codec(name string) *securecookie.SecureCookie {
	if name == StateCookieName {
		return j.state
	}
	return j.session
}

// read returns the value of a signed cookie, or false when missing, expired or tampered
func (j cookieJar) read(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var value string
	if err := j.codec(name).Decode(name, cookie.Value, &value); err != nil || value == "" {
		return "", false
	}
	return value, true
}

// cookie returns the signed cookie carrying value
func (j cookieJar) cookie(name, value, path string, expires time.Time) (*http.Cookie, error) {
	encoded, err := j.codec(name).Encode(name, value)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func setCookie(header http.Header, c *http.Cookie) {
	if v := c.String(); v != "" {
		header.Add("Set-Cookie", v)
	}
}
