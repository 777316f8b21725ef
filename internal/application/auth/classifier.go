package auth

import (
	"net/http"
	"strings"

	"shopify-admin-auth/internal/domain"
)

// Classification is the shape of an inbound request as far as authentication cares
type Classification struct {
	IsEmbedded     bool
	IsDocument     bool
	IsBounce       bool
	IsData         bool
	HasBearerToken bool
}

// Classify derives every request property at once
func Classify(r *http.Request) Classification {
	c := Classification{
		IsEmbedded:     IsEmbedded(r),
		HasBearerToken: HasBearerToken(r),
		IsBounce:       IsBounceRequest(r),
		IsData:         IsDataRequest(r),
	}
	c.IsDocument = !c.IsData
	return c
}

// IsEmbedded reports whether Shopify admin loaded the request inside its iframe
func IsEmbedded(r *http.Request) bool {
	return r.URL.Query().Get("embedded") == "1"
}

// BearerToken returns the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HasBearerToken reports whether the request carries a bearer token
func HasBearerToken(r *http.Request) bool {
	_, ok := BearerToken(r)
	return ok
}

// IsBounceRequest reports whether the request is App Bridge retrying after a bounce
func IsBounceRequest(r *http.Request) bool {
	return HasBearerToken(r) && r.Header.Get(domain.HeaderBounce) != ""
}

// IsDataRequest reports whether the request is a fetch from the app frontend rather
// than a document load
func IsDataRequest(r *http.Request) bool {
	return HasBearerToken(r) && !IsBounceRequest(r) && (!IsEmbedded(r) || r.Method != http.MethodGet)
}
