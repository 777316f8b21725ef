package auth

import (
	"net/http"
	"strings"

	"shopify-admin-auth/internal/domain"
)

const preflightMaxAge = "7200"

// CORS adds cross-origin headers to responses for requests coming from another origin,
// such as extensions calling the app backend
type CORS struct {
	appOrigin string
	request   *http.Request
}

func newCORS(cfg domain.AppConfig, r *http.Request) CORS {
	return CORS{appOrigin: cfg.AppOrigin(), request: r}
}

// Apply sets the CORS headers on resp when the request is cross-origin.
// extraHeaders are appended to Access-Control-Allow-Headers.
func (c CORS) Apply(resp *domain.Response, extraHeaders ...string) *domain.Response {
	if resp == nil {
		return nil
	}
	ApplyCORSHeaders(resp.Header, c.request, c.appOrigin, extraHeaders...)
	return resp
}

// ApplyCORSHeaders writes CORS headers into header when origin differs from appOrigin
func ApplyCORSHeaders(header http.Header, r *http.Request, appOrigin string, extraHeaders ...string) {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == appOrigin {
		return
	}
	allowed := append([]string{"Authorization", "Content-Type"}, extraHeaders...)
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", strings.Join(allowed, ", "))
	header.Set("Access-Control-Expose-Headers", domain.HeaderReauthorizeURL)
}

func preflightResponse(cfg domain.AppConfig, r *http.Request) *domain.Response {
	resp := domain.NewResponse(http.StatusNoContent, "cors preflight")
	resp.Header.Set("Access-Control-Max-Age", preflightMaxAge)
	return newCORS(cfg, r).Apply(resp)
}
