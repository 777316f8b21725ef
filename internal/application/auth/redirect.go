package auth

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"shopify-admin-auth/internal/domain"
)

const (
	appBridgeURL      = "https://cdn.shopify.com/shopifycloud/app-bridge.js"
	adminHost         = "admin.shopify.com"
	reloadParam       = "shopify-reload"
	sessionTokenParam = "id_token"
	exitIframeParam   = "exitIframe"
)

// Frame targets accepted by window.open in the App Bridge redirect page
const (
	TargetSelf   = "_self"
	TargetTop    = "_top"
	TargetParent = "_parent"
	TargetBlank  = "_blank"
)

// reservedAdminParams are added by Shopify admin and must not leak into admin urls
var reservedAdminParams = []string{
	"hmac", "locale", "embedded", "id_token", "shop", "host", "timestamp", "session", "appLoadId",
}

// RedirectOptions tunes a redirect decided for the current request
type RedirectOptions struct {
	// Target is the window.open target used inside the admin iframe. Defaults to _self.
	Target string
	// Status overrides the status of the App Bridge header response sent to data requests.
	// Defaults to 401.
	Status int
}

// Redirector picks the response shape that moves the browser to a target url given how
// the request was framed
type Redirector struct {
	cfg domain.AppConfig
}

// NewRedirector creates a redirector for the app
func NewRedirector(cfg domain.AppConfig) *Redirector {
	return &Redirector{cfg: cfg}
}

// Decide returns the response that sends the client to target:
// App Bridge HTML for bounce requests and embedded document loads, reauthorize headers for
// data requests and a plain 302 otherwise.
func (rd *Redirector) Decide(r *http.Request, shop, target string, opts RedirectOptions) *domain.Response {
	if opts.Target == "" {
		opts.Target = TargetSelf
	}
	location := InheritSearchParams(NormalizeTarget(target, shop), r, rd.cfg.AppURL)

	switch {
	case IsBounceRequest(r):
		return rd.AppBridgePage(shop, location, opts.Target)
	case IsDataRequest(r):
		return rd.AppBridgeHeaders(location, opts.Status)
	case IsEmbedded(r):
		return rd.AppBridgePage(shop, location, opts.Target)
	default:
		return domain.Redirect(location, "redirect")
	}
}

// NormalizeTarget rewrites shopify://admin/... targets to the shop's admin url and drops
// the parameters Shopify admin adds. Other targets are returned unchanged.
func NormalizeTarget(target, shop string) string {
	const scheme = "shopify://admin"
	if !strings.HasPrefix(target, scheme) {
		return target
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}

	normalized := url.URL{
		Scheme:   "https",
		Host:     adminHost,
		Path:     "/store/" + ShopName(shop) + u.Path,
		Fragment: u.Fragment,
	}
	query := u.Query()
	for _, key := range reservedAdminParams {
		query.Del(key)
	}
	normalized.RawQuery = query.Encode()
	return normalized.String()
}

// InheritSearchParams copies the request's query parameters into relative and app-origin
// targets. Parameters the target already sets are kept.
func InheritSearchParams(target string, r *http.Request, appURL string) string {
	base, err := url.Parse(appURL)
	if err != nil {
		return target
	}
	parsed, err := base.Parse(target)
	if err != nil {
		return target
	}

	sameOrigin := parsed.Scheme == base.Scheme && parsed.Host == base.Host
	if !sameOrigin && !strings.HasPrefix(target, "/") {
		return target
	}

	query := parsed.Query()
	for key, values := range r.URL.Query() {
		if _, ok := query[key]; ok {
			continue
		}
		query[key] = values
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// AppBridgePage renders the App Bridge script and, when location is set, a client-side
// window.open into target
func (rd *Redirector) AppBridgePage(shop, location, target string) *domain.Response {
	var body strings.Builder
	fmt.Fprintf(&body, `<script data-api-key="%s" src="%s"></script>`, html.EscapeString(rd.cfg.APIKey), appBridgeURL)
	if location != "" {
		if target == "" {
			target = TargetTop
		}
		urlJSON, _ := json.Marshal(location)
		targetJSON, _ := json.Marshal(target)
		fmt.Fprintf(&body, `<script>window.open(%s, %s)</script>`, urlJSON, targetJSON)
	}

	resp := domain.HTML(body.String(), "app bridge redirect")
	rd.addDocumentHeaders(resp, shop)
	return resp
}

// AppBridgeHeaders asks App Bridge to navigate the top frame to location. Used for data
// requests, which cannot follow redirects themselves.
func (rd *Redirector) AppBridgeHeaders(location string, status int) *domain.Response {
	if status == 0 {
		status = http.StatusUnauthorized
	}
	resp := domain.NewResponse(status, "app bridge reauthorize")
	resp.Header.Set(domain.HeaderReauthorize, "1")
	resp.Header.Set(domain.HeaderReauthorizeURL, location)
	return resp
}

// BouncePage redirects a document request to the bounce page, which loads App Bridge to
// obtain a fresh session token and then reloads the original url
func (rd *Redirector) BouncePage(r *http.Request) *domain.Response {
	query := r.URL.Query()
	query.Del(sessionTokenParam)
	query.Del(reloadParam)

	reload := rd.cfg.AppURL + r.URL.Path
	if encoded := query.Encode(); encoded != "" {
		reload += "?" + encoded
	}
	query.Set(reloadParam, reload)

	return domain.Redirect(rd.cfg.Auth.PatchSessionToken+"?"+query.Encode(), "bounce for session token")
}

// InvalidSessionToken responds to a missing or rejected session token. Data requests get
// a 401 App Bridge retries after fetching a new token; documents go to the bounce page.
func (rd *Redirector) InvalidSessionToken(r *http.Request) *domain.Response {
	if !IsDataRequest(r) {
		return rd.BouncePage(r)
	}
	resp := domain.NewResponse(http.StatusUnauthorized, "invalid session token")
	resp.Header.Set(domain.HeaderRetryInvalidSession, "1")
	return resp
}

// ExitIframe redirects to the exit-iframe page, which breaks out of the admin iframe
// before navigating to destination
func (rd *Redirector) ExitIframe(r *http.Request, destination string) *domain.Response {
	query := r.URL.Query()
	query.Del(sessionTokenParam)
	query.Set(exitIframeParam, destination)
	return domain.Redirect(rd.cfg.Auth.ExitIframe+"?"+query.Encode(), "exit iframe")
}

// ValidateExitDestination accepts relative and app-origin urls and Shopify admin or shop urls
func (rd *Redirector) ValidateExitDestination(destination string) (string, bool) {
	if destination == "" {
		return "", false
	}
	base, err := url.Parse(rd.cfg.AppURL)
	if err != nil {
		return "", false
	}
	parsed, err := base.Parse(destination)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return "", false
	}

	if parsed.Host == base.Host && parsed.Scheme == base.Scheme {
		return parsed.String(), true
	}
	if parsed.Scheme == "https" && (parsed.Host == adminHost || isShopHost(parsed.Host)) {
		return parsed.String(), true
	}
	return "", false
}

// EmbeddedAppURL is the app's url inside Shopify admin for the given host parameter
func (rd *Redirector) EmbeddedAppURL(host string) (string, bool) {
	decoded, ok := DecodeHost(host)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("https://%s/apps/%s", decoded, rd.cfg.APIKey), true
}

func (rd *Redirector) addDocumentHeaders(resp *domain.Response, shop string) {
	if !rd.cfg.IsEmbeddedApp {
		return
	}
	ancestors := "https://admin.shopify.com https://*.spin.dev"
	if shop != "" {
		ancestors = "https://" + shop + " " + ancestors
	}
	resp.Header.Set("Content-Security-Policy", "frame-ancestors "+ancestors+";")
}

func isShopHost(host string) bool {
	_, ok := SanitizeShop(host)
	return ok
}
