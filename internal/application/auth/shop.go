package auth

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
)

const shopDomains = `myshopify\.com|shopify\.com|myshopify\.io|shop\.dev`

var (
	shopURLPattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_]*\.(` + shopDomains + `)/*$`)
	shopAdminPattern = regexp.MustCompile(`^admin\.(` + shopDomains + `)/store/([a-zA-Z0-9][a-zA-Z0-9-_]*)$`)
	hostPattern      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_.]*\.(` + shopDomains + `|spin\.dev)$`)
	base64Pattern    = regexp.MustCompile(`^[0-9a-zA-Z+/]+={0,2}$`)
)

// SanitizeShop validates a shop domain. Admin urls of the form
// admin.shopify.com/store/<name> are converted to <name>.myshopify.com.
func SanitizeShop(shop string) (string, bool) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return "", false
	}

	if m := shopAdminPattern.FindStringSubmatch(shop); m != nil {
		shop = m[2] + ".myshopify.com"
	}
	if !shopURLPattern.MatchString(shop) {
		return "", false
	}
	return strings.TrimRight(strings.ToLower(shop), "/"), true
}

// SanitizeHost validates the base64 host parameter Shopify admin appends to app urls
func SanitizeHost(host string) (string, bool) {
	decoded, ok := DecodeHost(host)
	if !ok {
		return "", false
	}
	u, err := url.Parse("https://" + decoded)
	if err != nil || !hostPattern.MatchString(u.Hostname()) {
		return "", false
	}
	return host, true
}

// DecodeHost returns the hostname[/path] a host parameter encodes
func DecodeHost(host string) (string, bool) {
	if host == "" || !base64Pattern.MatchString(host) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(host)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(host, "="))
		if err != nil {
			return "", false
		}
	}
	return string(raw), true
}

// ShopName is the store handle, e.g. "test" for test.myshopify.com
func ShopName(shop string) string {
	name, _, _ := strings.Cut(shop, ".")
	return name
}
