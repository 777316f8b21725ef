package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"shopify-admin-auth/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		url    string
		header map[string]string
		want   Classification
	}{
		{
			name:   "embedded document load",
			method: http.MethodGet,
			url:    "/app?embedded=1&shop=" + testShop,
			want:   Classification{IsEmbedded: true, IsDocument: true},
		},
		{
			name:   "fetch with bearer token",
			method: http.MethodGet,
			url:    "/api/products",
			header: map[string]string{"Authorization": "Bearer abc"},
			want:   Classification{HasBearerToken: true, IsData: true},
		},
		{
			name:   "embedded GET with bearer token is a document",
			method: http.MethodGet,
			url:    "/app?embedded=1",
			header: map[string]string{"Authorization": "Bearer abc"},
			want:   Classification{IsEmbedded: true, HasBearerToken: true, IsDocument: true},
		},
		{
			name:   "embedded POST with bearer token is data",
			method: http.MethodPost,
			url:    "/app?embedded=1",
			header: map[string]string{"Authorization": "Bearer abc"},
			want:   Classification{IsEmbedded: true, HasBearerToken: true, IsData: true},
		},
		{
			name:   "bounce retry",
			method: http.MethodGet,
			url:    "/app",
			header: map[string]string{"Authorization": "Bearer abc", domain.HeaderBounce: "1"},
			want:   Classification{HasBearerToken: true, IsBounce: true, IsDocument: true},
		},
		{
			name:   "bounce header without token",
			method: http.MethodGet,
			url:    "/app",
			header: map[string]string{domain.HeaderBounce: "1"},
			want:   Classification{IsDocument: true},
		},
		{
			name:   "basic auth is not a bearer token",
			method: http.MethodGet,
			url:    "/api",
			header: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			want:   Classification{IsDocument: true},
		},
		{
			name:   "empty bearer",
			method: http.MethodGet,
			url:    "/api",
			header: map[string]string{"Authorization": "Bearer "},
			want:   Classification{IsDocument: true},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(tt.method, tt.url, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, Classify(r))
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer  token-value ")
	token, ok := BearerToken(r)
	assert.True(t, ok)
	assert.Equal(t, "token-value", token)
}

func TestBotPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultBotPolicy()
	tests := []struct {
		userAgent string
		bot       bool
	}{
		{"Googlebot", true},
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", true},
		{"facebookexternalhit/1.1", true},
		{"curl/8.4.0", true},
		{"Go-http-client/1.1", true},
		{"axios/1.6.2", true},
		{"python-requests/2.31.0", true},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1 PreviewKit/1.0", false},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36", false},
		{"Mozilla/5.0 (iPhone) AppleWebKit/605.1.15 Shopify POS/9.4.0 bot", false},
		{"Shopify Mobile/iOS/9.140.0 (iPhone; Crawl)", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bot, policy.IsBot(tt.userAgent), tt.userAgent)
	}
}

func TestBotPolicy_AllowListWinsOverDetector(t *testing.T) {
	t.Parallel()

	policy := &BotPolicy{
		Allow:     DefaultBotPolicy().Allow,
		IsCrawler: func(string) bool { return true },
	}
	assert.False(t, policy.IsBot("Shopify POS/9.4.0 (iPad)"))
	assert.False(t, policy.IsBot("Shopify Mobile/Android/9.140.0"))
	assert.True(t, policy.IsBot("Mozilla/5.0 (Macintosh)"))
	assert.False(t, (&BotPolicy{}).IsBot("curl/8.4.0"))
}

func TestSanitizeShop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"my-shop.myshopify.com", "my-shop.myshopify.com", true},
		{"My-Shop.myshopify.com/", "my-shop.myshopify.com", true},
		{"admin.shopify.com/store/my-shop", "my-shop.myshopify.com", true},
		{"my-shop.shop.dev", "my-shop.shop.dev", true},
		{"my-shop.example.com", "", false},
		{"https://my-shop.myshopify.com", "", false},
		{"-shop.myshopify.com", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := SanitizeShop(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSanitizeHost(t *testing.T) {
	t.Parallel()

	host, ok := SanitizeHost(testHost)
	assert.True(t, ok)
	assert.Equal(t, testHost, host)

	decoded, ok := DecodeHost(testHost)
	assert.True(t, ok)
	assert.Equal(t, "admin.shopify.com/store/my-shop", decoded)

	// base64("evil.example.com")
	_, ok = SanitizeHost("ZXZpbC5leGFtcGxlLmNvbQ==")
	assert.False(t, ok)

	_, ok = SanitizeHost("not base64!")
	assert.False(t, ok)
}
