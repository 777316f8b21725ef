package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShop = "my-shop.myshopify.com"

func newTestTokenClient(t *testing.T, handler http.HandlerFunc, now time.Time) *TokenClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewTokenClient(
		testAPIKey,
		testAPISecret,
		domain.ParseScopes("write_products"),
		"https://app.example.com/auth/callback",
		zerolog.Nop(),
		WithHTTPClient(server.Client()),
		WithShopBaseURL(func(string) string { return server.URL }),
		WithTokenClock(func() time.Time { return now }),
	)
}

func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestTokenClient_ExchangeToken_Offline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/oauth/access_token", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body := decodeBody(t, r)
		assert.Equal(t, testAPIKey, body["client_id"])
		assert.Equal(t, testAPISecret, body["client_secret"])
		assert.Equal(t, grantTypeTokenExchange, body["grant_type"])
		assert.Equal(t, "session-token", body["subject_token"])
		assert.Equal(t, subjectTokenTypeID, body["subject_token_type"])
		assert.Equal(t, string(ports.OfflineAccessToken), body["requested_token_type"])
		assert.Equal(t, "1", body["expiring"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":             "offline-token",
			"scope":                    "write_products",
			"expires_in":               3600,
			"refresh_token":            "refresh-1",
			"refresh_token_expires_in": 7200,
		})
	}, now)

	session, err := client.ExchangeToken(context.Background(), ports.TokenExchangeInput{
		Shop:               testShop,
		SessionToken:       "session-token",
		RequestedTokenType: ports.OfflineAccessToken,
		Expiring:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, "offline_my-shop.myshopify.com", session.ID)
	assert.False(t, session.IsOnline)
	assert.Equal(t, "offline-token", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	require.NotNil(t, session.Expires)
	assert.Equal(t, now.Add(time.Hour), *session.Expires)
	require.NotNil(t, session.RefreshTokenExpires)
	assert.Equal(t, now.Add(2*time.Hour), *session.RefreshTokenExpires)
}

func TestTokenClient_ExchangeToken_Online(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, string(ports.OnlineAccessToken), body["requested_token_type"])
		assert.Empty(t, body["expiring"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":          "online-token",
			"scope":                 "write_products",
			"expires_in":            86399,
			"associated_user_scope": "write_products",
			"associated_user": map[string]any{
				"id":            902541635,
				"first_name":    "John",
				"email":         "john@example.com",
				"account_owner": true,
			},
		})
	}, now)

	session, err := client.ExchangeToken(context.Background(), ports.TokenExchangeInput{
		Shop:               testShop,
		SessionToken:       "session-token",
		RequestedTokenType: ports.OnlineAccessToken,
		Expiring:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, "my-shop.myshopify.com_902541635", session.ID)
	assert.True(t, session.IsOnline)
	require.NotNil(t, session.OnlineAccessInfo)
	assert.Equal(t, "john@example.com", session.OnlineAccessInfo.AssociatedUser.Email)
	assert.True(t, session.OnlineAccessInfo.AssociatedUser.AccountOwner)
}

func TestTokenClient_ExchangeToken_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid subject token", func(t *testing.T) {
		t.Parallel()
		client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_subject_token","error_description":"expired"}`))
		}, time.Now())

		_, err := client.ExchangeToken(context.Background(), ports.TokenExchangeInput{
			Shop: testShop, SessionToken: "stale", RequestedTokenType: ports.OfflineAccessToken,
		})
		require.Error(t, err)
		assert.True(t, domain.IsInvalidSubjectToken(err))
		assert.Equal(t, http.StatusBadRequest, domain.HTTPStatus(err))
	})

	t.Run("upstream failure", func(t *testing.T) {
		t.Parallel()
		client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, time.Now())

		_, err := client.ExchangeToken(context.Background(), ports.TokenExchangeInput{
			Shop: testShop, SessionToken: "token", RequestedTokenType: ports.OfflineAccessToken,
		})
		require.Error(t, err)
		assert.False(t, domain.IsInvalidSubjectToken(err))
		assert.Equal(t, http.StatusBadGateway, domain.HTTPStatus(err))
	})

	t.Run("online response without user", func(t *testing.T) {
		t.Parallel()
		client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":"x","scope":"read_products"}`))
		}, time.Now())

		_, err := client.ExchangeToken(context.Background(), ports.TokenExchangeInput{
			Shop: testShop, SessionToken: "token", RequestedTokenType: ports.OnlineAccessToken,
		})
		require.Error(t, err)
	})
}

func TestTokenClient_RefreshToken(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.Equal(t, "refresh-1", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "offline-2",
			"scope":         "write_products",
			"expires_in":    3600,
			"refresh_token": "refresh-2",
		})
	}, now)

	session, err := client.RefreshToken(context.Background(), testShop, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OfflineSessionID(testShop), session.ID)
	assert.Equal(t, "offline-2", session.AccessToken)
	assert.Equal(t, "refresh-2", session.RefreshToken)
	assert.Nil(t, session.RefreshTokenExpires)
}

func TestTokenClient_ExchangeCode(t *testing.T) {
	t.Parallel()

	client := newTestTokenClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "auth-code", body["code"])
		_, _ = w.Write([]byte(`{"access_token":"offline-token","scope":"write_products"}`))
	}, time.Now())

	session, err := client.ExchangeCode(context.Background(), testShop, "auth-code", false)
	require.NoError(t, err)
	assert.Equal(t, domain.OfflineSessionID(testShop), session.ID)
	assert.Nil(t, session.Expires)
}

func TestTokenClient_AuthorizeURL(t *testing.T) {
	t.Parallel()

	client := NewTokenClient(testAPIKey, testAPISecret, domain.ParseScopes("read_products"),
		"https://app.example.com/auth/callback", zerolog.Nop())

	offline, err := client.AuthorizeURL(testShop, "state-1", false)
	require.NoError(t, err)
	u, err := url.Parse(offline)
	require.NoError(t, err)
	assert.Equal(t, testShop, u.Host)
	assert.Equal(t, "/admin/oauth/authorize", u.Path)
	assert.Equal(t, testAPIKey, u.Query().Get("client_id"))
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Empty(t, u.Query().Get("grant_options[]"))

	online, err := client.AuthorizeURL(testShop, "state-1", true)
	require.NoError(t, err)
	u, err = url.Parse(online)
	require.NoError(t, err)
	assert.Equal(t, "per-user", u.Query().Get("grant_options[]"))
}
