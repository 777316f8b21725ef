package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/metrics"
	"shopify-admin-auth/internal/infrastructure/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "webhook_secret"
	testShop   = "my-shop.myshopify.com"
)

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookRequest(topic, shop, body, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if topic != "" {
		r.Header.Set("X-Shopify-Topic", topic)
	}
	if shop != "" {
		r.Header.Set("X-Shopify-Shop-Domain", shop)
	}
	r.Header.Set("X-Shopify-Hmac-Sha256", signature)
	return r
}

func seedSessions(t *testing.T, storage *repository.MemorySessionStorage) {
	t.Helper()
	for _, session := range []*domain.Session{
		{ID: domain.OfflineSessionID(testShop), Shop: testShop, AccessToken: "a"},
		{ID: domain.OnlineSessionID(testShop, "1"), Shop: testShop, IsOnline: true, AccessToken: "b"},
		{ID: domain.OfflineSessionID("other.myshopify.com"), Shop: "other.myshopify.com", AccessToken: "c"},
	} {
		require.NoError(t, storage.StoreSession(context.Background(), session))
	}
}

func newTestHandler(storage *repository.MemorySessionStorage) *HTTPHandler {
	logger := zerolog.Nop()
	dispatcher := NewDispatcher(logger,
		NewAppUninstalledHandler(storage, logger),
		NewCustomerPrivacyHandler(logger),
	)
	return NewHTTPHandler("key", testSecret, dispatcher, metrics.New(prometheus.NewRegistry()), logger)
}

func TestHTTPHandler_AppUninstalled(t *testing.T) {
	t.Parallel()

	storage := repository.NewMemorySessionStorage()
	seedSessions(t, storage)
	handler := newTestHandler(storage)

	body := `{"id":1,"domain":"shop.example.com","myshopify_domain":"my-shop.myshopify.com"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, webhookRequest(TopicAppUninstalled, testShop, body, sign(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":"true"}`, rec.Body.String())

	sessions, err := storage.FindSessionsByShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	other, err := storage.FindSessionsByShop(context.Background(), "other.myshopify.com")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestHTTPHandler_Rejections(t *testing.T) {
	t.Parallel()

	body := `{"myshopify_domain":"my-shop.myshopify.com"}`

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		storage := repository.NewMemorySessionStorage()
		seedSessions(t, storage)

		rec := httptest.NewRecorder()
		newTestHandler(storage).ServeHTTP(rec, webhookRequest(TopicAppUninstalled, testShop, body, sign("other body")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		sessions, err := storage.FindSessionsByShop(context.Background(), testShop)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("missing topic", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		newTestHandler(repository.NewMemorySessionStorage()).ServeHTTP(rec, webhookRequest("", testShop, body, sign(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown topic is acknowledged", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		newTestHandler(repository.NewMemorySessionStorage()).ServeHTTP(rec, webhookRequest("products/update", testShop, body, sign(body)))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("handler failure asks for a retry", func(t *testing.T) {
		t.Parallel()
		bad := `not json`
		rec := httptest.NewRecorder()
		newTestHandler(repository.NewMemorySessionStorage()).ServeHTTP(rec, webhookRequest(TopicShopRedact, "", bad, sign(bad)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAppUninstalledHandler_ShopFromPayload(t *testing.T) {
	t.Parallel()

	storage := repository.NewMemorySessionStorage()
	seedSessions(t, storage)
	h := NewAppUninstalledHandler(storage, zerolog.Nop())

	err := h.Handle(context.Background(), &Event{
		Topic:   TopicShopRedact,
		Payload: []byte(`{"shop_id":1,"shop_domain":"my-shop.myshopify.com"}`),
	})
	require.NoError(t, err)

	sessions, err := storage.FindSessionsByShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	err = h.Handle(context.Background(), &Event{Topic: TopicAppUninstalled, Payload: []byte(`{"domain":"example.com"}`)})
	assert.Error(t, err)
}

type failingCleaner struct{}

func (failingCleaner) DeleteSessionsByShop(context.Context, string) (int64, error) {
	return 0, errors.New("storage down")
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()
	d := NewDispatcher(logger, NewCustomerPrivacyHandler(logger))

	handled, err := d.Dispatch(context.Background(), &Event{Topic: TopicCustomersDataRequest, Payload: []byte(`{"shop_domain":"my-shop.myshopify.com","customer":{"id":7},"orders_requested":[1,2]}`)})
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = d.Dispatch(context.Background(), &Event{Topic: TopicAppUninstalled, Shop: testShop})
	require.NoError(t, err)
	assert.False(t, handled)

	d.Register(NewAppUninstalledHandler(failingCleaner{}, logger))
	handled, err = d.Dispatch(context.Background(), &Event{Topic: TopicAppUninstalled, Shop: testShop})
	assert.True(t, handled)
	assert.ErrorContains(t, err, "storage down")
}
