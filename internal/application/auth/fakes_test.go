package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/repository"
	"shopify-admin-auth/internal/infrastructure/shopify"
	"shopify-admin-auth/internal/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "test_api_key"
	testAPISecret = "test_secret"
	testAppURL    = "https://app.example.com"
	testShop      = "my-shop.myshopify.com"
	testUserID    = "42"
)

// testHost is base64("admin.shopify.com/store/my-shop")
const testHost = "YWRtaW4uc2hvcGlmeS5jb20vc3RvcmUvbXktc2hvcA=="

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() domain.AppConfig {
	return domain.AppConfig{
		APIKey:        testAPIKey,
		APISecret:     testAPISecret,
		Scopes:        domain.ParseScopes("write_products"),
		AppURL:        testAppURL,
		IsEmbeddedApp: true,
		TokenExchange: true,
		CheckAudience: true,
	}.WithDefaults()
}

func sessionToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := shopify.SessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + testShop + "/admin",
			Subject:   testUserID,
			Audience:  []string{testAPIKey},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Minute)),
		},
		Dest: "https://" + testShop,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAPISecret))
	require.NoError(t, err)
	return raw
}

func validToken(t *testing.T) string {
	return sessionToken(t, testNow.Add(time.Minute))
}

func expiredToken(t *testing.T) string {
	return sessionToken(t, testNow.Add(-time.Hour))
}

// fakeTokenClient records token endpoint calls and issues predictable grants
type fakeTokenClient struct {
	mu          sync.Mutex
	exchanges   []ports.TokenExchangeInput
	refreshes   []string
	codes       []string
	exchangeErr error
	refreshErr  error
	callbackOK  bool
	issued      atomic.Int64
	delay       time.Duration
}

func (f *fakeTokenClient) ExchangeToken(_ context.Context, input ports.TokenExchangeInput) (*domain.Session, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.exchanges = append(f.exchanges, input)
	err := f.exchangeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.issue(input.Shop, input.RequestedTokenType == ports.OnlineAccessToken), nil
}

func (f *fakeTokenClient) RefreshToken(_ context.Context, shop string, refreshToken string) (*domain.Session, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, refreshToken)
	err := f.refreshErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	session := f.issue(shop, false)
	session.RefreshToken = "refresh-next"
	return session, nil
}

func (f *fakeTokenClient) ExchangeCode(_ context.Context, shop string, code string, isOnline bool) (*domain.Session, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	return f.issue(shop, isOnline), nil
}

func (f *fakeTokenClient) AuthorizeURL(shop string, state string, isOnline bool) (string, error) {
	query := url.Values{"client_id": {testAPIKey}, "state": {state}}
	if isOnline {
		query.Set("grant_options[]", "per-user")
	}
	return "https://" + shop + "/admin/oauth/authorize?" + query.Encode(), nil
}

func (f *fakeTokenClient) VerifyCallback(*url.URL) (bool, error) {
	return f.callbackOK, nil
}

func (f *fakeTokenClient) issue(shop string, isOnline bool) *domain.Session {
	n := f.issued.Add(1)
	expires := testNow.Add(time.Hour)
	session := &domain.Session{
		ID:          domain.OfflineSessionID(shop),
		Shop:        shop,
		IsOnline:    isOnline,
		Scope:       "write_products",
		AccessToken: "token-" + strconv.FormatInt(n, 10),
		Expires:     &expires,
	}
	if isOnline {
		session.ID = domain.OnlineSessionID(shop, testUserID)
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{
			AssociatedUserScope: "write_products",
			AssociatedUser:      domain.AssociatedUser{ID: 42},
		}
	}
	return session
}

func (f *fakeTokenClient) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exchanges)
}

func (f *fakeTokenClient) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshes)
}

// spyStorage counts session loads on top of the memory storage
type spyStorage struct {
	*repository.MemorySessionStorage
	loads atomic.Int64
}

func newSpyStorage() *spyStorage {
	return &spyStorage{MemorySessionStorage: repository.NewMemorySessionStorage()}
}

func (s *spyStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	s.loads.Add(1)
	return s.MemorySessionStorage.LoadSession(ctx, id)
}

// fakeAdminAPI fails every call with err
type fakeAdminAPI struct {
	err   error
	calls atomic.Int64
}

func (f *fakeAdminAPI) GraphQL(context.Context, *domain.Session, string, map[string]any, any) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeAdminAPI) REST(context.Context, *domain.Session, ports.RESTRequest, any) error {
	f.calls.Add(1)
	return f.err
}

type testEnv struct {
	deps    Deps
	storage *spyStorage
	tokens  *fakeTokenClient
	admin   *fakeAdminAPI
}

func newTestEnv(cfg domain.AppConfig) *testEnv {
	env := &testEnv{
		storage: newSpyStorage(),
		tokens:  &fakeTokenClient{callbackOK: true},
		admin:   &fakeAdminAPI{},
	}
	env.deps = Deps{
		Config:    cfg,
		Storage:   env.storage,
		Tokens:    env.tokens,
		Validator: shopify.NewSessionTokenValidator(testAPIKey, testAPISecret).WithClock(func() time.Time { return testNow }),
		AdminAPI:  env.admin,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testNow },
	}
	return env
}

func (e *testEnv) authenticator(t *testing.T) *AdminAuthenticator {
	t.Helper()
	a, err := NewAdminAuthenticator(e.deps)
	require.NoError(t, err)
	return a
}

func storedSession(t *testing.T, storage ports.SessionStorage, session *domain.Session) {
	t.Helper()
	require.NoError(t, storage.StoreSession(context.Background(), session))
}

func activeOfflineSession() *domain.Session {
	expires := testNow.Add(time.Hour)
	return &domain.Session{
		ID:          domain.OfflineSessionID(testShop),
		Shop:        testShop,
		Scope:       "write_products",
		AccessToken: "stored-token",
		Expires:     &expires,
	}
}

// embeddedRequest builds a document load from Shopify admin with a session token
func embeddedRequest(method, path string, token string) *http.Request {
	query := url.Values{
		"embedded": {"1"},
		"shop":     {testShop},
		"host":     {testHost},
	}
	if token != "" {
		query.Set("id_token", token)
	}
	return httptest.NewRequest(method, testAppURL+path+"?"+query.Encode(), nil)
}

// dataRequest builds a fetch from the app frontend
func dataRequest(method, path, token string) *http.Request {
	r := httptest.NewRequest(method, testAppURL+path, nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func requireResponse(t *testing.T, err error) *domain.Response {
	t.Helper()
	resp, ok := domain.AsResponse(err)
	require.True(t, ok, "expected *domain.Response, got %v", err)
	return resp
}
