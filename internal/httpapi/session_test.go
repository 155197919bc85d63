package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cod-order-service/internal/modal"
)

func shopifyToken(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims() SessionClaims {
	now := time.Now()
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + testShop + "/admin",
			Subject:   "42",
			Audience:  jwt.ClaimStrings{testAPIKey},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Dest: "https://" + testShop,
	}
}

func TestSessionVerify(t *testing.T) {
	v := NewSessionVerifier(testSecret, testAPIKey)

	claims, shop, err := v.Verify(shopifyToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, testShop, shop)
	assert.Equal(t, "42", claims.Subject)

	t.Run("wrong secret", func(t *testing.T) {
		_, _, err := v.Verify(shopifyToken(t, "other", validClaims()))
		assert.Error(t, err)
	})
	t.Run("expired", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, _, err := v.Verify(shopifyToken(t, testSecret, c))
		assert.Error(t, err)
	})
	t.Run("wrong audience", func(t *testing.T) {
		c := validClaims()
		c.Audience = jwt.ClaimStrings{"someone-else"}
		_, _, err := v.Verify(shopifyToken(t, testSecret, c))
		assert.Error(t, err)
	})
	t.Run("dest is not a shop", func(t *testing.T) {
		c := validClaims()
		c.Dest = "https://evil.example.com"
		c.Issuer = ""
		_, _, err := v.Verify(shopifyToken(t, testSecret, c))
		assert.Error(t, err)
	})
	t.Run("issuer mismatch", func(t *testing.T) {
		c := validClaims()
		c.Issuer = "https://other.myshopify.com/admin"
		_, _, err := v.Verify(shopifyToken(t, testSecret, c))
		assert.Error(t, err)
	})
	t.Run("no secret", func(t *testing.T) {
		_, _, err := NewSessionVerifier("", testAPIKey).Verify(shopifyToken(t, testSecret, validClaims()))
		assert.Error(t, err)
	})
}

func TestSessionMintRoundTrip(t *testing.T) {
	v := NewSessionVerifier(testSecret, testAPIKey)
	tok, err := v.Mint(testShop, "42", time.Hour)
	require.NoError(t, err)

	_, shop, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, testShop, shop)
}

func TestSessionMiddleware(t *testing.T) {
	v := NewSessionVerifier(testSecret, testAPIKey)
	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ShopFromContext(r.Context())
	}))
	tok := shopifyToken(t, testSecret, validClaims())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/ui", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testShop, seen)
	assert.Empty(t, w.Result().Cookies())

	seen = ""
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui?id_token="+tok, nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	seen = ""
	r = httptest.NewRequest(http.MethodGet, "/ui/wf/x", nil)
	r.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testShop, seen)
}

func TestAdminListsOnlyOwnShop(t *testing.T) {
	f := newFixture(t, modal.DraftOrderResult{})
	ctx := t.Context()
	_, err := f.store.RecordAbandonment(ctx, testShop, "a", modal.Contact{Phone: "0555123456"}, nil, nil)
	require.NoError(t, err)
	_, err = f.store.RecordAbandonment(ctx, "other.myshopify.com", "b", modal.Contact{Phone: "0555123456"}, nil, nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/abandoned-carts?limit=10", nil)
	r.Header.Set("Authorization", "Bearer "+shopifyToken(t, testSecret, validClaims()))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"sessionId":"a"`)
	assert.NotContains(t, w.Body.String(), `"sessionId":"b"`)

	r = httptest.NewRequest(http.MethodGet, "/admin/api/abandoned-carts?cursor=garbage", nil)
	r.Header.Set("Authorization", "Bearer "+shopifyToken(t, testSecret, validClaims()))
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/api/abandoned-carts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
