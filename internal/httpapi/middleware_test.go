package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedirectTarget(t *testing.T) {
	form := httptest.NewRequest(http.MethodPost, "/", nil)
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	js := httptest.NewRequest(http.MethodPost, "/", nil)
	js.Header.Set("Content-Type", "application/json; charset=utf-8")

	tests := []struct {
		name     string
		r        *http.Request
		returnTo string
		want     string
		ok       bool
	}{
		{"relative path", form, "/pages/merci", "/pages/merci?status=success", true},
		{"keeps query", form, "/pages/merci?a=1", "/pages/merci?a=1&status=success", true},
		{"json caller", js, "/pages/merci", "", false},
		{"empty", form, "", "", false},
		{"absolute", form, "https://evil.example/x", "", false},
		{"protocol relative", form, "//evil.example/x", "", false},
		{"backslash", form, `/\evil.example`, "", false},
		{"no leading slash", form, "pages/merci", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := redirectTarget(tt.r, tt.returnTo, map[string][]string{"status": {"success"}})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	hit := func(remote string) int {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = remote + ":4711"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("41.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("41.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("41.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("41.0.0.2"))
}

func TestRateLimiterIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	rl := newRateLimiter(1, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	allowed := 0
	for i := 0; i < 20; i++ {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "41.0.0.1:4711"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.2.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimiterKey(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("23.227.38.0/24")}
	rl := newRateLimiter(1, 1, proxies...)

	tests := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{name: "untrusted peer", remote: "41.0.0.1:1", xff: []string{"1.2.3.4"}, want: "41.0.0.1"},
		{name: "trusted peer", remote: "10.0.0.5:1", xff: []string{"41.0.0.9"}, want: "41.0.0.9"},
		{name: "spoofed left hop", remote: "10.0.0.5:1", xff: []string{"6.6.6.6, 41.0.0.9"}, want: "41.0.0.9"},
		{name: "proxy chain", remote: "10.0.0.5:1", xff: []string{"41.0.0.9, 23.227.38.4"}, want: "41.0.0.9"},
		{name: "split headers", remote: "10.0.0.5:1", xff: []string{"6.6.6.6", "41.0.0.9"}, want: "41.0.0.9"},
		{name: "garbage hop", remote: "10.0.0.5:1", xff: []string{"41.0.0.9, nonsense"}, want: "10.0.0.5"},
		{name: "no header", remote: "10.0.0.5:1", want: "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, rl.key(r))
		})
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := newRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.allow("a")

	now = now.Add(5 * time.Minute)
	rl.allow("b")
	rl.prune(3 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestRecovererAnswersGeneric500(t *testing.T) {
	s := &server{log: zap.NewNop()}
	h := requestID(s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("db password is hunter2")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/proxy/cod/submit", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "hunter2"))
	assert.Contains(t, w.Body.String(), genericFailure)
}

func TestRequestIDIsReused(t *testing.T) {
	var seen string
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}
