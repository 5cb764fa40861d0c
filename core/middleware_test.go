package core

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiterAllow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoginRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "limits are per client")

	now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "token refills after one second")
}

func TestLoginRateLimiterPrunesIdleClients(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoginRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(time.Hour)
	l.Allow("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	l := NewLoginRateLimiter(0.001, 1)
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusNoContent, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, requestIDFrom(c)) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
}

func TestOriginRefererMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://partner.example"}
	r := gin.New()
	r.Use(OriginRefererMiddleware(cfg))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(header, value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("", "").Code)
	assert.Equal(t, http.StatusNoContent, do("Origin", "http://example.com").Code, "same host")
	assert.Equal(t, http.StatusForbidden, do("Origin", "https://evil.example").Code)
	assert.Equal(t, http.StatusForbidden, do("Referer", "https://evil.example/page").Code)

	rec := do("Origin", "https://partner.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://partner.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCSRFMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	store, err := NewSessionStore(cfg, nil)
	require.NoError(t, err)
	sm := NewSessionManager(cfg, store)

	r := gin.New()
	r.Use(SessionMiddleware(sm), CSRFMiddleware(cfg, sm))
	r.GET("/form", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ctxCSRFKey)) })
	r.POST("/form", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Body.String()
	require.NotEmpty(t, token)
	cookie := sessionCookie(t, rec)

	post := func(form url.Values, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set(csrfHeader, header)
		}
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, post(url.Values{}, ""))
	assert.Equal(t, http.StatusForbidden, post(url.Values{csrfFormField: {"wrong"}}, ""))
	assert.Equal(t, http.StatusNoContent, post(url.Values{csrfFormField: {token}}, ""))
	assert.Equal(t, http.StatusNoContent, post(url.Values{}, token))
}
