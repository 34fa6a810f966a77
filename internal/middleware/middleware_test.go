package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"socialhub/internal/apperr"
	"socialhub/internal/auth"
	"socialhub/internal/models"
	"socialhub/internal/token"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestStructuredLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestID(StructuredLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/auth/login", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimitPerIP(t *testing.T) {
	h := NewRateLimiter(2).Middleware(ok)
	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestClientIPTrustsOnlyConfiguredProxies(t *testing.T) {
	open := NewRateLimiter(1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "5.6.7.8:9"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "5.6.7.8", open.clientIP(req))

	proxied, err := NewRateLimiter(1).WithTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 1.2.3.4, 192.168.1.1")
	assert.Equal(t, "1.2.3.4", proxied.clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Real-IP", "4.4.4.4")
	assert.Equal(t, "4.4.4.4", proxied.clientIP(req))

	_, err = NewRateLimiter(1).WithTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := NewRateLimiter(1).Middleware(ok)
	call := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "7.7.7.7:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("2.2.2.2"))
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	l := NewRateLimiter(5)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.limiter("1.1.1.1")
	l.limiter("2.2.2.2")
	assert.Equal(t, 2, l.Len())

	now = now.Add(DefaultIdleTTL / 2)
	l.limiter("2.2.2.2")

	now = now.Add(DefaultIdleTTL/2 + time.Second)
	l.limiter("3.3.3.3")
	assert.Equal(t, 2, l.Len())
	assert.NotContains(t, l.visitors, "1.1.1.1")
	assert.Contains(t, l.visitors, "2.2.2.2")
}

type fakeAuth struct {
	header string
	kind   token.Kind
	roles  []models.Role
	err    error
}

func (f *fakeAuth) Authenticate(_ context.Context, header string, kind token.Kind) (*auth.Session, error) {
	f.header, f.kind = header, kind
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Session{Account: &models.Account{Email: "a@x.com"}}, nil
}

func (f *fakeAuth) Authorize(ctx context.Context, header string, kind token.Kind, roles ...models.Role) (*auth.Session, error) {
	f.roles = roles
	return f.Authenticate(ctx, header, kind)
}

func TestGateStoresSession(t *testing.T) {
	fa := &fakeAuth{}
	var email string
	h := NewGate(fa, zap.NewNop()).Authentication(token.Refresh)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		email = sess.Account.Email
	}))

	req := httptest.NewRequest(http.MethodPost, "/user/refresh-token", nil)
	req.Header.Set("Authorization", "Bearer abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "a@x.com", email)
	assert.Equal(t, "Bearer abc", fa.header)
	assert.Equal(t, token.Refresh, fa.kind)
}

func TestGateRendersFailure(t *testing.T) {
	fa := &fakeAuth{err: apperr.Forbidden("You do not have permission to access this resource")}
	h := NewGate(fa, zap.NewNop()).Authorization(token.Access, models.RoleAdmin)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/user/x", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"You do not have permission to access this resource"}`, rec.Body.String())
	assert.Equal(t, []models.Role{models.RoleAdmin}, fa.roles)
}
