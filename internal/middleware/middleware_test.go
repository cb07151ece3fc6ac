package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testJWTKey     = []byte("jwt-key")
	testSessionKey = []byte("0123456789abcdef0123456789abcdef")
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func sessionCookies(t *testing.T, store *sessions.CookieStore, token string) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	sess, err := store.Get(req, SessionName)
	require.NoError(t, err)
	sess.Values["jwt"] = token
	require.NoError(t, sess.Save(req, rec))
	return rec.Result().Cookies()
}

func requestWith(cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestAdminAuthenticatedMiddleware(t *testing.T) {
	store := sessions.NewCookieStore(testSessionKey)
	h := AdminAuthenticatedMiddleware(store, testJWTKey, ok)

	rec := httptest.NewRecorder()
	h(rec, requestWith(nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))

	tk, err := NewAdminJWT("admin@example.com", testJWTKey, time.Hour)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h(rec, requestWith(sessionCookies(t, store, tk)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuthenticatedAPIMiddleware(t *testing.T) {
	store := sessions.NewCookieStore(testSessionKey)
	h := AdminAuthenticatedAPIMiddleware(store, testJWTKey, ok)

	forged, err := NewAdminJWT("admin@example.com", []byte("other-key"), time.Hour)
	require.NoError(t, err)
	expired, err := NewAdminJWT("admin@example.com", testJWTKey, -time.Minute)
	require.NoError(t, err)

	for name, tk := range map[string]string{"forged": forged, "expired": expired, "garbage": "abc"} {
		tk := tk
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, requestWith(sessionCookies(t, store, tk)))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"success":false,"message":"Unauthorized"}`, rec.Body.String())
		})
	}
}

func TestMachineAuthenticatedMiddleware(t *testing.T) {
	h := MachineAuthenticatedMiddleware("machine", ok)

	req := httptest.NewRequest(http.MethodPost, "/x/task/logo-sweep", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, token := range []string{"machin", "machine2", "MACHINE"} {
		req.Header.Set("x-machine-token", token)
		rec = httptest.NewRecorder()
		h(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, token)
	}

	req.Header.Set("x-machine-token", "machine")
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMachineAuthenticatedMiddleware_NoTokenConfigured(t *testing.T) {
	h := MachineAuthenticatedMiddleware("", ok)

	req := httptest.NewRequest(http.MethodPost, "/x/task/logo-sweep", nil)
	req.Header.Set("x-machine-token", "")
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPSMiddleware(t *testing.T) {
	h := HTTPSMiddleware(http.HandlerFunc(ok), "prod")

	req := httptest.NewRequest(http.MethodGet, "http://example.com/job/1?x=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/job/1?x=1", rec.Header().Get("Location"))

	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 27)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "given", rec.Header().Get(RequestIDHeader))
}
