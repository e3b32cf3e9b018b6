package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerKey(t *testing.T) {
	krl := New(0.001, 2)

	assert.True(t, krl.Allow("a"))
	assert.True(t, krl.Allow("a"))
	assert.False(t, krl.Allow("a"))

	// other keys have their own bucket
	assert.True(t, krl.Allow("b"))
}

func TestMiddleware(t *testing.T) {
	krl := New(0.001, 1)
	h := krl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := func(remote string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = remote
		return r
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req("10.0.0.1:5555"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req("10.0.0.1:6666"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"status":"fail","message":"too many requests, try again later"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req("10.0.0.2:5555"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.7:1234"
	assert.Equal(t, "192.168.1.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
