package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	minute := int64(100)
	restore := nowMinute
	nowMinute = func() int64 { return minute }
	defer func() { nowMinute = restore }()

	handler := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1234"))

	// Other callers are counted separately.
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234"))

	// A new window resets the exhausted caller.
	minute++
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234"))
}

func TestRateLimitKeysOnUser(t *testing.T) {
	minute := int64(7)
	restore := nowMinute
	nowMinute = func() int64 { return minute }
	defer func() { nowMinute = restore }()

	handler := RateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(userID int64) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = WithUser(req, User{ID: userID, Email: "u@example.com"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same address, different identities: independent budgets.
	assert.Equal(t, http.StatusNoContent, do(1))
	assert.Equal(t, http.StatusTooManyRequests, do(1))
	assert.Equal(t, http.StatusNoContent, do(2))
}

func TestAdminRejectsNonAdmins(t *testing.T) {
	handler := Admin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, WithUser(req, User{ID: 1}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, WithUser(req, User{ID: 1, IsAdmin: true}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
