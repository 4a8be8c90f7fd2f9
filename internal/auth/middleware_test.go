package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	hash, err := bcrypt.GenerateFromPassword([]byte("door-2013"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(config.AuthConfig{
		Realm: "checkin",
		Users: map[string]string{"staff": string(hash)},
	}, logger.Nop())
}

func protected(a *Authenticator) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserID(r.Context())))
	}))
}

func TestMiddleware_AcceptsValidCredentials(t *testing.T) {
	handler := protected(newTestAuthenticator(t))

	req := httptest.NewRequest(http.MethodGet, "/api/attendees", nil)
	req.SetBasicAuth("staff", "door-2013")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff", rec.Body.String())
}

func TestMiddleware_RejectsBadCredentials(t *testing.T) {
	handler := protected(newTestAuthenticator(t))

	cases := map[string]func(r *http.Request){
		"missing":       func(r *http.Request) {},
		"wrong pass":    func(r *http.Request) { r.SetBasicAuth("staff", "nope") },
		"unknown user":  func(r *http.Request) { r.SetBasicAuth("intruder", "door-2013") },
		"bearer header": func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
	}
	for name, prepare := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/attendees", nil)
		prepare(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="checkin"`, name)
		assert.Contains(t, rec.Body.String(), `"success":false`, name)
	}
}

func TestMiddleware_OpenWhenNoUsersConfigured(t *testing.T) {
	handler := protected(NewAuthenticator(config.AuthConfig{}, logger.Nop()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attendees", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheck_CachesVerifiedCredentials(t *testing.T) {
	a := newTestAuthenticator(t)
	now := time.Date(2013, 9, 20, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	assert.True(t, a.Check("staff", "door-2013"))
	assert.Len(t, a.verified, 1)

	// cached entries still require the exact password
	assert.False(t, a.Check("staff", "door-2014"))

	// a rotated hash is honored once the cache entry expires
	a.users["staff"] = []byte("not-a-bcrypt-hash")
	assert.True(t, a.Check("staff", "door-2013"))
	now = now.Add(credentialTTL + time.Second)
	assert.False(t, a.Check("staff", "door-2013"))
}
