package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/utils"
)

type contextKey string

const userIDKey contextKey = "staff_user"

// credentialTTL is how long a verified user/password pair skips bcrypt.
const credentialTTL = 5 * time.Minute

// dummyHash keeps the response time of unknown users close to known ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-user"), bcrypt.DefaultCost)

type Authenticator struct {
	realm string
	users map[string][]byte
	log   *logger.Logger

	mu       sync.Mutex
	verified map[[32]byte]time.Time
	now      func() time.Time
}

func NewAuthenticator(cfg config.AuthConfig, log *logger.Logger) *Authenticator {
	users := make(map[string][]byte, len(cfg.Users))
	for name, hash := range cfg.Users {
		users[name] = []byte(hash)
	}
	realm := cfg.Realm
	if realm == "" {
		realm = "checkin"
	}
	return &Authenticator{
		realm:    realm,
		users:    users,
		log:      log,
		verified: map[[32]byte]time.Time{},
		now:      time.Now,
	}
}

// Enabled reports whether any staff user is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.users) > 0
}

// Check verifies a user/password pair against the configured bcrypt hashes.
func (a *Authenticator) Check(user, password string) bool {
	key := sha256.Sum256([]byte(user + "\x00" + password))

	a.mu.Lock()
	expiresAt, ok := a.verified[key]
	a.mu.Unlock()
	if ok && a.now().Before(expiresAt) {
		return true
	}

	hash, known := a.users[user]
	if !known {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return false
	}

	a.mu.Lock()
	a.verified[key] = a.now().Add(credentialTTL)
	a.mu.Unlock()
	return true
}

// Middleware requires HTTP basic auth from a configured staff user. With no
// users configured every request passes.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !a.Check(user, password) {
			if ok {
				a.log.Warn("AUTH", fmt.Sprintf("Rejected credentials for %q from %s", user, r.RemoteAddr))
			}
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, a.realm))
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", "valid staff credentials required")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated staff user name, or "".
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
