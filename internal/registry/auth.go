package registry

import (
	"crypto/subtle"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// PasswordFormat selects how AuthGuard compares an incoming password
// against the configured one: plain text or a bcrypt hash.
type PasswordFormat string

const (
	PasswordPlain  PasswordFormat = "plain"
	PasswordBcrypt PasswordFormat = "bcrypt"
)

// AuthGuard wraps an http.Handler with HTTP Basic Authentication. An empty
// Username disables the guard entirely.
type AuthGuard struct {
	Realm    string
	Username string
	Password string
	Format   PasswordFormat
}

// Wrap returns next unchanged if no username is configured, otherwise an
// http.Handler that demands matching Basic credentials before calling next.
func (g *AuthGuard) Wrap(next http.Handler) http.Handler {
	if g.Username == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !g.matches(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+g.Realm+`"`)
			log.Printf("[WARN] registry: auth failed for user %q from %s", username, r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *AuthGuard) matches(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(g.Username)) != 1 {
		return false
	}
	if g.Format == PasswordBcrypt {
		return bcrypt.CompareHashAndPassword([]byte(g.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(g.Password)) == 1
}
