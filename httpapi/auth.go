package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuth gates every route behind a single configured username/password
// pair. The password may be stored as a bcrypt hash ("$2..." prefix) or,
// for local/dev configs, as plaintext, which is compared in constant time.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) check(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) != 1 {
		return false
	}
	if strings.HasPrefix(a.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(a.Password)) == 1
}

// Middleware wraps next with an HTTP Basic Auth gate; on failure it writes
// the fail envelope with a 401 rather than letting next run.
func (a BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pogoAccountServer"`)
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
