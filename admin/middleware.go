package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/maxpert/ringfs/cfg"
)

// SecretHeader carries the cluster secret on admin requests. A bearer
// Authorization header is accepted as well.
const SecretHeader = "X-Ringfs-Secret"

// AuthMiddleware guards the file and cluster endpoints with the cluster secret
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.IsClusterAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		provided, err := requestSecret(r)
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !cfg.MatchClusterSecret(provided) {
			writeErrorResponse(w, http.StatusUnauthorized, "invalid secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestSecret(r *http.Request) (string, error) {
	if s := r.Header.Get(SecretHeader); s != "" {
		return s, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing authentication header")
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}
