package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/taqastore/storefront/internal/httputil"
	"github.com/taqastore/storefront/pkg/logger"
)

// TokenAuth guards mutating operational endpoints with static bearer
// tokens. This is deployment infrastructure auth; with no tokens
// configured the guarded endpoints stay open.
type TokenAuth struct {
	tokens []string
	log    *logger.Logger
}

// NewTokenAuth builds the guard from the configured token list.
func NewTokenAuth(tokens []string, log *logger.Logger) *TokenAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &TokenAuth{tokens: tokens, log: log}
}

// Enabled reports whether any token is configured.
func (a *TokenAuth) Enabled() bool {
	return len(a.tokens) > 0
}

// Wrap protects a single handler. Endpoints not wrapped stay public.
func (a *TokenAuth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteError(w, http.StatusUnauthorized,
				httputil.CodeUnauthorized,
				"missing Authorization header",
				"Send Authorization: Bearer <token>")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteError(w, http.StatusUnauthorized,
				httputil.CodeUnauthorized,
				"malformed Authorization header",
				"Send Authorization: Bearer <token>")
			return
		}

		if !a.tokenValid(parts[1]) {
			a.log.WithField("path", r.URL.Path).Warn("rejected invalid ops token")
			httputil.WriteError(w, http.StatusUnauthorized,
				httputil.CodeUnauthorized,
				"invalid token",
				"Check the configured operational tokens")
			return
		}

		next(w, r)
	}
}

func (a *TokenAuth) tokenValid(candidate string) bool {
	for _, token := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return true
		}
	}
	return false
}
