package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// skipAuthPaths lists path prefixes that bypass bearer-token
// authentication: infrastructure endpoints that must stay reachable
// without a caller identity.
var skipAuthPaths = []string{
	"/health",
	"/ready",
	"/metrics",
}

// authMiddleware implements the admission front-end's authentication
// step: it requires "Authorization: Bearer <token>", resolves it
// through the bloom negative cache before ever touching the relational
// store, and injects the caller name into the request
// context on success.
func (m *Module) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skipAuthPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, "Invalid API key")
				return
			}

			if !m.bloom.mightBeValid(token) {
				writeAuthError(w, "Invalid API key")
				return
			}

			key, err := m.service.Authenticate(r.Context(), token)
			if err != nil {
				m.logger.Error("failed to authenticate caller", "error", err, "path", r.URL.Path)
				writeAuthError(w, "Invalid API key")
				return
			}
			if key == nil {
				writeAuthError(w, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, key.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false if the header is missing or malformed.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
