package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// AuthConfig holds the shared-secret authentication configuration. This
// is a service-to-service API, not a multi-tenant one: callers present a
// single pre-shared secret rather than per-user credentials.
type AuthConfig struct {
	// SharedSecret is the expected value of the SharedSecretHeader. An
	// empty secret disables authentication (development only).
	SharedSecret string
}

// AuthMiddleware validates the shared-secret header using a
// constant-time comparison.
//
// On success, the request passes through unmodified. On failure, it
// returns 401 Unauthorized.
func AuthMiddleware(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config.SharedSecret == "" {
			return next
		}
		expected := []byte(config.SharedSecret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(SharedSecretHeader))
			if len(provided) != len(expected) || subtle.ConstantTimeCompare(provided, expected) != 1 {
				writeUnauthorized(w, r, "missing or invalid shared secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes 401 Unauthorized response
func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	requestID := GetRequestID(r.Context())
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":       "AUTHENTICATION_ERROR",
			"message":    message,
			"request_id": requestID,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(errorResponse)
}
