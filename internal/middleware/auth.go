package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const HeaderAPIKey = "X-API-Key"

type authErr struct {
	Error string `json:"error"`
}

// WriteGate requires the X-API-Key header to equal apiKey. An empty apiKey
// disables the check.
func WriteGate(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if constantTimeEq(r.Header.Get(HeaderAPIKey), apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w, `ApiKey realm="tasks", header="X-API-Key"`)
		})
	}
}

func constantTimeEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")
	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authErr{Error: "Invalid or missing API key"})
}
