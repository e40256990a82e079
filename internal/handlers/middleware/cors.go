package middleware

import (
	"net/http"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type, idempotency-key"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// CORSMiddleware lets browsers of any origin call the API.
// Preflight requests are answered right away with "ok".
func CORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)

			if r.Method == http.MethodOptions {
				h.Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
