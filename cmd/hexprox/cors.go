package main

import (
	"net/http"

	hexprox "github.com/hexprox/hexprox"
)

// corsMiddleware returns middleware that sets CORS headers for requests from
// origins on the proxy allow-list. The same policy that decides redirect-vs-
// proxy decides header emission, so a browser that gets proxied tile bytes
// can actually read them.
func corsMiddleware(policy *hexprox.OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && policy.Allows(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
