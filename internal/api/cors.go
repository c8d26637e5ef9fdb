package api

import (
	"net/http"
	"slices"
)

// corsMiddleware answers CORS for the portal front end. If no allowed
// origins are configured, it passes through without setting headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(s.config.CORSAllowedOrigins) == 0 || origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !slices.Contains(s.config.CORSAllowedOrigins, origin) && !slices.Contains(s.config.CORSAllowedOrigins, "*") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
