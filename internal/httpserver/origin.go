package httpserver

import (
	"net/http"
	"strings"

	"github.com/Muhammd-hafeef-th/Us/internal/origin"
)

// withOriginPolicy guards browser-facing JSON endpoints with the same origin
// policy the WebSocket mount enforces, and answers CORS preflight so a
// frontend on a separate origin can call them during development.
func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Origin"))
		if header == "" {
			next(w, r)
			return
		}

		o, ok := origin.Normalize(header)
		if !ok || !o.Allowed(r.Host, s.cfg.AllowedOrigins) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", o.Value)
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
			if requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); requestHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
