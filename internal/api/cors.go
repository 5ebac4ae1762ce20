package api

import (
	"net/http"
	"net/url"
	"strings"
)

// applyCORS rejects foreign origins with 403 and reports whether the request
// may proceed. Loopback origins are always allowed.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !s.isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+sessionHeader+", "+idempotencyHeader)
	w.Header().Set("Access-Control-Expose-Headers", sessionHeader)
	return true
}

func (s *Server) isAllowedOrigin(raw string) bool {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(raw, "/")) {
			return true
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// preflight answers OPTIONS requests after CORS; it reports true when the
// request was fully handled.
func (s *Server) preflight(w http.ResponseWriter, r *http.Request) bool {
	if !s.applyCORS(w, r) {
		return true
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}
