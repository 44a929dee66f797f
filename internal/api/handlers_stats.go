package api

import (
	"net"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "server is running",
		"client_ip": ip,
		"time":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles":             len(s.service.Profiles().All()),
		"stored_schedules":     len(s.schedules.List()),
		"documents_generated":  s.stats.generated.Load(),
		"generation_failures":  s.stats.failed.Load(),
		"tokens_replaced":      s.stats.replaced.Load(),
		"unknown_tokens_found": s.stats.unknown.Load(),
	})
}
