package handlers

import (
	"net/http"
	"time"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":       "healthy",
			"online_users": s.Registry.Count(),
			"server_time":  time.Now().UTC(),
		}
		if s.Metrics != nil {
			body["uptime_seconds"] = int64(s.Metrics.Uptime().Seconds())
		}
		s.writeJSON(w, http.StatusOK, body)
	}
}
