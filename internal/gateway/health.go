package gateway

import (
	"context"
	"net/http"
	"time"
)

// persistenceProbeTimeout bounds the persister availability check.
const persistenceProbeTimeout = 2 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status         string  `json:"status"`      // "ok" or "degraded"
	Persistence    string  `json:"persistence"` // "available", "unavailable" or "none"
	HistoryStale   bool    `json:"history_stale"`
	HistoryEntries int     `json:"history_entries"`
	WebSessions    int     `json:"web_sessions"`
	Uptime         float64 `json:"uptime_seconds"`
}

// handleHealth returns an http.HandlerFunc for GET /health. An unavailable
// storage medium degrades the status but the process stays live: chats keep
// working in memory, so the response is always 200.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:      "ok",
			Persistence: "none",
			Uptime:      g.now().Sub(g.startedAt).Truncate(time.Second).Seconds(),
		}
		if g.sessions != nil {
			resp.WebSessions = g.sessions.Len()
		}
		if g.history != nil {
			resp.HistoryEntries = g.history.Len()
			resp.HistoryStale = g.history.Stale()
		}
		if g.persister != nil {
			ctx, cancel := context.WithTimeout(r.Context(), persistenceProbeTimeout)
			defer cancel()
			resp.Persistence = "available"
			if !g.persister.Available(ctx) {
				resp.Persistence = "unavailable"
				resp.Status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
