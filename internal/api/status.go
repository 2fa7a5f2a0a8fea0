package api

import (
	"net/http"
	"time"
)

// handleStatus reports the relay's view of the world: OBS connection,
// registry summary, and uptime.
//
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.List()
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}

	obsStatus := s.relay.OBSStatus()

	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"uptime":  int64(time.Since(s.startedAt).Seconds()),
		"obs": map[string]any{
			"connected": obsStatus.Connected,
			"streaming": obsStatus.Streaming,
			"message":   obsStatus.Message,
		},
		"devices": map[string]any{
			"total":  len(devices),
			"online": online,
		},
		"websocketClients": s.hub.ClientCount(),
	})
}
