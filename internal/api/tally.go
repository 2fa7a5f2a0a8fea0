package api

import (
	"errors"
	"net/http"

	"github.com/stagelink/tally-core/internal/relay"
)

// handleTallyBulk applies a dashboard bulk tally update. Entries are
// isolated; a malformed entry settles its device to idle instead of
// failing the batch.
//
// POST /api/tally/bulk with {"deviceStatus": {"<id>": {...}}}
func (s *Server) handleTallyBulk(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	applied, err := s.relay.HandleBulk(r.Context(), payload)
	if errors.Is(err, relay.ErrInvalidPayload) {
		writeBadRequest(w, "deviceStatus object is required")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"applied": applied,
	})
}
