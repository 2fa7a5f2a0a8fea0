package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stagelink/tally-core/internal/device"
)

// decodeBody parses a JSON request body into a raw payload map.
// Devices and dashboards disagree on field naming, so handlers hand
// the raw map to the normalizer instead of binding to structs.
func decodeBody(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return payload, nil
}

// handleRegister processes an ESP32 self-registration.
//
// POST /api/esp32/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.relay.HandleRegister(r.Context(), payload)
	if errors.Is(err, device.ErrIDReused) {
		writeConflict(w, "device id was deleted and cannot be reused")
		return
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"device":  rec,
	})
}

// handleHeartbeat processes a device heartbeat. The response echoes the
// desired tally state so a device that missed a push resynchronizes on
// its next beat.
//
// POST /api/heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.relay.HandleHeartbeat(r.Context(), payload)
	if errors.Is(err, device.ErrMissingID) {
		writeBadRequest(w, "deviceId is required")
		return
	}
	if errors.Is(err, device.ErrIDReused) {
		writeConflict(w, "device id was deleted and cannot be reused")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"deviceId":       rec.ID,
		"tallyState":     rec.Tally,
		"assignedSource": rec.AssignedSource,
	})
}
