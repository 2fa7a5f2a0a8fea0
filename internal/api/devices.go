package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stagelink/tally-core/internal/device"
)

// handleListDevices returns all registered devices.
//
// GET /api/devices
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice registers a device manually from a dashboard. A
// payload without an ID gets a generated one. Manual creation is not
// contact from the device, so the record stays offline until its first
// heartbeat or announcement.
//
// POST /api/devices
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.relay.CreateDevice(r.Context(), payload)
	if errors.Is(err, device.ErrIDReused) {
		writeConflict(w, "device id was deleted and cannot be reused")
		return
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleGetDevice returns a single device record.
//
// GET /api/devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateDevice applies a partial edit to a device.
//
// PATCH /api/devices/{id}
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payload, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.relay.UpdateDevice(r.Context(), id, payload)
	if errors.Is(err, device.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteDevice removes a device. Deletion is idempotent; deleting
// an unknown ID still succeeds.
//
// DELETE /api/devices/{id}
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.relay.RemoveDevice(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
