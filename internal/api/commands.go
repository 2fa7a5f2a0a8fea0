package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/gateway"
)

// deviceAddr resolves a device ID to its last-known address. The second
// return is false when the handler has already written a response.
func (s *Server) deviceAddr(w http.ResponseWriter, r *http.Request) (device.Record, bool) {
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return device.Record{}, false
	}
	return rec, true
}

// handleRestart reboots a device.
//
// POST /api/devices/{id}/restart
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceAddr(w, r)
	if !ok {
		return
	}

	result, err := s.gateway.Restart(r.Context(), rec.IPAddress)
	if errors.Is(err, gateway.ErrNoAddress) {
		writeBadRequest(w, "device has no known address")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeCommandResult(w, result)
}

// handleFirmwareEraseOld erases the inactive OTA slot on a device.
//
// POST /api/devices/{id}/firmware/erase-old
func (s *Server) handleFirmwareEraseOld(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceAddr(w, r)
	if !ok {
		return
	}

	result, err := s.gateway.EraseOld(r.Context(), rec.IPAddress)
	if errors.Is(err, gateway.ErrNoAddress) {
		writeBadRequest(w, "device has no known address")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeCommandResult(w, result)
}

// handleFirmwareInfo proxies the device's firmware partition report.
//
// GET /api/devices/{id}/firmware/info
func (s *Server) handleFirmwareInfo(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceAddr(w, r)
	if !ok {
		return
	}

	info, err := s.gateway.FirmwareInfo(r.Context(), rec.IPAddress)
	if errors.Is(err, gateway.ErrNoAddress) {
		writeBadRequest(w, "device has no known address")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(info)
}

// handleFirmwareUpload accepts a firmware image and streams it to the
// device for an OTA flash. The image is staged in a temporary file the
// gateway removes on every exit path.
//
// POST /api/devices/{id}/firmware (multipart, field "firmware")
func (s *Server) handleFirmwareUpload(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceAddr(w, r)
	if !ok {
		return
	}

	file, _, err := r.FormFile("firmware")
	if err != nil {
		writeBadRequest(w, "multipart field 'firmware' is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "tallycore-firmware-*.bin")
	if err != nil {
		writeInternalError(w, "staging firmware failed")
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeInternalError(w, "staging firmware failed")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		writeInternalError(w, "staging firmware failed")
		return
	}

	result, err := s.gateway.UploadFirmware(r.Context(), rec.IPAddress, tmp.Name())
	if errors.Is(err, gateway.ErrNoAddress) {
		writeBadRequest(w, "device has no known address")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeCommandResult(w, result)
}

// handleDiscover runs an active sweep of the configured subnet and
// feeds responding devices into the registry.
//
// POST /api/devices/discover
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "active discovery is not configured")
		return
	}

	found, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	ingested := 0
	for _, f := range found {
		payload := f.Info
		if payload == nil {
			payload = map[string]any{}
		}
		if _, ok := payload["ipAddress"]; !ok {
			payload["ipAddress"] = f.Addr
		}
		if _, err := device.ParseID(payload); err != nil {
			continue
		}
		s.relay.HandleAnnouncement(r.Context(), payload, nil)
		ingested++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"scanned":  true,
		"found":    len(found),
		"ingested": ingested,
	})
}
