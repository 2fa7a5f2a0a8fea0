package api

import (
	"encoding/json"
	"net/http"

	"github.com/stagelink/tally-core/internal/gateway"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// CommandResponse is the body returned by device command endpoints.
// Assumed carries the OTA heuristic: a connection reset followed by a
// probe resolves as success with assumed=true.
type CommandResponse struct {
	Success bool   `json:"success"`
	Assumed bool   `json:"assumed,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeCommandResult maps a gateway result onto the command response shape.
func writeCommandResult(w http.ResponseWriter, result gateway.Result) {
	resp := CommandResponse{
		Success: result.OK(),
		Assumed: result.Outcome == gateway.OutcomeAssumedSuccess,
		Message: result.Message,
	}
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusBadGateway
		resp.Error = result.Message
		resp.Message = ""
	}
	writeJSON(w, status, resp)
}
