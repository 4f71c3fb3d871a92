package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"SmartIMS/app/mcp"
	"SmartIMS/app/models"
)

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": message}
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// statusForTool maps a failed tool call to an HTTP status
func statusForTool(resp mcp.ToolResponse) int {
	switch resp.Code {
	case mcp.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case mcp.ErrCodeNotFound, mcp.ErrCodeUnknownTool:
		return http.StatusNotFound
	case mcp.ErrCodeReadOnly, mcp.ErrCodeDisabled:
		return http.StatusForbidden
	case mcp.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeToolError(w http.ResponseWriter, resp mcp.ToolResponse) {
	writeError(w, statusForTool(resp), resp.Error)
}

// statusForError maps a domain error from a direct service call
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrReadOnly):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
