package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/muninn/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a classified error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNoChanges:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindPermissionDenied:
		status = http.StatusForbidden
	case apperr.KindAuthentication:
		status = http.StatusUnauthorized
	case apperr.KindDuplicateContent:
		status = http.StatusConflict
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Code: string(apperr.KindOf(err))})
}
