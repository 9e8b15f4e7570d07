package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/fleet"
	"github.com/ukydev/fuel-logistics/internal/storage"
	"github.com/ukydev/fuel-logistics/internal/tracking"
)

// Error kinds reported to the dashboard.
const (
	KindValidation = "validation"
	KindConflict   = "conflict"
	KindNotFound   = "not_found"
	KindAuth       = "auth"
	KindExternal   = "external"
)

const maxJSONBody = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}

// respondError maps a service error onto a status code and error kind.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *fleet.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Kind: KindValidation, Message: verr.Error(), Fields: verr.Fields}})
	case errors.Is(err, fleet.ErrDuplicate):
		writeError(w, http.StatusConflict, KindConflict, err.Error())
	case errors.Is(err, fleet.ErrNotFound), errors.Is(err, storage.ErrFileNotFound):
		writeError(w, http.StatusNotFound, KindNotFound, err.Error())
	case errors.Is(err, tracking.ErrMissingVehicle), errors.Is(err, tracking.ErrMissingDestination),
		errors.Is(err, storage.ErrNotImage), errors.Is(err, storage.ErrEmptyPayload), errors.Is(err, storage.ErrMissingKey):
		writeError(w, http.StatusBadRequest, KindValidation, err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, KindValidation, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
		writeError(w, http.StatusUnauthorized, KindAuth, err.Error())
	case errors.Is(err, tracking.ErrManagerClosed), errors.Is(err, auth.ErrRevocationUnavailable):
		writeError(w, http.StatusServiceUnavailable, KindExternal, err.Error())
	default:
		log.WithError(err).WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Error("Request failed")
		writeError(w, http.StatusInternalServerError, KindExternal, "Something went wrong, please try again")
	}
}

// decodeJSON reads a JSON body into v, writing a validation error on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, "Invalid JSON")
		return false
	}
	return true
}
