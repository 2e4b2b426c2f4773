package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/smartpot-core/internal/binding"
	"github.com/nerrad567/smartpot-core/internal/plant"
	"github.com/nerrad567/smartpot-core/internal/telemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int      `json:"status"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodePartialFailure = "partial_failure"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeValidationError(w http.ResponseWriter, message string, details ...string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message, details...)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps binding, telemetry and entity errors onto HTTP
// statuses. Partial failures are matched first as they wrap their cause.
// Unrecognised errors are logged and reported as 500 without their text.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *telemetry.ValidationError
	var partial *binding.PartialFailureError

	switch {
	case errors.As(err, &partial):
		s.logger.Error("binding left inconsistent",
			"operation", partial.Op,
			"flower_ids", partial.FlowerIDs,
			"smartpot_ids", partial.SmartPotIDs,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		details := make([]string, 0, len(partial.FlowerIDs)+len(partial.SmartPotIDs))
		for _, id := range partial.FlowerIDs {
			details = append(details, "flower:"+id)
		}
		for _, id := range partial.SmartPotIDs {
			details = append(details, "smartpot:"+id)
		}
		writeError(w, http.StatusInternalServerError, ErrCodePartialFailure,
			"operation failed and could not be fully undone", details...)
	case errors.As(err, &validation):
		writeValidationError(w, "invalid sample", validation.Violations...)
	case errors.Is(err, binding.ErrInvalidInput), errors.Is(err, telemetry.ErrInvalidInput):
		writeValidationError(w, "invalid request", err.Error())
	case errors.Is(err, binding.ErrNotFound), errors.Is(err, telemetry.ErrNotFound),
		errors.Is(err, plant.ErrFlowerNotFound), errors.Is(err, plant.ErrSmartPotNotFound),
		errors.Is(err, plant.ErrHouseholdNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, binding.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
