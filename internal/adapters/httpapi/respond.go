package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"btxclinic/internal/core"
	"btxclinic/pkg/domain"
)

type errorBody struct {
	Error      string             `json:"error"`
	Field      string             `json:"field,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps coordinator errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr domain.ValidationError
		rv   domain.RuleViolationError
		nf   domain.ErrNotFound
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &rv):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedBackup):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var verr domain.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		body.Violations = rv.Result.Violations
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// cleanupWarning reports whether err only says blobs were left behind after a
// committed change. Those requests still succeed.
func (h *handler) cleanupWarning(r *http.Request, err error) ([]string, bool) {
	var cleanup *core.BlobCleanupError
	if !errors.As(err, &cleanup) {
		return nil, false
	}
	h.logger.Warn("blob cleanup failed", "path", r.URL.Path, "ids", cleanup.IDs, "err", cleanup.Err)
	return cleanup.IDs, true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
