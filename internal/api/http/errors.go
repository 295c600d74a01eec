package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mockmate/mockmate-engine/internal/assessment"
)

// writeError maps domain error kinds to HTTP statuses. Only this layer
// knows about status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, assessment.ErrDefinitionNotFound),
		errors.Is(err, assessment.ErrQuestionNotFound),
		errors.Is(err, assessment.ErrSessionNotFound),
		errors.Is(err, assessment.ErrResultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, assessment.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, assessment.ErrInvalidTransition),
		errors.Is(err, assessment.ErrSessionNotActive),
		errors.Is(err, assessment.ErrTitleConflict):
		status = http.StatusConflict
	case errors.Is(err, assessment.ErrUnknownQuestion):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
