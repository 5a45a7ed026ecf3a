package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cubenotary/internal/domain"
	"cubenotary/internal/logging"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps core errors to HTTP status codes. Anything unknown is
// logged and hidden behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	var (
		verrs    domain.ValidationErrors
		mismatch *domain.AmountMismatchError
	)
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": verrs})
	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, mismatch.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSlotTaken):
		writeError(w, http.StatusConflict, "Time slot is no longer available")
	case errors.Is(err, domain.ErrConflictingOutcome):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownReference), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), logger).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return domain.Invalid("body", "body must contain a single JSON object")
	}
	return nil
}
