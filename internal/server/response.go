package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fundpool/fundpool/internal/models"
)

// errorBody is the stable rejection shape: a machine-readable kind plus a
// human-readable message, with field detail for validation failures.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{
			Kind:    "validation_error",
			Message: validation.Error(),
			Field:   validation.Field,
		}})
	case errors.Is(err, models.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{errorDetail{
			Kind:    "unauthenticated",
			Message: models.ErrUnauthenticated.Error(),
		}})
	case errors.Is(err, models.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{errorDetail{
			Kind:    "forbidden",
			Message: models.ErrForbidden.Error(),
		}})
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrGrantNotFound),
		errors.Is(err, models.ErrTransactionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{errorDetail{
			Kind:    "not_found",
			Message: "resource not found",
		}})
	case errors.Is(err, models.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{errorDetail{
			Kind:    "conflict",
			Message: models.ErrConflict.Error(),
		}})
	default:
		logger.Error("request failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorBody{errorDetail{
			Kind:    "internal",
			Message: "internal server error",
		}})
	}
}

func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{
		Kind:    "validation_error",
		Message: "malformed request body",
	}})
}
