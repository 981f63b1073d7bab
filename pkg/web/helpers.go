package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	// Handle nil payload
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// RespondValidation writes a 400 response describing which rule each field failed.
// Non-validation errors produce a generic "Invalid request body" message.
func RespondValidation(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorResponse := make(map[string]string)
		for _, fieldErr := range validationErrors {
			// fieldErr.Tag() returns "required", "max", etc.
			errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
		}
		logger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		RespondJSON(w, logger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
		return
	}
	logger.ErrorContext(r.Context(), "Error validating request body", "error", err)
	RespondError(w, logger, http.StatusBadRequest, "Invalid request body")
}

// DecodeJSON decodes the request body into dst. On failure it responds with 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		RespondError(w, logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseID extracts a non-empty string ID from the request path. Returns the ID and a boolean indicating success.
func ParseID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		RespondError(w, logger, http.StatusBadRequest, "Missing ID")
		return "", false
	}
	return id, true
}

// ParseInt64ID extracts and validates a numeric ID from the request path.
func ParseInt64ID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	pathValueID := r.PathValue("id")
	id, err := strconv.ParseInt(pathValueID, 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid ID: %s", pathValueID))
		return 0, false
	}
	return id, true
}
