package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"messenger-sync/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps a service error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrNoMessages),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrFetchFailed):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidKey),
		errors.Is(err, models.ErrSelfConversation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUserExists),
		errors.Is(err, models.ErrConversationExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrWriteFailed),
		errors.Is(err, models.ErrUploadFailed),
		errors.Is(err, models.ErrAddressResolutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
