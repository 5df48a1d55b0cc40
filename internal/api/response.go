package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/papertrade/papertrade/internal/apperrors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response with the given status code
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError maps err onto an HTTP status. Domain errors carry their
// message; anything else is logged and reported as "internal error".
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		msg = "internal error"
	}
	RespondJSON(w, status, ErrorResponse{Error: msg})
}

var statuses = []struct {
	err    error
	status int
}{
	{apperrors.ErrInvalidSymbol, http.StatusBadRequest},
	{apperrors.ErrInvalidQuantity, http.StatusBadRequest},
	{apperrors.ErrInvalidAmount, http.StatusBadRequest},
	{apperrors.ErrWeakPassword, http.StatusBadRequest},
	{apperrors.ErrMissingCredentials, http.StatusBadRequest},
	{apperrors.ErrPasswordMismatch, http.StatusBadRequest},
	{apperrors.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{apperrors.ErrInsufficientShares, http.StatusUnprocessableEntity},
	{apperrors.ErrNoSuchPosition, http.StatusUnprocessableEntity},
	{apperrors.ErrConcurrentModification, http.StatusConflict},
	{apperrors.ErrUsernameTaken, http.StatusConflict},
	{apperrors.ErrQuoteUnavailable, http.StatusBadGateway},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized},
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized},
	{apperrors.ErrUserNotFound, http.StatusNotFound},
	{apperrors.ErrSymbolNotFound, http.StatusNotFound},
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}
