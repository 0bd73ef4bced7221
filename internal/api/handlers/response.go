package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/auth"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case models.CodeMissingFields, models.CodeNoFieldsProvided, models.CodeInvalidFields,
		models.CodeDayNotAvailable, models.CodeInvalidTimeRange, models.CodeOutsideAvailability:
		return http.StatusBadRequest
	case models.CodeUnauthenticated, models.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case models.CodeForbidden:
		return http.StatusForbidden
	case models.CodeNotFoundOrNotOwned:
		return http.StatusNotFound
	case models.CodeSlotConflict, models.CodeDuplicateAccount, models.CodeListingLimitReached:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes the error body for err. Internal failures are logged
// and reported without their cause.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewStorageError(err)
	}

	status := StatusFor(appErr.Code)
	message := appErr.Message
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		message = "Internal server error"
	}
	respondJSON(w, status, models.ErrorResponse{Error: message, Code: appErr.Code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.AppError{Code: models.CodeInvalidFields, Message: "Invalid request body", Err: err}
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewAppError(models.CodeInvalidFields, "Invalid "+name+" format")
	}
	return id, nil
}

// currentUser returns the caller placed in the context by the auth middleware.
func currentUser(r *http.Request) (models.User, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return models.User{}, models.NewAppError(models.CodeUnauthenticated, "Authentication required")
	}
	return user, nil
}

// selfOnly resolves the {id} path parameter and requires it to be the caller.
func selfOnly(r *http.Request) (models.User, error) {
	user, err := currentUser(r)
	if err != nil {
		return models.User{}, err
	}
	id, err := idParam(r, "id")
	if err != nil {
		return models.User{}, err
	}
	if id != user.ID {
		return models.User{}, models.NewAppError(models.CodeForbidden, "Forbidden: You can only access your own profile")
	}
	return user, nil
}
