package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/auth"
	"github.com/hawkpark/hawkpark-be/internal/services"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service       services.UserServiceProvider
	listings      services.ListingServiceProvider
	tokens        *auth.TokenIssuer
	secureCookies bool
}

// NewUserHandler creates a new UserHandler. tokens is nil when sessions are not token based.
func NewUserHandler(service services.UserServiceProvider, listings services.ListingServiceProvider, tokens *auth.TokenIssuer, secureCookies bool) *UserHandler {
	return &UserHandler{service: service, listings: listings, tokens: tokens, secureCookies: secureCookies}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordPayload defines the structure for password changes.
type PasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login handles user authentication. In token mode it also issues a JWT.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed authentication attempt")
		respondError(w, r, err)
		return
	}

	body := map[string]interface{}{
		"message": "Login successful",
		"user":    user,
	}

	if h.tokens != nil {
		token, err := h.tokens.GenerateJWT(user)
		if err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
			respondError(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     auth.TokenCookie,
			Value:    token,
			Expires:  time.Now().Add(h.tokens.TTL()),
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteStrictMode,
			Path:     "/",
		})
		body["token"] = token
	}

	respondJSON(w, http.StatusOK, body)
}

// Get returns the caller's own profile.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := selfOnly(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), caller.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Update handles updating a user's profile information.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := selfOnly(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var patch services.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), caller.ID, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// ChangePassword handles changing a user's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, err := selfOnly(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var payload PasswordPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), caller.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// Listings returns the listings owned by the caller.
func (h *UserHandler) Listings(w http.ResponseWriter, r *http.Request) {
	caller, err := selfOnly(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	listings, err := h.listings.ListListingsByOwner(r.Context(), caller.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"listings": listings})
}
