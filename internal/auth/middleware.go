// Package auth resolves the caller of a request to a user.
//
// Two modes exist. In header mode the caller names themselves with an
// X-User-Id header or user_id query parameter and the value is trusted as
// given; it is only suitable behind a trusted frontend. In jwt mode the
// caller presents a bearer token issued at login.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

// Supported modes.
const (
	ModeHeader = "header"
	ModeJWT    = "jwt"
)

// UserIDHeader carries the caller's user id in header mode.
const UserIDHeader = "X-User-Id"

// TokenCookie is the cookie the login handler sets in jwt mode.
const TokenCookie = "token"

type contextKey string

const userKey = contextKey("authUser")

// UserLookup loads the user an identifier refers to.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

// Authenticator is the request gate shared by every protected route.
type Authenticator struct {
	mode   string
	users  UserLookup
	tokens *TokenIssuer
}

// NewAuthenticator creates an Authenticator. tokens is only used in jwt mode.
func NewAuthenticator(mode string, users UserLookup, tokens *TokenIssuer) *Authenticator {
	return &Authenticator{mode: mode, users: users, tokens: tokens}
}

// Mode returns the configured authentication mode.
func (a *Authenticator) Mode() string {
	return a.mode
}

// Tokens returns the token issuer, or nil in header mode.
func (a *Authenticator) Tokens() *TokenIssuer {
	if a.mode != ModeJWT {
		return nil
	}
	return a.tokens
}

// Middleware rejects unauthenticated requests and puts the caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Resolve(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Resolve identifies the caller of r.
func (a *Authenticator) Resolve(r *http.Request) (models.User, error) {
	var (
		id  int64
		err error
	)
	if a.mode == ModeJWT {
		id, err = a.tokenSubject(r)
	} else {
		id, err = headerSubject(r)
	}
	if err != nil {
		return models.User{}, err
	}

	user, err := a.users.GetUserByID(r.Context(), id)
	if err != nil {
		if models.HasCode(err, models.CodeNotFoundOrNotOwned) {
			return models.User{}, models.NewAppError(models.CodeUnauthenticated, "Unknown user")
		}
		return models.User{}, err
	}
	return user, nil
}

func headerSubject(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if raw == "" {
		return 0, models.NewAppError(models.CodeUnauthenticated, "Authentication required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewAppError(models.CodeInvalidFields, "user id must be a positive integer")
	}
	return id, nil
}

func (a *Authenticator) tokenSubject(r *http.Request) (int64, error) {
	var tokenStr string

	if header := r.Header.Get("Authorization"); header != "" {
		if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
			tokenStr = strings.TrimSpace(rest)
		}
	}
	if tokenStr == "" {
		if cookie, err := r.Cookie(TokenCookie); err == nil {
			tokenStr = cookie.Value
		}
	}
	// Browsers cannot set headers on a websocket upgrade.
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return 0, models.NewAppError(models.CodeUnauthenticated, "Missing auth token")
	}

	claims, err := a.tokens.ValidateJWT(tokenStr)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected auth token")
		return 0, models.NewAppError(models.CodeUnauthenticated, "Invalid auth token")
	}
	return claims.UserID, nil
}

// WithUser returns a copy of ctx carrying user as the caller.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the caller placed in ctx by the middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := models.ErrorResponse{Error: "Internal server error", Code: models.CodeStorageError}
	switch code := models.ErrorCode(err); code {
	case models.CodeUnauthenticated:
		status = http.StatusUnauthorized
		body = models.ErrorResponse{Error: err.Error(), Code: code}
	case models.CodeInvalidFields:
		status = http.StatusBadRequest
		body = models.ErrorResponse{Error: err.Error(), Code: code}
	default:
		log.Error().Err(err).Msg("Failed to resolve caller")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
