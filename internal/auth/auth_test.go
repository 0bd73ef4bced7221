package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

type stubUsers map[int64]models.User

func (s stubUsers) GetUserByID(_ context.Context, id int64) (models.User, error) {
	if id == 500 {
		return models.User{}, models.NewStorageError(errors.New("db down"))
	}
	u, ok := s[id]
	if !ok {
		return models.User{}, models.NewNotFoundOrNotOwned("User")
	}
	return u, nil
}

var rita = models.User{ID: 7, Username: "rita", Email: "rita@hawkpark.test"}

func protected(a *Authenticator) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		json.NewEncoder(w).Encode(user)
	}))
}

func TestHeaderMode(t *testing.T) {
	handler := protected(NewAuthenticator(ModeHeader, stubUsers{7: rita}, nil))

	tests := []struct {
		name   string
		target string
		header string
		status int
		code   string
	}{
		{name: "header", target: "/", header: "7", status: http.StatusOK},
		{name: "query", target: "/?user_id=7", status: http.StatusOK},
		{name: "missing", target: "/", status: http.StatusUnauthorized, code: models.CodeUnauthenticated},
		{name: "non-numeric", target: "/", header: "rita", status: http.StatusBadRequest, code: models.CodeInvalidFields},
		{name: "unknown user", target: "/?user_id=8", status: http.StatusUnauthorized, code: models.CodeUnauthenticated},
		{name: "storage failure", target: "/", header: "500", status: http.StatusInternalServerError, code: models.CodeStorageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				var body models.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.code, body.Code)
				assert.NotContains(t, body.Error, "db down")
				return
			}
			var got models.User
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, rita.ID, got.ID)
		})
	}
}

func TestJWTMode(t *testing.T) {
	tokens := NewTokenIssuer("test-secret", time.Hour)
	handler := protected(NewAuthenticator(ModeJWT, stubUsers{7: rita}, tokens))

	token, err := tokens.GenerateJWT(rita)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("header identity is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(UserIDHeader, "7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		forged, err := NewTokenIssuer("other-secret", time.Hour).GenerateJWT(rita)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/?token="+forged, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidateJWT_Expired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := issuer.GenerateJWT(rita)
	require.NoError(t, err)

	_, err = NewTokenIssuer("test-secret", time.Minute).ValidateJWT(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateJWT_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: rita.ID}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenIssuer("test-secret", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateJWT_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())

	token, err := issuer.GenerateJWT(rita)
	require.NoError(t, err)
	claims, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, rita.ID, claims.UserID)
	assert.Equal(t, rita.Username, claims.Username)
}
