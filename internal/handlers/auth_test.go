package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/tokenvault/internal/apperrors"
	"github.com/akarpov/tokenvault/internal/handlers/userctx"
	"github.com/akarpov/tokenvault/internal/models"
)

// fakeAuthService returns canned results so handler status mapping
// can be tested without a database
type fakeAuthService struct {
	pair models.TokenPair
	err  error
}

func (f fakeAuthService) Register(_ context.Context, _, _ string) (models.TokenPair, error) {
	return f.pair, f.err
}

func (f fakeAuthService) Login(_ context.Context, _, _ string) (models.TokenPair, error) {
	return f.pair, f.err
}

func (f fakeAuthService) Refresh(_ context.Context, _ string) (models.TokenPair, error) {
	return f.pair, f.err
}

func (f fakeAuthService) Logout(_ context.Context, _, _ string) error {
	return f.err
}

func (f fakeAuthService) LogoutAll(_ context.Context, _ uuid.UUID, _ string) error {
	return f.err
}

func post(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var response struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response.Error
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "created",
			body:       `{"username": "marina", "password": "password1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "existing user is conflict",
			body:       `{"username": "marina", "password": "password1"}`,
			err:        apperrors.ErrUserAlreadyExists,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "short password is validation error",
			body:       `{"username": "marina", "password": "pw"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "broken json",
			body:       `{"username": `,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unexpected error is 500",
			body:       `{"username": "marina", "password": "password1"}`,
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuth(fakeAuthService{err: tt.err})

			w := post(t, h.Register, tt.body)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "ok", wantStatus: http.StatusOK},
		{name: "invalid credentials", err: apperrors.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "throttled", err: apperrors.ErrTooManyAttempts, wantStatus: http.StatusTooManyRequests},
		{name: "unexpected error", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuth(fakeAuthService{err: tt.err})

			w := post(t, h.Login, `{"username": "marina", "password": "password1"}`)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("ok returns the pair", func(t *testing.T) {
		pair := models.TokenPair{
			Access:  models.IssuedToken{Value: "new-access"},
			Refresh: models.IssuedToken{Value: "new-refresh"},
		}
		h := NewAuth(fakeAuthService{pair: pair})

		w := post(t, h.Refresh, `{"refresh_token": "old-refresh"}`)

		require.Equal(t, http.StatusOK, w.Code)

		var response struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, "new-access", response.AccessToken)
		require.Equal(t, "new-refresh", response.RefreshToken)
	})

	t.Run("invalid token is generic 401", func(t *testing.T) {
		h := NewAuth(fakeAuthService{err: apperrors.ErrTokenInvalid})

		w := post(t, h.Refresh, `{"refresh_token": "stale"}`)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "service_error", errorType(t, w))
	})

	t.Run("reuse is 401 with a distinct error type", func(t *testing.T) {
		h := NewAuth(fakeAuthService{err: apperrors.ErrTokenReuse})

		w := post(t, h.Refresh, `{"refresh_token": "stolen"}`)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, ReuseDetectedErrorType, errorType(t, w),
			"clients must be able to tell reuse from a plain stale token")
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := NewAuth(fakeAuthService{})

		w := post(t, h.Logout, `{"refresh_token": "some-token"}`)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing refresh token is validation error", func(t *testing.T) {
		h := NewAuth(fakeAuthService{})

		w := post(t, h.Logout, `{}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	t.Run("requires user in context", func(t *testing.T) {
		h := NewAuth(fakeAuthService{})

		r := httptest.NewRequest("POST", "/", nil)
		w := httptest.NewRecorder()
		h.LogoutAll(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ok with authenticated user", func(t *testing.T) {
		h := NewAuth(fakeAuthService{})

		r := httptest.NewRequest("POST", "/", nil)
		r = r.WithContext(userctx.New(r.Context(), models.User{ID: uuid.New()}))
		w := httptest.NewRecorder()
		h.LogoutAll(w, r)

		require.Equal(t, http.StatusOK, w.Code)
	})
}
