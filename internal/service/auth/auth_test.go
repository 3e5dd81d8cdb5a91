package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/tokenvault/internal/apperrors"
	"github.com/akarpov/tokenvault/internal/crypto"
	"github.com/akarpov/tokenvault/internal/repository/postgres"
	"github.com/akarpov/tokenvault/internal/service/blacklist"
	"github.com/akarpov/tokenvault/internal/service/token"
	"github.com/akarpov/tokenvault/internal/testutil"
)

const testEncryptionKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func Test_AuthService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	cipher, err := crypto.New(testEncryptionKey)
	require.NoError(t, err)

	// Begin new db transaction and create a fresh auth service over it
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, cfg Config, t *testing.T, fn func(s *Service)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenService, err := token.NewService(token.Config{}, cipher, storage.Refresh(), nil)
			require.NoError(t, err, "token service should be created without errors")

			if cfg.SecretKey == "" {
				cfg.SecretKey = "test-secret-key"
			}

			s, err := NewService(cfg, tokenService, storage.User(), blacklist.NewMemory(), nil)
			require.NoError(t, err, "auth service should be created without errors")

			fn(s)
		})
	}

	t.Run("new service defaults", func(t *testing.T) {
		withTx(pg.Pool, Config{}, t, func(s *Service) {
			require.Equal(t, defaultSigningMethod, s.alg.Alg())
			require.Equal(t, defaultAccessTokenTTL, s.accessTTL)
			require.Equal(t, BcryptHasher{}, s.hasher)
		})
	})

	t.Run("new service requires secret key", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil, nil, nil)
		require.Error(t, err)
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				pair, err := s.Register(t.Context(), "marina", "password1")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				_, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				_, err = s.Register(t.Context(), "marina", "other-password")
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				_, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				pair, err := s.Login(t.Context(), "marina", "password1")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value)
				require.NotEmpty(t, pair.Refresh.Value)
			})
		})

		tests := []struct {
			name     string
			username string
			password string
		}{
			{name: "wrong password", username: "marina", password: "wrong"},
			{name: "unknown user", username: "nobody", password: "password1"},
		}

		for _, tt := range tests {
			t.Run(tt.name+" is invalid credentials", func(t *testing.T) {
				withTx(pg.Pool, Config{}, t, func(s *Service) {
					_, err := s.Register(t.Context(), "marina", "password1")
					require.NoError(t, err)

					_, err = s.Login(t.Context(), tt.username, tt.password)
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials,
						"the error must not tell user and password failures apart")
				})
			})
		}

		t.Run("throttled after too many failures", func(t *testing.T) {
			withTx(pg.Pool, Config{MaxLoginAttempts: 5, AttemptWindow: 15 * time.Minute}, t, func(s *Service) {
				_, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				for i := 0; i < 5; i++ {
					_, err := s.Login(t.Context(), "marina", "wrong")
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				}

				// Even the right password is rejected once over the limit
				_, err = s.Login(t.Context(), "marina", "password1")
				require.ErrorIs(t, err, apperrors.ErrTooManyAttempts)
			})
		})

		t.Run("success resets the attempt counter", func(t *testing.T) {
			withTx(pg.Pool, Config{MaxLoginAttempts: 5, AttemptWindow: 15 * time.Minute}, t, func(s *Service) {
				_, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				for i := 0; i < 4; i++ {
					_, err := s.Login(t.Context(), "marina", "wrong")
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				}

				_, err = s.Login(t.Context(), "marina", "password1")
				require.NoError(t, err)

				// Counter is back to zero, failures start fresh
				for i := 0; i < 4; i++ {
					_, err := s.Login(t.Context(), "marina", "wrong")
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				}
				_, err = s.Login(t.Context(), "marina", "password1")
				require.NoError(t, err)
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("rotates the pair", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				pair, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				rotated, err := s.Refresh(t.Context(), pair.Refresh.Value)
				require.NoError(t, err)
				require.NotEqual(t, pair.Refresh.Value, rotated.Refresh.Value)
				require.NotEmpty(t, rotated.Access.Value)

				// The old refresh token is dead: plain invalid, not reuse
				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})
		})

		t.Run("unknown token is invalid", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				_, err := s.Refresh(t.Context(), "never-issued")
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("revokes refresh and blacklists access", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				pair, err := s.Register(t.Context(), "marina", "password1")
				require.NoError(t, err)

				// Access token authenticates before logout
				r := httptest.NewRequest("GET", "/", nil)
				r.Header.Set("Authorization", "Bearer "+pair.Access.Value)
				user, err := s.Authenticate(t.Context(), r)
				require.NoError(t, err)
				require.Equal(t, "marina", user.Username)

				require.NoError(t, s.Logout(t.Context(), pair.Refresh.Value, pair.Access.Value))

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)

				_, err = s.Authenticate(t.Context(), r)
				require.ErrorIs(t, err, apperrors.ErrAccessTokenRevoked)
			})
		})

		t.Run("logout with dead token succeeds", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				require.NoError(t, s.Logout(t.Context(), "never-issued", ""))
			})
		})
	})

	t.Run("LogoutAll", func(t *testing.T) {
		withTx(pg.Pool, Config{}, t, func(s *Service) {
			first, err := s.Register(t.Context(), "marina", "password1")
			require.NoError(t, err)
			second, err := s.Login(t.Context(), "marina", "password1")
			require.NoError(t, err)

			r := httptest.NewRequest("GET", "/", nil)
			r.Header.Set("Authorization", "Bearer "+first.Access.Value)
			user, err := s.Authenticate(t.Context(), r)
			require.NoError(t, err)

			require.NoError(t, s.LogoutAll(t.Context(), user.ID, first.Access.Value))

			_, err = s.Refresh(t.Context(), first.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			_, err = s.Refresh(t.Context(), second.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("missing header", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				r := httptest.NewRequest("GET", "/", nil)

				_, err := s.Authenticate(t.Context(), r)
				require.Error(t, err)
			})
		})

		t.Run("garbage token", func(t *testing.T) {
			withTx(pg.Pool, Config{}, t, func(s *Service) {
				r := httptest.NewRequest("GET", "/", nil)
				r.Header.Set("Authorization", "Bearer not-a-jwt")

				_, err := s.Authenticate(t.Context(), r)
				require.Error(t, err)
			})
		})
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid bearer", header: "Bearer abc", want: "abc"},
		{name: "case insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "scheme only", header: "Bearer", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := BearerToken(r)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
