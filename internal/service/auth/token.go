package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/akarpov/tokenvault/internal/models"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// signAccess issues a short lived JWT access token for the user
func (s *Service) signAccess(user models.User) (models.IssuedToken, error) {
	var issued models.IssuedToken
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(s.accessTTL)

	token := jwt.NewWithClaims(
		s.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: user.ID,
		},
	)

	signed, err := token.SignedString([]byte(s.key))
	if err != nil {
		return issued, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// parseAccess validates the signature and returns the claims
func (s *Service) parseAccess(access string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(s.key), nil
		},
		jwt.WithValidMethods([]string{s.alg.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims, nil
}
