package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov/tokenvault/internal/apperrors"
	"github.com/akarpov/tokenvault/internal/crypto"
	"github.com/akarpov/tokenvault/internal/logger"
	"github.com/akarpov/tokenvault/internal/models"
	"github.com/akarpov/tokenvault/internal/repository"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSessionCap      = 5
)

// Service with sensible defaults
type Config struct {
	// Refresh token lifetime
	// If not set then default is used
	RefreshTTL time.Duration

	// Max simultaneously valid tokens per owner
	// If not set then default is used
	SessionCap int
}

// Service owns every mutation of refresh token records.
// Secrets are handed out in plaintext exactly once, at issue time,
// and stored sealed with AES-GCM.
type Service struct {
	cipher *crypto.Cipher
	repo   repository.RefreshTokenRepo
	logger logger.Logger

	refreshTTL time.Duration
	sessionCap int
}

func NewService(cfg Config, cipher *crypto.Cipher, repo repository.RefreshTokenRepo, l logger.Logger) (*Service, error) {
	if cipher == nil {
		return nil, errors.New("cipher must not be nil")
	}
	if repo == nil {
		return nil, errors.New("refresh token repo must not be nil")
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	if cfg.SessionCap == 0 {
		cfg.SessionCap = defaultSessionCap
	}

	return &Service{
		cipher:     cipher,
		repo:       repo,
		logger:     l,
		refreshTTL: cfg.RefreshTTL,
		sessionCap: cfg.SessionCap,
	}, nil
}

// Issue mints a fresh refresh token for the owner.
// The session cap is soft: when the owner is at the cap the oldest valid
// token is evicted, issuance itself never fails because of the cap.
func (s *Service) Issue(ctx context.Context, ownerID uuid.UUID) (models.IssuedToken, error) {
	var issued models.IssuedToken
	now := time.Now()

	count, err := s.repo.CountActiveByOwner(ctx, ownerID, now)
	if err != nil {
		return issued, fmt.Errorf("error while counting sessions. Err: %w", err)
	}

	if count >= int64(s.sessionCap) {
		if err := s.repo.InvalidateOldestForOwner(ctx, ownerID, now); err != nil {
			return issued, fmt.Errorf("error while evicting oldest session. Err: %w", err)
		}
		s.logger.Info("session cap reached, evicted oldest session", "owner_id", ownerID)
	}

	plaintext, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return issued, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}

	sealed, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return issued, fmt.Errorf("error while sealing refresh token. Err: %w", err)
	}

	expiresAt := now.Add(s.refreshTTL)
	_, err = s.repo.Create(ctx, models.RefreshToken{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		AuthTag:    sealed.AuthTag,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		Valid:      true,
		Used:       false,
	})
	if err != nil {
		return issued, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: plaintext, ExpiresAt: expiresAt}, nil
}

// Validate matches the presented secret against active records and consumes it.
//
// A match on a record that is used already means the token leaked after
// rotation: every valid session of that owner is revoked and
// apperrors.ErrTokenReuse is returned. No match at all is a plain
// apperrors.ErrTokenInvalid so the caller can not tell reuse from a typo.
func (s *Service) Validate(ctx context.Context, plaintext string) (models.RefreshToken, error) {
	var match models.RefreshToken

	record, err := s.findActive(ctx, plaintext)
	if err != nil {
		return match, err
	}
	if record == nil {
		return match, apperrors.ErrTokenInvalid
	}

	if record.Used {
		return match, s.reuseDetected(ctx, record.OwnerID)
	}

	// Atomic used flip: a concurrent validate of the same secret can not
	// both win, the loser falls into the reuse branch
	ok, err := s.repo.MarkUsed(ctx, record.ID)
	if err != nil {
		return match, fmt.Errorf("error while marking token used. Err: %w", err)
	}
	if !ok {
		return match, s.reuseDetected(ctx, record.OwnerID)
	}

	record.Used = true
	return *record, nil
}

// Rotate issues a replacement and kills the old token.
// Validation is a separate step by contract: the caller must have validated
// the old secret already. The old record is invalidated regardless of its
// used state.
func (s *Service) Rotate(ctx context.Context, oldPlaintext string, ownerID uuid.UUID) (models.IssuedToken, error) {
	issued, err := s.Issue(ctx, ownerID)
	if err != nil {
		return issued, err
	}

	if err := s.Revoke(ctx, oldPlaintext); err != nil {
		return issued, fmt.Errorf("error while revoking rotated token. Err: %w", err)
	}

	return issued, nil
}

// Revoke invalidates the record matching the secret.
// Silent no-op when nothing matches: logout with a dead token must succeed.
func (s *Service) Revoke(ctx context.Context, plaintext string) error {
	record, err := s.findActive(ctx, plaintext)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	if err := s.repo.Invalidate(ctx, record.ID); err != nil {
		return fmt.Errorf("error while invalidating token. Err: %w", err)
	}

	return nil
}

// RevokeAll invalidates every valid token of the owner ("log out everywhere")
func (s *Service) RevokeAll(ctx context.Context, ownerID uuid.UUID) error {
	count, err := s.repo.InvalidateAllForOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("error while invalidating owner tokens. Err: %w", err)
	}

	s.logger.Info("revoked all sessions", "owner_id", ownerID, "count", count)
	return nil
}

// CleanupExpired purges rows past expiry, whatever their valid/used state.
// Meant to run on a schedule; the error is returned for the scheduler to log.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("error while deleting expired tokens. Err: %w", err)
	}

	return count, nil
}

// findActive decrypts every active record and compares in constant time.
// Unreadable records are logged and skipped, never propagated: one corrupted
// row must not lock every user out.
func (s *Service) findActive(ctx context.Context, plaintext string) (*models.RefreshToken, error) {
	candidates, err := s.repo.ListActive(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("error while listing active tokens. Err: %w", err)
	}

	for i := range candidates {
		candidate := &candidates[i]

		stored, err := s.cipher.Decrypt(candidate.Ciphertext, candidate.Nonce, candidate.AuthTag)
		if err != nil {
			s.logger.Error("skipping unreadable token record",
				"token_id", candidate.ID,
				"owner_id", candidate.OwnerID,
				"error", err.Error(),
			)
			continue
		}

		if crypto.SecureCompare(stored, plaintext) {
			return candidate, nil
		}
	}

	return nil, nil
}

func (s *Service) reuseDetected(ctx context.Context, ownerID uuid.UUID) error {
	s.logger.Warn("refresh token reuse detected, revoking all sessions", "owner_id", ownerID)

	if err := s.RevokeAll(ctx, ownerID); err != nil {
		return fmt.Errorf("error while revoking sessions on reuse. Err: %w", err)
	}

	return apperrors.ErrTokenReuse
}
