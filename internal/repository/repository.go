package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov/tokenvault/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by its id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// RefreshToken repository interface.
// A thin persistence contract: no token business rules live behind it.
type RefreshTokenRepo interface {
	// Create token record
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// List records that are valid and not expired at the given instant (any owner)
	ListActive(ctx context.Context, now time.Time) ([]models.RefreshToken, error)

	// Count records that are valid and not expired for the owner
	CountActiveByOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) (int64, error)

	// Flip used false -> true atomically.
	// Returns false if the record was used already (or does not exist),
	// so two concurrent calls can not both win.
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)

	// Set valid=false. Idempotent: invalidating a dead record is not an error.
	Invalidate(ctx context.Context, id uuid.UUID) error

	// Set valid=false on the single oldest active record of the owner
	InvalidateOldestForOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) error

	// Set valid=false on every active record of the owner, returns affected count
	InvalidateAllForOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)

	// Delete records past their expiry regardless of valid/used, returns deleted count
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Storage aggregates all repositories over a single database handle
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
}
