package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/akarpov/tokenvault/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const tokenColumns = `id, owner_id, ciphertext, nonce, auth_tag, created_at, updated_at, expires_at, valid, used`

const createToken = `-- name: CreateToken
INSERT INTO refresh_tokens (id, owner_id, ciphertext, nonce, auth_tag, created_at, updated_at, expires_at, valid, used)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9)
RETURNING ` + tokenColumns

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, createToken,
		token.ID, token.OwnerID, token.Ciphertext, token.Nonce, token.AuthTag,
		token.CreatedAt, token.ExpiresAt, token.Valid, token.Used,
	)
	created, err := pgx.CollectOneRow(rows, rowToToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listActive = `-- name: ListActive
SELECT ` + tokenColumns + `
FROM refresh_tokens
WHERE valid AND expires_at > $1
ORDER BY created_at
`

// List records that still can match a presented secret.
// Invalid and expired rows are excluded in the query, never scanned in memory.
func (r *RefreshTokenRepo) ListActive(ctx context.Context, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActive, now)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const countActiveByOwner = `-- name: CountActiveByOwner
SELECT count(*)
FROM refresh_tokens
WHERE owner_id = $1 AND valid AND expires_at > $2
`

func (r *RefreshTokenRepo) CountActiveByOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) (int64, error) {
	rows, _ := r.DB.Query(ctx, countActiveByOwner, ownerID, now)
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

const markUsed = `-- name: MarkUsed
UPDATE refresh_tokens
SET used = TRUE, updated_at = $2
WHERE id = $1 AND NOT used
`

// MarkUsed flips used false -> true.
// The WHERE clause makes it a compare-and-swap: of two concurrent callers
// exactly one sees true, the loser gets false and must treat it as reuse.
func (r *RefreshTokenRepo) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.DB.Exec(ctx, markUsed, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const invalidateToken = `-- name: InvalidateToken
UPDATE refresh_tokens
SET valid = FALSE, updated_at = $2
WHERE id = $1 AND valid
`

// Invalidate sets valid=false. A record that is dead already is a no-op.
func (r *RefreshTokenRepo) Invalidate(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, invalidateToken, id, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const invalidateOldest = `-- name: InvalidateOldestForOwner
UPDATE refresh_tokens
SET valid = FALSE, updated_at = $3
WHERE id = (
	SELECT id FROM refresh_tokens
	WHERE owner_id = $1 AND valid AND expires_at > $2
	ORDER BY created_at
	LIMIT 1
)
`

func (r *RefreshTokenRepo) InvalidateOldestForOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) error {
	_, err := r.DB.Exec(ctx, invalidateOldest, ownerID, now, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const invalidateAllForOwner = `-- name: InvalidateAllForOwner
UPDATE refresh_tokens
SET valid = FALSE, updated_at = $2
WHERE owner_id = $1 AND valid
`

func (r *RefreshTokenRepo) InvalidateAllForOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, invalidateAllForOwner, ownerID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const deleteExpired = `-- name: DeleteExpired
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Ciphertext, &t.Nonce, &t.AuthTag,
		&t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt, &t.Valid, &t.Used,
	)
	return t, err
}
