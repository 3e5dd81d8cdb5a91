package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the persisted form of a refresh token.
// The plaintext secret is never stored: only its AES-GCM sealed form.
type RefreshToken struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Ciphertext []byte
	Nonce      []byte
	AuthTag    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time

	// Valid goes true -> false exactly once: on rotation, revocation or
	// bulk revocation. Never flips back.
	Valid bool

	// Used goes false -> true the first time the token is matched against
	// a presented secret. A second match on a used token is the reuse signal.
	Used bool
}

// SealedToken is the output of the authenticated encryption of a secret
type SealedToken struct {
	Ciphertext []byte
	Nonce      []byte
	AuthTag    []byte
}
