package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/akarpov/tokenvault/internal/apperrors"
	"github.com/akarpov/tokenvault/internal/models"
)

const (
	// Entropy of generated refresh token secrets
	DefaultTokenBytes = 32

	keyBytes = 32
	tagBytes = 16
)

// Cipher seals and opens refresh token secrets with AES-256-GCM.
// Construct it once at startup: a bad key must fail the process, not a request.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a hex encoded key.
// The key must decode to exactly 32 bytes (64 hex chars).
func New(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("encryption key must not be empty")
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex. Err: %w", err)
	}
	if len(key) != keyBytes {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyBytes, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("error while creating cipher. Err: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("error while creating GCM. Err: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce.
// The GCM tag is split off the sealed output so it can be stored in its own column.
func (c *Cipher) Encrypt(plaintext string) (models.SealedToken, error) {
	var sealed models.SealedToken

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return sealed, fmt.Errorf("error while generating nonce. Err: %w", err)
	}

	out := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return models.SealedToken{
		Ciphertext: out[:len(out)-tagBytes],
		Nonce:      nonce,
		AuthTag:    out[len(out)-tagBytes:],
	}, nil
}

// Decrypt opens a sealed secret.
// A failed tag check means the record is unreadable (corruption or key
// mismatch) and returns apperrors.ErrRecordUnreadable.
func (c *Cipher) Decrypt(ciphertext []byte, nonce []byte, authTag []byte) (string, error) {
	if len(nonce) != c.aead.NonceSize() || len(authTag) != tagBytes {
		return "", fmt.Errorf("%w: malformed nonce or tag", apperrors.ErrRecordUnreadable)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrRecordUnreadable, err)
	}

	return string(plaintext), nil
}

// GenerateToken returns n cryptographically random bytes hex encoded
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating token. Err: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// SecureCompare reports whether two secrets are equal without leaking timing.
// Inputs of different length (or empty) compare as false, never panic.
func SecureCompare(a string, b string) bool {
	if a == "" || b == "" {
		return false
	}

	// Hashing makes the comparison constant time even for unequal lengths
	aSum := sha256.Sum256([]byte(a))
	bSum := sha256.Sum256([]byte(b))

	return subtle.ConstantTimeCompare(aSum[:], bSum[:]) == 1
}
