// Package blacklist holds access tokens that were revoked before their
// natural expiry, so the auth middleware can reject them while the JWT
// signature is still valid.
package blacklist

import (
	"context"
	"time"
)

type Blacklist interface {
	// Remember the token until it would have expired anyway
	Add(ctx context.Context, token string, expiresAt time.Time) error

	// Report whether the token was revoked
	Contains(ctx context.Context, token string) (bool, error)

	// Drop entries that are past expiry, returns removed count
	Sweep(ctx context.Context) (int, error)
}
