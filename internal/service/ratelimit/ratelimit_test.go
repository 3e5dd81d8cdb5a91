package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	now := time.Now()

	// Limiter with controllable time
	newAt := func(current *time.Time) *Limiter {
		l := New(5, 15*time.Minute)
		l.now = func() time.Time { return *current }
		return l
	}

	t.Run("allows under the limit", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 4; i++ {
			l.Record("user")
		}

		require.True(t, l.Allow("user"))
	})

	t.Run("blocks at the limit", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 5; i++ {
			require.True(t, l.Allow("user"), "attempt %d should be allowed", i+1)
			l.Record("user")
		}

		require.False(t, l.Allow("user"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 5; i++ {
			l.Record("blocked-user")
		}

		require.False(t, l.Allow("blocked-user"))
		require.True(t, l.Allow("other-user"))
	})

	t.Run("window expiry unblocks", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 5; i++ {
			l.Record("user")
		}
		require.False(t, l.Allow("user"))

		current = now.Add(15 * time.Minute)

		require.True(t, l.Allow("user"))
	})

	t.Run("record after expiry starts fresh window", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 5; i++ {
			l.Record("user")
		}

		current = now.Add(15 * time.Minute)
		l.Record("user")

		require.True(t, l.Allow("user"), "one attempt in the new window should not block")
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		current := now
		l := newAt(&current)

		for i := 0; i < 5; i++ {
			l.Record("user")
		}
		require.False(t, l.Allow("user"))

		l.Reset("user")

		require.True(t, l.Allow("user"))
	})
}
