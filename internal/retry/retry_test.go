package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(n int) Config {
	return Config{MaxAttempts: n, InitialDelay: time.Microsecond, MaxDelay: time.Microsecond, BackoffFactor: 2}
}

func TestOnConflictSucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := OnConflict(context.Background(), fastConfig(5), func(attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("update slot: %w", ErrConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestOnConflictStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("slot full")
	calls := 0
	err := OnConflict(context.Background(), fastConfig(5), func(int) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestOnConflictExhausts(t *testing.T) {
	calls := 0
	err := OnConflict(context.Background(), fastConfig(4), func(int) error {
		calls++
		return ErrConflict
	})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestOnConflictHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := OnConflict(ctx, fastConfig(3), func(int) error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithAttempts(t *testing.T) {
	assert.Equal(t, 3, WithAttempts(3).MaxAttempts)
	assert.Equal(t, DefaultConfig().MaxAttempts, WithAttempts(0).MaxAttempts)
}
