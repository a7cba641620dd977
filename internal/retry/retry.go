package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is returned by stores when a compare-and-swap loses to a concurrent writer.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrExhausted means every attempt lost a conflict. Callers should ask the user to try again.
	ErrExhausted = errors.New("too many concurrent updates, try again")
)

// Config holds retry configuration
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   8,
		InitialDelay:  2 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// WithAttempts returns the default backoff with a different attempt budget.
func WithAttempts(n int) Config {
	cfg := DefaultConfig()
	if n > 0 {
		cfg.MaxAttempts = n
	}
	return cfg
}

// OnConflict runs fn until it succeeds, fails with something other than
// ErrConflict, or the attempt budget runs out. fn must re-read the entity it
// writes on every call.
func OnConflict(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%w (%d attempts)", ErrExhausted, cfg.MaxAttempts)
}
