package util

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn until it succeeds, attempts is exhausted, or ctx is
// cancelled, sleeping backoff between tries. It generalizes the retry
// decorator the original liquidation bot wrapped around outbound HTTP
// calls (swap quotes, notification posts) into a single reusable helper
// instead of duplicating the loop at every call site.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", attempts, lastErr)
}
