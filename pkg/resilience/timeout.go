package resilience

import (
	"context"
	"fmt"
	"time"
)

// WaitUntil polls cond every interval until it reports true. It fails
// with context.DeadlineExceeded once timeout has passed, or with the
// context error when ctx ends first. A non-positive timeout waits on ctx
// alone.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, name string, cond func() bool) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	if cond() {
		return nil
	}
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return fmt.Errorf("%s: %w", name, parent.Err())
			}
			return fmt.Errorf("%s: not ready after %v: %w", name, timeout, context.DeadlineExceeded)
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}
