package coach

import (
	"context"
	"time"
)

// backoff doubles base per attempt, never exceeding limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt <= 0 {
		return min(base, limit)
	}

	d := base
	for range attempt {
		d *= 2
		if d >= limit {
			return limit
		}
	}

	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
