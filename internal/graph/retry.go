package graph

import (
	"context"
	"time"
)

// retryBackoffs is the fixed delay schedule between write attempts: one
// initial try plus three retries, waiting 50ms then 200ms then 800ms after
// each failure.
var retryBackoffs = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond}

// withRetry runs op up to len(retryBackoffs)+1 times, waiting the next
// scheduled backoff between attempts, and gives up early if ctx is done.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= len(retryBackoffs) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBackoffs[attempt]):
		}
	}
}
