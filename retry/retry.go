// Package retry implements the exponential-backoff-with-jitter retry
// loop spec §7 requires for BackendTransient errors ("retried with
// exponential backoff up to max_retries"). Grounded on the
// Distributed-Caching-System example's warming.WorkerPool.retryTask:
// doubling backoff per attempt plus a jitter term. The wait between
// attempts is a time.Timer raced against ctx.Done, so cancellation
// cuts it short.
package retry

import (
	"context"
	"time"

	"github.com/cacheforge/semcache/cerr"
)

// Do calls fn, retrying while it returns a BackendTransient error, up
// to maxRetries additional attempts beyond the first. Any other error
// (or nil) returns immediately. ctx cancellation aborts the wait
// between attempts.
func Do(ctx context.Context, maxRetries int, backoffBase time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !cerr.Is(err, cerr.KindBackendTransient) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}
		if waitErr := sleep(ctx, backoff(backoffBase, attempt)); waitErr != nil {
			return err
		}
	}
}

// backoff returns backoffBase * 2^attempt plus up to half that in
// jitter, the same doubling-plus-jitter shape as the pack's
// retryTask.
func backoff(backoffBase time.Duration, attempt int) time.Duration {
	if backoffBase <= 0 {
		return 0
	}
	delay := backoffBase * time.Duration(uint64(1)<<uint(attempt))
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
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
