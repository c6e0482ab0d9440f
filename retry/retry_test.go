package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/retry"
)

func TestDoRetriesTransientErrorsUntilSuccess(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return cerr.New(cerr.KindBackendTransient, "op", errors.New("boom"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoStopsAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return cerr.New(cerr.KindBackendTransient, "op", errors.New("still broken"))
	})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.KindBackendTransient))
	// One initial attempt plus two retries.
	require.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonTransientErrors(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		return cerr.New(cerr.KindInvalidArgument, "op", errors.New("bad input"))
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retry.Do(ctx, 5, 50*time.Millisecond, func() error {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return cerr.New(cerr.KindBackendTransient, "op", errors.New("boom"))
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
