package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := Do(context.Background(), Fixed(3, time.Millisecond), func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errFlaky
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when attempts exhausted", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), Fixed(2, 0), func() (int, error) {
			calls++
			return 0, errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), Fixed(5, time.Millisecond), func() (int, error) {
			calls++
			return 0, Permanent(errFlaky)
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.False(t, IsPermanent(err), "marker is stripped")
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := Do(ctx, Fixed(5, time.Second), func() (int, error) {
			calls++
			cancel()
			return 0, errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		err := Run(context.Background(), Config{}, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestBackoffGrowsDelay(t *testing.T) {
	cfg := Backoff(3, 5*time.Millisecond, 8*time.Millisecond)
	start := time.Now()
	_ = Run(context.Background(), cfg, func() error { return errFlaky })
	// 5ms + 8ms (capped from 10ms)
	assert.GreaterOrEqual(t, time.Since(start), 13*time.Millisecond)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
