package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt", wantCalls: 1},
		{name: "succeeds after retries", failures: 2, err: NewTransientError(errors.New("temporary")), wantCalls: 3},
		{name: "exhausts attempts", failures: 10, err: NewTransientError(errors.New("always")), wantCalls: 3, wantErr: true},
		{name: "permanent error", failures: 10, err: errors.New("bad query"), wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastRetry(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDo_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	errBusy := errors.New("database is locked")
	cfg := fastRetry()
	cfg.Retryable = func(err error) bool { return errors.Is(err, errBusy) }

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls == 1 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var retried []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	calls := 0
	got, err := DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("temporary"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1}, retried)
}

func TestSchedule_DoublesToCeiling(t *testing.T) {
	s := newSchedule(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, s.delay())
	assert.Equal(t, 200*time.Millisecond, s.delay())
	assert.Equal(t, 250*time.Millisecond, s.delay())
	assert.Equal(t, 250*time.Millisecond, s.delay())
}

func TestSchedule_JitterStaysInRange(t *testing.T) {
	s := newSchedule(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond, Jitter: 0.5})
	for range 50 {
		d := s.delay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestNormalized(t *testing.T) {
	c := RetryConfig{InitialBackoff: time.Minute, Jitter: 3}.normalized()
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, time.Minute, c.MaxBackoff, "ceiling never below the first delay")
	assert.Equal(t, 1.0, c.Jitter)
	assert.NotNil(t, c.Retryable)
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 10, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
}
