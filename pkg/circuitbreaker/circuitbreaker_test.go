package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRedisDown = errors.New("dial tcp: connection refused")

func fail(context.Context) error    { return errRedisDown }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(2), WithTimeout(time.Minute))

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRedisDown)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRedisDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var transitions []State
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Execute(context.Background(), fail))
	now = now.Add(2 * time.Second)
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	miss := errors.New("cache miss")
	cb := New("test",
		WithFailureThreshold(2),
		WithIsFailure(func(err error) bool { return !errors.Is(err, miss) }),
	)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return miss }), miss)
	}
	assert.Equal(t, StateClosed, cb.State())

	// A miss between two failures resets the streak.
	require.Error(t, cb.Execute(context.Background(), fail))
	require.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return miss }), miss)
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCacheBreaker(t *testing.T) {
	var opened []string
	cb := CacheBreaker(func(name string, _, to State) {
		if to == StateOpen {
			opened = append(opened, name)
		}
	}, WithFailureThreshold(1))

	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, []string{"leaderboard-cache"}, opened)

	err := cb.Execute(context.Background(), succeed)
	assert.True(t, IsRejected(err))
}
