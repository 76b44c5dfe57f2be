package threatintel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records requested delays without actually waiting.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func TestPollerCompletesEarly(t *testing.T) {
	sleeper := &fakeSleeper{}
	p := Poller{Interval: 2 * time.Second, MaxAttempts: 10, Sleep: sleeper.sleep}

	calls := 0
	done, err := p.Run(context.Background(), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 3, calls)
	// Sleeps happen between attempts, not before the first one.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays)
}

func TestPollerExhaustsBudget(t *testing.T) {
	sleeper := &fakeSleeper{}
	p := Poller{Interval: 2 * time.Second, MaxAttempts: 10, Sleep: sleeper.sleep}

	calls := 0
	done, err := p.Run(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, nil
	})

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 10, calls)
	assert.Len(t, sleeper.delays, 9)
}

func TestPollerAbortsOnError(t *testing.T) {
	p := Poller{Interval: time.Second, MaxAttempts: 5, Sleep: (&fakeSleeper{}).sleep}

	boom := errors.New("upstream gone")
	calls := 0
	done, err := p.Run(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, boom
	})

	assert.False(t, done)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPollerHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Poller{Interval: time.Minute, MaxAttempts: 5}

	cancel()
	done, err := p.Run(ctx, func(context.Context) (bool, error) {
		return false, nil
	})

	assert.False(t, done)
	assert.ErrorIs(t, err, context.Canceled)
}
