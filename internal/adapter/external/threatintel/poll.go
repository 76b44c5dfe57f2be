package threatintel

import (
	"context"
	"time"
)

// Poller retries an operation at a fixed interval until it reports
// completion or the attempt budget runs out. It exists so the VirusTotal URL
// analysis loop can be driven by a fake clock in tests instead of wall-clock
// sleeps.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	// Sleep waits between attempts. Left nil it sleeps for real, honoring
	// context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run invokes fn up to MaxAttempts times. It stops early when fn reports
// done or returns an error. An exhausted budget returns (false, nil) and the
// caller decides what incomplete means.
func (p Poller) Run(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Interval); err != nil {
				return false, err
			}
		}

		done, err := fn(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}

	return false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
