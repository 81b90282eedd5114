package export

import (
	"context"
	"time"
)

// Clock abstracts time for the poll loop so tests can drive the cadence and
// the polling deadline deterministically.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in that
	// case. The orchestrator never blocks without honoring the context.
	Sleep(ctx context.Context, d time.Duration) error
}

// systemClock is the real-time Clock used outside tests.
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
