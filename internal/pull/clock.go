package pull

import (
	"context"
	"time"
)

// Clock abstracts wall time and pacing waits.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done. Non-positive d returns at once.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
