package engine

import (
	"context"
	"time"
)

// Clock is the scheduler's time source
// Sleep returns early when ctx is done; the interruption is not reported
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// SystemClock reads the monotonic wall clock
type SystemClock struct{}

// NewSystemClock creates a wall clock
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns the current time with monotonic clock reading
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done
func (SystemClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
