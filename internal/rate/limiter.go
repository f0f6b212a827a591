package rate

import (
	"context"
	"time"
)

// Limiter serializes outbound API requests and enforces a minimum
// interval between them. Exactly one caller holds the limiter at a time;
// the cool-down window only advances when the held request succeeds, so
// a failed call never grants the next caller extra throughput.
type Limiter struct {
	minInterval time.Duration

	sem  chan struct{}
	last time.Time

	now func() time.Time
}

func NewLimiter(minInterval time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		sem:         make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Acquire blocks until the caller may issue a request: it takes the
// single in-flight slot, then waits out whatever remains of the minimum
// interval since the last successful request. If ctx is cancelled while
// waiting, the slot is released before the error is returned.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// last is only read or written while holding the slot.
	if !l.last.IsZero() {
		if wait := l.minInterval - l.now().Sub(l.last); wait > 0 {
			waitSeconds.Observe(wait.Seconds())
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				<-l.sem
				return ctx.Err()
			}
		}
	}

	acquisitions.Inc()
	return nil
}

// Release returns the in-flight slot. The cool-down timestamp is stamped
// only when err is nil.
func (l *Limiter) Release(err error) {
	if err == nil {
		l.last = l.now()
	}
	<-l.sem
}
