package lms

import (
	"context"
	"sync"
	"time"
)

// RateLimiter admits requests under a rolling request-count window. Calls
// beyond the window quota are queued FIFO and released by a single drain
// goroutine with fixed spacing between admissions.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	spacing     time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
	waiters     []chan struct{}
	draining    bool

	now   func() time.Time
	sleep func(time.Duration)
}

// NewRateLimiter creates a limiter admitting maxRequests per window, with
// the given spacing between queued admissions.
func NewRateLimiter(maxRequests int, window, spacing time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		spacing:     spacing,
		windowStart: time.Now(),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Acquire blocks until the caller may issue a request. Admission is
// immediate while the window has quota; otherwise the caller waits in FIFO
// order. Returns the context error if ctx is done before admission.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.resetWindowLocked()

	if l.count < l.maxRequests {
		l.count++
		l.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	startDrain := !l.draining
	if startDrain {
		l.draining = true
	}
	l.mu.Unlock()

	if startDrain {
		go l.drain()
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain releases queued waiters one at a time. Only one drain loop runs at
// a time; the draining flag guards concurrent starts.
func (l *RateLimiter) drain() {
	for {
		l.mu.Lock()
		if len(l.waiters) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		l.resetWindowLocked()

		if l.count < l.maxRequests {
			ch := l.waiters[0]
			l.waiters = l.waiters[1:]
			l.count++
			l.mu.Unlock()

			close(ch)
			l.sleep(l.spacing)
			continue
		}

		// Window exhausted, sleep until reset
		wait := l.window - l.now().Sub(l.windowStart)
		l.mu.Unlock()
		if wait > 0 {
			l.sleep(wait)
		}
	}
}

func (l *RateLimiter) resetWindowLocked() {
	if l.now().Sub(l.windowStart) >= l.window {
		l.windowStart = l.now()
		l.count = 0
	}
}

// Pending returns the number of queued callers. Used for introspection.
func (l *RateLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
