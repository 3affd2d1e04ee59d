package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 5
	DefaultWindow      = time.Second
)

// Clock returns the current time. Tests replace it to control the window.
type Clock func() time.Time

// SlidingWindow admits at most maxRequests per key within any trailing window.
// Admission and recording happen in one critical section, so concurrent callers
// never both observe the last free slot.
type SlidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time

	maxRequests int
	window      time.Duration
	now         Clock
}

// NewSlidingWindow returns a limiter. Non-positive arguments fall back to the
// defaults and a nil clock uses time.Now.
func NewSlidingWindow(maxRequests int, window time.Duration, clock Clock) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = time.Now
	}

	return &SlidingWindow{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
		now:         clock,
	}
}

// TryAcquire records a request for key and reports true, or reports false
// without recording when the window is already full.
func (l *SlidingWindow) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(key, now)

	if len(valid) >= l.maxRequests {
		return false
	}

	l.requests[key] = append(valid, now)
	return true
}

// Count returns the number of requests recorded for key within the current window.
func (l *SlidingWindow) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.prune(key, l.now()))
}

// Window returns the trailing window duration.
func (l *SlidingWindow) Window() time.Duration {
	return l.window
}

// prune drops timestamps that fell out of the window; callers hold l.mu.
func (l *SlidingWindow) prune(key string, now time.Time) []time.Time {
	requests := l.requests[key]

	i := 0
	for i < len(requests) && now.Sub(requests[i]) >= l.window {
		i++
	}

	if i == len(requests) {
		delete(l.requests, key)
		return nil
	}

	valid := requests[i:]
	l.requests[key] = valid

	return valid
}
