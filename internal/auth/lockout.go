package auth

import (
	"sync"
	"time"
)

const (
	lockoutThreshold = 10
	lockoutWindow    = time.Minute
	lockoutDuration  = 5 * time.Minute
	lockoutStale     = 10 * time.Minute
)

// lockout counts failed authentications per client and blocks a client
// that reaches lockoutThreshold failures within lockoutWindow.
type lockout struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*strikes
}

type strikes struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

func newLockout(now func() time.Time) *lockout {
	return &lockout{now: now, entries: make(map[string]*strikes)}
}

// fail records a failure and reports whether the client is now blocked.
func (l *lockout) fail(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s, ok := l.entries[client]
	if !ok {
		if len(l.entries) >= maxTracked {
			l.sweep(now)
		}
		s = &strikes{windowStart: now}
		l.entries[client] = s
	}
	if now.Sub(s.windowStart) > lockoutWindow {
		s.count = 0
		s.windowStart = now
	}
	s.count++
	if s.count >= lockoutThreshold {
		s.blockedUntil = now.Add(lockoutDuration)
		return true
	}
	return false
}

// blocked returns the time left on the client's block, or zero.
func (l *lockout) blocked(client string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.entries[client]
	if !ok || s.blockedUntil.IsZero() {
		return 0
	}
	left := s.blockedUntil.Sub(l.now())
	if left <= 0 {
		delete(l.entries, client)
		return 0
	}
	return left
}

func (l *lockout) clear(client string) {
	l.mu.Lock()
	delete(l.entries, client)
	l.mu.Unlock()
}

func (l *lockout) sweep(now time.Time) {
	for client, s := range l.entries {
		expired := !s.blockedUntil.IsZero() && now.After(s.blockedUntil)
		if expired || now.Sub(s.windowStart) > lockoutStale {
			delete(l.entries, client)
		}
	}
}
