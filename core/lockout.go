package core

import (
	"log"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks a username.
	DefaultLockoutThreshold = 5
	// DefaultLockoutWindow is how long a lockout lasts from the attempt that triggered it.
	DefaultLockoutWindow = 15 * time.Minute
)

// LockoutTracker records failed attempts per username and decides whether it is blocked.
type LockoutTracker interface {
	IsLocked(username string) bool
	RecordFailure(username string)
	RecordSuccess(username string)
}

// LockoutStatus is a read-only snapshot of one username's entry.
type LockoutStatus struct {
	Username    string    `json:"username"`
	FailCount   uint      `json:"fail_count"`
	Locked      bool      `json:"locked"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

type lockoutState struct {
	failCount    uint
	lockoutStart time.Time // zero while not locked
}

// MemoryLockout keeps lockout state in process memory. Entries are created on
// the first failure, removed on success, and removed lazily by IsLocked once
// the window has passed. Updates to one username are atomic and do not block
// updates to other usernames.
type MemoryLockout struct {
	entries   *xsync.MapOf[string, lockoutState]
	threshold uint
	window    time.Duration
	now       func() time.Time
}

// LockoutOption configures a MemoryLockout.
type LockoutOption func(*MemoryLockout)

func WithThreshold(n int) LockoutOption {
	return func(l *MemoryLockout) {
		if n > 0 {
			l.threshold = uint(n)
		}
	}
}

func WithWindow(d time.Duration) LockoutOption {
	return func(l *MemoryLockout) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) LockoutOption {
	return func(l *MemoryLockout) {
		if now != nil {
			l.now = now
		}
	}
}

func NewMemoryLockout(opts ...LockoutOption) *MemoryLockout {
	l := &MemoryLockout{
		entries:   xsync.NewMapOf[string, lockoutState](),
		threshold: DefaultLockoutThreshold,
		window:    DefaultLockoutWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLocked reports whether username is inside an active lockout window.
// A lockout whose window has elapsed is cleared as a side effect.
func (l *MemoryLockout) IsLocked(username string) bool {
	key := NormalizeUsername(username)
	now := l.now()
	locked := false
	l.entries.Compute(key, func(st lockoutState, loaded bool) (lockoutState, bool) {
		if !loaded {
			return st, true
		}
		if st.lockoutStart.IsZero() {
			return st, false
		}
		if now.Sub(st.lockoutStart) >= l.window {
			return lockoutState{}, true
		}
		locked = true
		return st, false
	})
	return locked
}

// RecordFailure counts a failed attempt and starts the lockout window when the
// threshold is reached. An entry that is already locked is left untouched.
func (l *MemoryLockout) RecordFailure(username string) {
	key := NormalizeUsername(username)
	now := l.now()
	triggered := false
	l.entries.Compute(key, func(st lockoutState, loaded bool) (lockoutState, bool) {
		if !st.lockoutStart.IsZero() {
			if now.Sub(st.lockoutStart) < l.window {
				return st, false
			}
			st = lockoutState{}
		}
		st.failCount++
		if st.failCount >= l.threshold {
			st.lockoutStart = now
			triggered = true
		}
		return st, false
	})
	if triggered {
		log.Printf("lockout: username=%q locked for %s", key, l.window)
	}
}

// RecordSuccess drops the entry entirely.
func (l *MemoryLockout) RecordSuccess(username string) {
	l.entries.Delete(NormalizeUsername(username))
}

// Status returns a snapshot without mutating state, so a stale lockout may be
// reported as unlocked while its entry still exists.
func (l *MemoryLockout) Status(username string) LockoutStatus {
	key := NormalizeUsername(username)
	out := LockoutStatus{Username: key}
	st, ok := l.entries.Load(key)
	if !ok {
		return out
	}
	out.FailCount = st.failCount
	if !st.lockoutStart.IsZero() {
		until := st.lockoutStart.Add(l.window)
		if l.now().Before(until) {
			out.Locked = true
			out.LockedUntil = until
		}
	}
	return out
}

// Len returns the number of tracked usernames.
func (l *MemoryLockout) Len() int {
	return l.entries.Size()
}
