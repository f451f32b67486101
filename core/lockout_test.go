package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLockoutTriggersAtThreshold(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now))

	for i := 0; i < DefaultLockoutThreshold-1; i++ {
		l.RecordFailure("alice")
		require.False(t, l.IsLocked("alice"), "after %d failures", i+1)
	}
	l.RecordFailure("alice")
	require.True(t, l.IsLocked("alice"))
	require.False(t, l.IsLocked("bob"))
}

func TestLockoutExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.RecordFailure("alice")
	}
	clock.Advance(DefaultLockoutWindow - time.Second)
	require.True(t, l.IsLocked("alice"))

	clock.Advance(time.Second)
	require.Equal(t, 1, l.Len())
	require.False(t, l.IsLocked("alice"))
	require.Equal(t, 0, l.Len())
	require.Equal(t, uint(0), l.Status("alice").FailCount)
}

func TestLockoutFailureWhileLockedKeepsWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.RecordFailure("alice")
	}
	started := clock.Now()
	clock.Advance(10 * time.Minute)
	l.RecordFailure("alice")

	st := l.Status("alice")
	require.True(t, st.Locked)
	require.Equal(t, uint(5), st.FailCount)
	require.Equal(t, started.Add(DefaultLockoutWindow), st.LockedUntil)
}

func TestLockoutSuccessResetsCounter(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now))

	for i := 0; i < 4; i++ {
		l.RecordFailure("alice")
	}
	l.RecordSuccess("alice")
	require.Equal(t, uint(0), l.Status("alice").FailCount)

	l.RecordFailure("alice")
	require.False(t, l.IsLocked("alice"))
	for i := 0; i < 3; i++ {
		l.RecordFailure("alice")
	}
	require.False(t, l.IsLocked("alice"))
	l.RecordFailure("alice")
	require.True(t, l.IsLocked("alice"))
}

func TestLockoutIsCaseInsensitive(t *testing.T) {
	l := NewMemoryLockout(WithThreshold(2))

	l.RecordFailure("Alice")
	l.RecordFailure(" alice ")
	require.True(t, l.IsLocked("ALICE"))
}

func TestLockoutOptions(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now), WithThreshold(3), WithWindow(time.Minute), WithThreshold(0), WithWindow(-1))

	for i := 0; i < 3; i++ {
		l.RecordFailure("alice")
	}
	require.True(t, l.IsLocked("alice"))
	clock.Advance(time.Minute)
	require.False(t, l.IsLocked("alice"))
}

func TestLockoutStatusUnknownUser(t *testing.T) {
	st := NewMemoryLockout().Status("nobody")
	require.Equal(t, LockoutStatus{Username: "nobody"}, st)
}

func TestLockoutConcurrentFailures(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLockout(WithClock(clock.Now), WithThreshold(1000))

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.RecordFailure("shared")
				l.RecordFailure(fmt.Sprintf("user-%d", w))
				_ = l.IsLocked("shared")
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, uint(workers*perWorker), l.Status("shared").FailCount)
	for w := 0; w < workers; w++ {
		require.Equal(t, uint(perWorker), l.Status(fmt.Sprintf("user-%d", w)).FailCount)
	}
}
