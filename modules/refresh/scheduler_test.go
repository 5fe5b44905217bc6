package refresh

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingFactory captures every armed timer so tests can inspect delays
// and cancellations, and fire callbacks by hand.
type recordingFactory struct {
	mu     sync.Mutex
	timers []*recordedTimer
}

type recordedTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *recordedTimer) Stop() bool {
	t.stopped = true
	return true
}

func (f *recordingFactory) factory() timerFactory {
	return func(d time.Duration, fire func()) scheduledTimer {
		f.mu.Lock()
		defer f.mu.Unlock()
		timer := &recordedTimer{delay: d, fire: fire}
		f.timers = append(f.timers, timer)
		return timer
	}
}

func (f *recordingFactory) last() *recordedTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

func (f *recordingFactory) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, timer := range f.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

func TestScheduler_FiresAtExpiryMinusSkew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingFactory{}

	s := NewScheduler(60*time.Second, func() {})
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	expiresAt := now.Add(900 * time.Second)
	s.ScheduleNextRefresh(expiresAt)

	require.Equal(t, 840*time.Second, rec.last().delay)
	fireAt, armed := s.NextFire()
	require.True(t, armed)
	require.True(t, fireAt.Equal(expiresAt.Add(-60*time.Second)))
}

func TestScheduler_RescheduleCancelsPrevious(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingFactory{}

	s := NewScheduler(60*time.Second, func() {})
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	s.ScheduleNextRefresh(now.Add(10 * time.Minute))
	s.ScheduleNextRefresh(now.Add(20 * time.Minute))

	require.Len(t, rec.timers, 2)
	require.True(t, rec.timers[0].stopped, "previous timer must be cancelled")
	require.Equal(t, 1, rec.pendingCount(), "only one timer may ever be pending")
}

func TestScheduler_InsideSkewWindowFiresImmediately(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingFactory{}

	s := NewScheduler(60*time.Second, func() {})
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	// expiry 30s away with a 60s skew: already inside the window
	s.ScheduleNextRefresh(now.Add(30 * time.Second))
	require.Equal(t, time.Duration(0), rec.last().delay)
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	now := time.Now()
	rec := &recordingFactory{}

	s := NewScheduler(60*time.Second, func() {})
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	s.ScheduleNextRefresh(now.Add(time.Hour))
	s.Cancel()
	s.Cancel()

	require.True(t, rec.last().stopped)
	_, armed := s.NextFire()
	require.False(t, armed)
}

func TestScheduler_FireInvokesAttemptAndClearsPending(t *testing.T) {
	now := time.Now()
	rec := &recordingFactory{}

	fired := 0
	s := NewScheduler(60*time.Second, func() { fired++ })
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	s.ScheduleNextRefresh(now.Add(time.Hour))
	rec.last().fire()

	require.Equal(t, 1, fired)
	_, armed := s.NextFire()
	require.False(t, armed, "fired timer is no longer pending")
}

// Stop cannot prevent an AfterFunc fire goroutine that is already launched.
// A fire from a replaced timer must not clobber the replacement's
// bookkeeping or trigger an attempt.
func TestScheduler_LateFireAfterRescheduleIsIgnored(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingFactory{}

	fired := 0
	s := NewScheduler(60*time.Second, func() { fired++ })
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	// inside the skew window, so the first timer's fire is due immediately
	s.ScheduleNextRefresh(now.Add(30 * time.Second))
	first := rec.last()

	expiresAt := now.Add(time.Hour)
	s.ScheduleNextRefresh(expiresAt)

	// the replaced timer's callback lands after the reschedule
	first.fire()

	require.Equal(t, 0, fired, "a stale fire must not trigger an attempt")
	fireAt, armed := s.NextFire()
	require.True(t, armed, "the rescheduled timer must still be pending")
	require.True(t, fireAt.Equal(expiresAt.Add(-60*time.Second)))

	s.Cancel()
	require.True(t, rec.last().stopped, "cancel must reach the armed timer")
	_, armed = s.NextFire()
	require.False(t, armed)
}

func TestScheduler_FireAfterCancelIsIgnored(t *testing.T) {
	now := time.Now()
	rec := &recordingFactory{}

	fired := 0
	s := NewScheduler(60*time.Second, func() { fired++ })
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	s.ScheduleNextRefresh(now.Add(30 * time.Second))
	last := rec.last()
	s.Cancel()

	last.fire()
	require.Equal(t, 0, fired, "a fire landing after cancel must be ignored")
	_, armed := s.NextFire()
	require.False(t, armed)
}

// The lifecycle from the worked example: a pair issued at t=0 with a 900s
// lifetime and 60s skew refreshes at t=840s; the refreshed pair gets a new
// 900s lifetime, so the next fire lands at t=1680s.
func TestScheduler_RollingRefreshScenario(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	rec := &recordingFactory{}

	var s *Scheduler
	s = NewScheduler(60*time.Second, func() {
		// the refresh succeeded and produced a fresh 900s pair
		s.ScheduleNextRefresh(now.Add(900 * time.Second))
	})
	s.SetTimerFactoryForTest(rec.factory(), func() time.Time { return now })

	s.ScheduleNextRefresh(t0.Add(900 * time.Second))
	require.Equal(t, 840*time.Second, rec.last().delay)

	// the timer fires at t=840s
	now = t0.Add(840 * time.Second)
	rec.last().fire()

	fireAt, armed := s.NextFire()
	require.True(t, armed)
	require.True(t, fireAt.Equal(t0.Add(1680*time.Second)), "next fire is 840s after the refresh")
	require.Equal(t, 1, rec.pendingCount())
}
