package refresh

import (
	"sync"
	"time"
)

// scheduledTimer is the slice of *time.Timer the Scheduler needs; tests
// substitute their own through SetTimerFactoryForTest.
type scheduledTimer interface {
	Stop() bool
}

type timerFactory func(d time.Duration, fire func()) scheduledTimer

type realTimer struct {
	*time.Timer
}

func (t realTimer) Stop() bool {
	return t.Timer.Stop()
}

// Scheduler arms a single timer that triggers a proactive refresh shortly
// before the access credential expires, so that under normal latency no
// caller ever observes an expired credential. At most one timer is pending
// at any instant.
type Scheduler struct {
	mu       sync.Mutex
	skew     time.Duration
	attempt  func()
	now      func() time.Time
	newTimer timerFactory
	pending  scheduledTimer
	nextFire time.Time
	gen      uint64
}

// NewScheduler constructs a Scheduler. skew is the safety margin before
// expiry at which the timer fires; attempt is invoked on fire and its
// outcome ignored (failures surface later through the reactive path).
func NewScheduler(skew time.Duration, attempt func()) *Scheduler {
	return &Scheduler{
		skew:    skew,
		attempt: attempt,
		now:     time.Now,
		newTimer: func(d time.Duration, fire func()) scheduledTimer {
			return realTimer{time.AfterFunc(d, fire)}
		},
	}
}

// ScheduleNextRefresh cancels any previously scheduled timer and arms a new
// one to fire at expiresAt minus the skew. Inside the skew window already,
// the timer fires immediately.
func (s *Scheduler) ScheduleNextRefresh(expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	fireAt := expiresAt.Add(-s.skew)
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	// each armed timer carries its generation: Stop cannot prevent a fire
	// goroutine that is already launched, so a late fire from a replaced
	// timer must be recognizable and ignored
	s.gen++
	gen := s.gen
	s.nextFire = fireAt
	s.pending = s.newTimer(delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.pending == nil || gen != s.gen {
		// a reschedule or cancel won the race; this fire is stale
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.nextFire = time.Time{}
	s.mu.Unlock()

	// outside the lock: attempt re-enters the coordinator, which may call
	// ScheduleNextRefresh again on success
	s.attempt()
}

// Cancel stops the pending timer, if any. Idempotent.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
		s.nextFire = time.Time{}
	}
}

// NextFire returns the pending timer's fire time, false when none is armed.
func (s *Scheduler) NextFire() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFire, s.pending != nil
}

// SetTimerFactoryForTest substitutes timer construction and the clock.
func (s *Scheduler) SetTimerFactoryForTest(factory timerFactory, now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newTimer = factory
	s.now = now
}
