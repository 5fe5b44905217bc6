package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/sessionkit/modules/tokens"
)

// Some metrics counters (optional)
var (
	attemptCount   int64
	successCount   int64
	rejectedCount  int64
	transportCount int64
)

// Stats is a snapshot of the process-wide refresh counters.
type Stats struct {
	Attempts          int64
	Successes         int64
	Rejections        int64
	TransportFailures int64
}

// ReadStats returns the cumulative refresh counters.
func ReadStats() Stats {
	return Stats{
		Attempts:          atomic.LoadInt64(&attemptCount),
		Successes:         atomic.LoadInt64(&successCount),
		Rejections:        atomic.LoadInt64(&rejectedCount),
		TransportFailures: atomic.LoadInt64(&transportCount),
	}
}

// Flight is the shared outcome of one in-flight refresh. Every caller that
// needs a refresh while this one is outstanding observes the same Flight
// and therefore the same resolution.
type Flight struct {
	done chan struct{}
	tok  *oauth2.Token
	err  error
}

// Done is closed when the flight settles.
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled outcome. Only meaningful after Done is closed.
func (f *Flight) Result() (*oauth2.Token, error) {
	select {
	case <-f.done:
		return f.tok, f.err
	default:
		return nil, errors.New("refresh still in flight")
	}
}

// Wait blocks until the flight settles or ctx is done. Cancelling ctx
// abandons the wait only; the refresh itself keeps running for the
// remaining waiters.
func (f *Flight) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case <-f.done:
		return f.tok, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Coordinator guarantees at most one outstanding refresh at any instant.
// It owns the only mutation paths for the credential store and the
// in-flight state; everything else just reads or triggers.
type Coordinator struct {
	mu         sync.Mutex
	store      *tokens.Store
	exec       Executor
	sched      *Scheduler
	logger     *slog.Logger
	flight     *Flight
	generation uint64
}

// NewCoordinator constructs a Coordinator over its injected dependencies.
// A nil logger falls back to slog.Default().
func NewCoordinator(store *tokens.Store, exec Executor, sched *Scheduler, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:  store,
		exec:   exec,
		sched:  sched,
		logger: logger,
	}
}

// AttemptRefresh refreshes the credential pair, deduplicating concurrent
// callers into one shared outcome. With no refresh credential present it
// returns ErrNotAuthenticated without touching the network.
func (c *Coordinator) AttemptRefresh(ctx context.Context) (*oauth2.Token, error) {
	fl, err := c.ensureFlight()
	if err != nil {
		return nil, err
	}
	return fl.Wait(ctx)
}

// ensureFlight returns the current flight, starting one when idle. The
// idle check and the transition to in-flight share a single critical
// section, so a second caller arriving before the executor goroutine has
// even been scheduled still observes the same flight.
func (c *Coordinator) ensureFlight() (*Flight, error) {
	c.mu.Lock()

	if c.flight != nil {
		fl := c.flight
		c.mu.Unlock()
		return fl, nil
	}

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}

	c.generation++
	gen := c.generation
	fl := &Flight{done: make(chan struct{})}
	c.flight = fl
	c.mu.Unlock()

	atomic.AddInt64(&attemptCount, 1)
	c.logger.Debug("refresh started")

	// The flight outlives any single caller, so it does not inherit a
	// caller's context; the executor's bounded timeout limits it instead.
	go func() {
		tok, err := c.performRefresh(context.Background(), refreshToken)
		c.settle(fl, gen, tok, err)
	}()

	return fl, nil
}

// performRefresh runs one uncoordinated executor attempt. Application code
// must go through AttemptRefresh for deduplication; this is the internal
// primitive behind it.
func (c *Coordinator) performRefresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return c.exec.Execute(ctx, refreshToken)
}

// settle applies the outcome and resolves all waiters. The generation
// captured at takeoff guards the side effects: if ClearState ran while the
// executor was out, the stale result must not repopulate the store or
// re-arm the timer.
func (c *Coordinator) settle(fl *Flight, gen uint64, tok *oauth2.Token, err error) {
	c.mu.Lock()
	if c.flight == fl {
		c.flight = nil
	}
	if gen == c.generation {
		switch {
		case err == nil:
			c.store.Save(tok)
			c.sched.ScheduleNextRefresh(tok.Expiry)
			atomic.AddInt64(&successCount, 1)
			c.logger.Debug("refresh succeeded", slog.Time("expires_at", tok.Expiry))
		case isRejected(err):
			// terminal: the session is over
			c.store.Clear()
			c.sched.Cancel()
			atomic.AddInt64(&rejectedCount, 1)
			c.logger.Warn("refresh rejected, session cleared")
		default:
			// transient: leave credentials for inspection, caller may retry
			atomic.AddInt64(&transportCount, 1)
			c.logger.Debug("refresh transport failure", slog.String("err", err.Error()))
		}
	}
	c.mu.Unlock()

	fl.tok, fl.err = tok, err
	close(fl.done)
}

func isRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// IsRefreshing reports whether a refresh is outstanding right now.
func (c *Coordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flight != nil
}

// Refreshing returns the shared outcome of the outstanding refresh, or nil
// when idle.
func (c *Coordinator) Refreshing() *Flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flight
}

// ClearState forces the coordinator back to idle and clears the credential
// store; used on explicit logout. Safe to call at any time: an executor
// call still in the air settles against a stale generation and no-ops.
func (c *Coordinator) ClearState() {
	c.mu.Lock()
	c.generation++
	c.flight = nil
	c.store.Clear()
	c.sched.Cancel()
	c.mu.Unlock()
}

// IsExpired reports whether the stored access credential is absent or past
// its expiry.
func (c *Coordinator) IsExpired() bool {
	return c.store.IsExpired()
}

// TimeUntilExpiry returns how long the stored access credential remains
// valid, zero when absent.
func (c *Coordinator) TimeUntilExpiry() time.Duration {
	return c.store.TimeUntilExpiry()
}
