package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/sessionkit/common"
	"github.com/guarzo/sessionkit/config"
	"github.com/guarzo/sessionkit/modules/refresh"
	"github.com/guarzo/sessionkit/modules/tokens"
	"github.com/guarzo/sessionkit/modules/transport"
)

// Manager wires the credential store, refresh coordinator, proactive
// scheduler and HTTP glue into one session for the application to hold.
type Manager struct {
	cfg    *config.Config
	store  *tokens.Store
	sched  *refresh.Scheduler
	coord  *refresh.Coordinator
	logger *slog.Logger
}

// Option customizes Manager construction.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	storage common.Storage
	exec    refresh.Executor
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStorage overrides the durable storage picked from the config.
func WithStorage(storage common.Storage) Option {
	return func(o *options) { o.storage = storage }
}

// WithExecutor overrides the HTTP refresh executor; used in tests.
func WithExecutor(exec refresh.Executor) Option {
	return func(o *options) { o.exec = exec }
}

// New builds a Manager from the config, hydrates the credential store from
// its durable mirror once, and arms the proactive timer when a session is
// already present.
func New(cfg *config.Config, opts ...Option) *Manager {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	storage := o.storage
	if storage == nil {
		if cfg.StorageDir != "" {
			storage = common.NewFileStorage(cfg.StorageDir)
		} else {
			storage = common.NewMemoryStorage()
		}
	}
	store := tokens.NewStore(storage, cfg.StorageKey)

	exec := o.exec
	if exec == nil {
		httpClient := common.NewSessionHttpClient(cfg.UserAgent, cfg.HTTPTimeout, &http.Client{})
		exec = refresh.NewHTTPExecutor(cfg.RefreshURL, cfg.ClientID, httpClient)
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
	m.sched = refresh.NewScheduler(cfg.RefreshSkew, m.proactive)
	m.coord = refresh.NewCoordinator(store, exec, m.sched, logger)

	store.Load()
	if tok := store.Current(); tok != nil && tok.RefreshToken != "" {
		// inside the skew window already this fires immediately
		m.sched.ScheduleNextRefresh(tok.Expiry)
		logger.Debug("session hydrated from durable storage", slog.Time("expires_at", tok.Expiry))
	}

	return m
}

// proactive is the timer callback: a refresh whose outcome is ignored,
// failures surface later through the reactive path.
func (m *Manager) proactive() {
	if _, err := m.coord.AttemptRefresh(context.Background()); err != nil &&
		!errors.Is(err, refresh.ErrNotAuthenticated) {
		m.logger.Debug("proactive refresh failed", slog.String("err", err.Error()))
	}
}

// Login installs an externally issued credential pair (the login exchange
// itself lives outside this module) and arms the proactive timer.
func (m *Manager) Login(tok *oauth2.Token) {
	if tok == nil {
		return
	}
	m.store.Save(tok)
	m.sched.ScheduleNextRefresh(tok.Expiry)
}

// Logout ends the session: credentials cleared, timer cancelled, any
// in-flight refresh invalidated.
func (m *Manager) Logout() {
	m.coord.ClearState()
}

// Client returns a copy of base whose transport attaches the session's
// access credential and retries once after a coordinated refresh. Pass nil
// for a default client.
func (m *Manager) Client(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	wrapped := *base
	wrapped.Transport = transport.NewAuthTransport(base.Transport, m.store, m.coord)
	return &wrapped
}

// AttemptRefresh triggers (or joins) a coordinated refresh.
func (m *Manager) AttemptRefresh(ctx context.Context) (*oauth2.Token, error) {
	return m.coord.AttemptRefresh(ctx)
}

// IsRefreshing reports whether a refresh is outstanding.
func (m *Manager) IsRefreshing() bool {
	return m.coord.IsRefreshing()
}

// Refreshing returns the in-flight shared outcome, nil when idle.
func (m *Manager) Refreshing() *refresh.Flight {
	return m.coord.Refreshing()
}

// IsExpired reports whether the access credential is absent or stale.
func (m *Manager) IsExpired() bool {
	return m.coord.IsExpired()
}

// TimeUntilExpiry returns the access credential's remaining lifetime.
func (m *Manager) TimeUntilExpiry() time.Duration {
	return m.coord.TimeUntilExpiry()
}

// Token returns a momentary copy of the current pair, nil when absent.
func (m *Manager) Token() *oauth2.Token {
	return m.store.Current()
}
