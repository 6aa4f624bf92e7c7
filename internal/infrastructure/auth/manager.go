package auth

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/deribit_gateway/internal/domain"
	"go.uber.org/zap"
)

type State int

const (
	StateUnauthenticated State = iota
	StateRefreshing
	StateAuthenticated
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRefreshing:
		return "refreshing"
	case StateAuthenticated:
		return "authenticated"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

type Config struct {
	// SafetyMargin is how long before expiry a token stops being handed out.
	SafetyMargin    time.Duration
	ExchangeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{SafetyMargin: 30 * time.Second, ExchangeTimeout: 15 * time.Second}
}

// token is replaced, never mutated. margin is the safety margin capped at
// half the issued lifetime.
type token struct {
	access    string
	refresh   string
	expiresAt time.Time
	margin    time.Duration
}

// flight is one in-progress exchange. done closes after access/err are set.
type flight struct {
	done   chan struct{}
	access string
	err    error
}

// Manager hands out bearer tokens and performs at most one credential
// exchange at a time. Invalid is terminal.
type Manager struct {
	creds  domain.Credentials
	ex     Exchanger
	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	tok        *token
	flight     *flight
	invalidErr *domain.Error
}

type ManagerOption func(*Manager)

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(creds domain.Credentials, ex Exchanger, cfg Config, opts ...ManagerOption) *Manager {
	d := DefaultConfig()
	if cfg.SafetyMargin < 0 {
		cfg.SafetyMargin = d.SafetyMargin
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = d.ExchangeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		creds:  creds,
		ex:     ex,
		cfg:    cfg,
		now:    time.Now,
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidToken returns a bearer that stays valid for at least the safety
// margin, or half its lifetime when that is shorter. Concurrent callers share one exchange. A caller whose ctx ends
// stops waiting without affecting the exchange or the other waiters.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state == StateInvalid {
		err := m.invalidErr
		m.mu.Unlock()
		return "", err
	}
	if m.tok != nil && m.usable(m.tok) {
		access := m.tok.access
		m.mu.Unlock()
		return access, nil
	}
	f := m.flight
	if f == nil {
		f = m.startFlight()
	}
	m.mu.Unlock()

	select {
	case <-f.done:
		return f.access, f.err
	case <-ctx.Done():
		return "", domain.FromContext(ctx, ctx.Err())
	}
}

// Expire forgets access if it is still the held token. The refresh token is
// kept so the next exchange can use the refresh grant.
func (m *Manager) Expire(access string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil || m.tok.access != access || m.state != StateAuthenticated {
		return
	}
	m.tok = &token{refresh: m.tok.refresh}
	m.state = StateUnauthenticated
	m.logger.Info("bearer rejected by venue, re-authenticating on next use")
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close discards the token and fails any in-flight exchange.
func (m *Manager) Close() {
	m.mu.Lock()
	m.state = StateInvalid
	m.tok = nil
	if m.invalidErr == nil {
		m.invalidErr = domain.NewAuthError("auth manager closed", nil)
	}
	m.mu.Unlock()
	m.cancel()
}

func (m *Manager) usable(t *token) bool {
	return t.access != "" && m.now().Add(t.margin).Before(t.expiresAt)
}

// startFlight must be called with mu held.
func (m *Manager) startFlight() *flight {
	f := &flight{done: make(chan struct{})}
	m.flight = f
	m.state = StateRefreshing

	refresh := ""
	if m.tok != nil {
		refresh = m.tok.refresh
	}
	go m.run(f, refresh)
	return f
}

func (m *Manager) run(f *flight, refresh string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ExchangeTimeout)
	defer cancel()

	issued, err := m.exchange(ctx, refresh)

	m.mu.Lock()
	m.flight = nil
	switch {
	case m.state == StateInvalid:
		f.err = m.invalidErr
	case err != nil:
		authErr, ok := domain.AsError(err)
		if !ok || authErr.Kind != domain.KindAuth {
			authErr = domain.NewAuthError("credential exchange failed", err)
		}
		m.state = StateInvalid
		m.tok = nil
		m.invalidErr = authErr
		f.err = authErr
		m.logger.Error("authentication failed, session is invalid", zap.Error(err))
	default:
		margin := m.cfg.SafetyMargin
		if half := issued.ExpiresIn / 2; half < margin {
			margin = half
		}
		m.tok = &token{
			access:    issued.AccessToken,
			refresh:   issued.RefreshToken,
			expiresAt: m.now().Add(issued.ExpiresIn),
			margin:    margin,
		}
		m.state = StateAuthenticated
		f.access = issued.AccessToken
		m.logger.Debug("bearer issued", zap.Duration("expires_in", issued.ExpiresIn), zap.String("scope", issued.Scope))
	}
	m.mu.Unlock()
	close(f.done)
}

// exchange prefers the refresh grant and falls back to client credentials
// once when the venue rejects the refresh token.
func (m *Manager) exchange(ctx context.Context, refresh string) (IssuedToken, error) {
	if refresh != "" {
		issued, err := m.ex.Exchange(ctx, Grant{Type: GrantRefreshToken, RefreshToken: refresh})
		if err == nil {
			return issued, nil
		}
		if ctx.Err() != nil {
			return IssuedToken{}, err
		}
		m.logger.Warn("refresh grant failed, falling back to client credentials", zap.Error(err))
	}
	return m.ex.Exchange(ctx, Grant{
		Type:         GrantClientCredentials,
		ClientID:     m.creds.ClientID(),
		ClientSecret: m.creds.ClientSecret(),
	})
}
