package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/auth"
)

type MockExchanger struct {
	mu      sync.Mutex
	calls   atomic.Int32
	grants  []auth.Grant
	started chan struct{}
	gate    chan struct{}
	issue   func(n int32, g auth.Grant) (auth.IssuedToken, error)
}

func (m *MockExchanger) Exchange(ctx context.Context, g auth.Grant) (auth.IssuedToken, error) {
	n := m.calls.Add(1)
	m.mu.Lock()
	m.grants = append(m.grants, g)
	m.mu.Unlock()
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return auth.IssuedToken{}, ctx.Err()
		}
	}
	if m.issue != nil {
		return m.issue(n, g)
	}
	return auth.IssuedToken{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900 * time.Second}, nil
}

func testCreds(t *testing.T) domain.Credentials {
	c, err := domain.NewCredentials("id", "secret", domain.NetworkTest)
	require.NoError(t, err)
	return c
}

func TestManager_ConcurrentCallersShareOneExchange(t *testing.T) {
	ex := &MockExchanger{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := auth.NewManager(testCreds(t), ex, auth.DefaultConfig())
	defer m.Close()

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.ValidToken(context.Background())
		}(i)
	}

	<-ex.started
	assert.Equal(t, auth.StateRefreshing, m.State())
	// give late goroutines time to join the flight
	time.Sleep(20 * time.Millisecond)
	close(ex.gate)
	wg.Wait()

	assert.Equal(t, int32(1), ex.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}
	assert.Equal(t, auth.StateAuthenticated, m.State())
}

func TestManager_ReusesTokenUntilSafetyMargin(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ex := &MockExchanger{issue: func(n int32, g auth.Grant) (auth.IssuedToken, error) {
		return auth.IssuedToken{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 100 * time.Second}, nil
	}}
	m := auth.NewManager(testCreds(t), ex, auth.Config{SafetyMargin: 30 * time.Second},
		auth.WithClock(func() time.Time { return now }))
	defer m.Close()

	ctx := context.Background()
	_, err := m.ValidToken(ctx)
	require.NoError(t, err)

	now = now.Add(60 * time.Second)
	_, err = m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ex.calls.Load())

	// 75s in: 25s left, inside the 30s margin
	now = now.Add(15 * time.Second)
	_, err = m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ex.calls.Load())

	ex.mu.Lock()
	defer ex.mu.Unlock()
	assert.Equal(t, auth.GrantClientCredentials, ex.grants[0].Type)
	assert.Equal(t, "id", ex.grants[0].ClientID)
	assert.Equal(t, auth.GrantRefreshToken, ex.grants[1].Type)
	assert.Equal(t, "refresh", ex.grants[1].RefreshToken)
}

func TestManager_ShortLivedTokenIsReused(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ex := &MockExchanger{issue: func(n int32, g auth.Grant) (auth.IssuedToken, error) {
		return auth.IssuedToken{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 10 * time.Second}, nil
	}}
	m := auth.NewManager(testCreds(t), ex, auth.Config{SafetyMargin: 30 * time.Second},
		auth.WithClock(func() time.Time { return now }))
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tok, err := m.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access", tok)
	}
	assert.Equal(t, int32(1), ex.calls.Load())

	// margin is capped at 5s for a 10s token
	now = now.Add(4 * time.Second)
	_, err := m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ex.calls.Load())

	now = now.Add(2 * time.Second)
	_, err = m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestManager_RefreshFailureFallsBackToClientCredentials(t *testing.T) {
	now := time.Now()
	ex := &MockExchanger{issue: func(n int32, g auth.Grant) (auth.IssuedToken, error) {
		if g.Type == auth.GrantRefreshToken {
			return auth.IssuedToken{}, domain.NewAuthError("invalid refresh token", nil)
		}
		return auth.IssuedToken{AccessToken: "fresh", RefreshToken: "r", ExpiresIn: time.Minute}, nil
	}}
	m := auth.NewManager(testCreds(t), ex, auth.Config{SafetyMargin: 30 * time.Second},
		auth.WithClock(func() time.Time { return now }))
	defer m.Close()

	_, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	now = now.Add(45 * time.Second)

	tok, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, int32(3), ex.calls.Load())
}

func TestManager_ExchangeFailureIsTerminal(t *testing.T) {
	ex := &MockExchanger{issue: func(n int32, g auth.Grant) (auth.IssuedToken, error) {
		return auth.IssuedToken{}, errors.New("invalid_credentials")
	}}
	m := auth.NewManager(testCreds(t), ex, auth.DefaultConfig())
	defer m.Close()

	_, err := m.ValidToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
	assert.Equal(t, auth.StateInvalid, m.State())

	_, err2 := m.ValidToken(context.Background())
	assert.Equal(t, err, err2)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestManager_CancelledWaiterDoesNotFailOthers(t *testing.T) {
	ex := &MockExchanger{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := auth.NewManager(testCreds(t), ex, auth.DefaultConfig())
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := m.ValidToken(ctx)
		cancelled <- err
	}()
	<-ex.started

	other := make(chan error, 1)
	go func() {
		_, err := m.ValidToken(context.Background())
		other <- err
	}()

	cancel()
	err := <-cancelled
	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTransport, e.Kind)
	assert.Equal(t, domain.ReasonCanceled, e.Reason)

	close(ex.gate)
	require.NoError(t, <-other)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestManager_ExpireForcesReauthentication(t *testing.T) {
	ex := &MockExchanger{}
	m := auth.NewManager(testCreds(t), ex, auth.DefaultConfig())
	defer m.Close()

	tok, err := m.ValidToken(context.Background())
	require.NoError(t, err)

	m.Expire("someone-else")
	_, err = m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), ex.calls.Load())

	m.Expire(tok)
	assert.Equal(t, auth.StateUnauthenticated, m.State())
	_, err = m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestManager_ClosedManagerRejects(t *testing.T) {
	m := auth.NewManager(testCreds(t), &MockExchanger{}, auth.DefaultConfig())
	m.Close()
	_, err := m.ValidToken(context.Background())
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
}
