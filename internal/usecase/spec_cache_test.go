package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/usecase"
)

type MockFetcher struct {
	single atomic.Int32
	batch  atomic.Int32
	gate   chan struct{}
	err    error
}

func (m *MockFetcher) FetchInstrument(ctx context.Context, name string) (domain.InstrumentSpec, error) {
	m.single.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return domain.InstrumentSpec{}, m.err
	}
	spec := btcSpec()
	spec.InstrumentName = name
	return spec, nil
}

func (m *MockFetcher) FetchInstruments(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error) {
	m.batch.Add(1)
	a, b := btcSpec(), btcSpec()
	a.InstrumentName = currency + "-PERPETUAL"
	b.InstrumentName = currency + "-27DEC24"
	return []domain.InstrumentSpec{a, b}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSpecCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := &MockFetcher{}
	cache := usecase.NewSpecCache(f, 300*time.Second, usecase.WithSpecClock(clock.Now))
	ctx := context.Background()

	_, err := cache.GetSpec(ctx, "BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.single.Load())

	clock.Advance(100 * time.Second)
	_, err = cache.GetSpec(ctx, "BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.single.Load())

	clock.Advance(201 * time.Second)
	_, ok := cache.Peek("BTC-PERPETUAL")
	assert.False(t, ok)
	_, err = cache.GetSpec(ctx, "BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.single.Load())

	_, err = cache.GetSpec(ctx, "BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.single.Load())
}

func TestSpecCache_ExpiresExactlyAtTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := usecase.NewSpecCache(&MockFetcher{}, time.Minute, usecase.WithSpecClock(clock.Now))
	_, err := cache.GetSpec(context.Background(), "ETH-PERPETUAL")
	require.NoError(t, err)

	clock.Advance(time.Minute - time.Nanosecond)
	_, ok := cache.Peek("ETH-PERPETUAL")
	assert.True(t, ok)
	clock.Advance(time.Nanosecond)
	_, ok = cache.Peek("ETH-PERPETUAL")
	assert.False(t, ok)
}

func TestSpecCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := &MockFetcher{gate: make(chan struct{})}
	cache := usecase.NewSpecCache(f, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spec, err := cache.GetSpec(context.Background(), "BTC-PERPETUAL")
			assert.NoError(t, err)
			assert.Equal(t, "BTC-PERPETUAL", spec.InstrumentName)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.single.Load())
	assert.Equal(t, 1, cache.Size())
}

func TestSpecCache_WaiterCancellation(t *testing.T) {
	f := &MockFetcher{gate: make(chan struct{})}
	cache := usecase.NewSpecCache(f, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.GetSpec(ctx, "BTC-PERPETUAL")
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonTimeout, e.Reason)

	// the detached fetch still completes and fills the cache
	close(f.gate)
	assert.Eventually(t, func() bool {
		_, ok := cache.Peek("BTC-PERPETUAL")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), f.single.Load())
}

func TestSpecCache_FetchErrorIsNotCached(t *testing.T) {
	f := &MockFetcher{err: domain.NewRemoteError(&domain.RPCError{Code: 10025, Message: "instrument_not_found"})}
	cache := usecase.NewSpecCache(f, time.Minute)

	_, err := cache.GetSpec(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, domain.KindRemote, domain.KindOf(err))

	f.err = nil
	_, err = cache.GetSpec(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.single.Load())
}

func TestSpecCache_RefreshStoresBatch(t *testing.T) {
	f := &MockFetcher{}
	cache := usecase.NewSpecCache(f, time.Minute)

	specs, err := cache.Refresh(context.Background(), "ETH", "future")
	require.NoError(t, err)
	assert.Len(t, specs, 2)
	assert.Equal(t, 2, cache.Size())

	_, err = cache.GetSpec(context.Background(), "ETH-27DEC24")
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.single.Load())
}

func TestSpecCache_EmptyName(t *testing.T) {
	cache := usecase.NewSpecCache(&MockFetcher{}, time.Minute)
	_, err := cache.GetSpec(context.Background(), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = cache.Refresh(context.Background(), "", "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
