package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/deribit_gateway/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// InstrumentFetcher loads instrument metadata from the venue.
type InstrumentFetcher interface {
	FetchInstrument(ctx context.Context, name string) (domain.InstrumentSpec, error)
	FetchInstruments(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error)
}

// RPCInstrumentFetcher reads specs through public/get_instrument and
// public/get_instruments.
type RPCInstrumentFetcher struct {
	caller     domain.Caller
	classifier *ErrorClassifier
}

func NewRPCInstrumentFetcher(caller domain.Caller) *RPCInstrumentFetcher {
	return &RPCInstrumentFetcher{caller: caller, classifier: NewErrorClassifier(nil)}
}

func (f *RPCInstrumentFetcher) FetchInstrument(ctx context.Context, name string) (domain.InstrumentSpec, error) {
	call := Call{Operation: "get_instrument", Method: "public/get_instrument", Params: domain.Params{"instrument_name": name}}
	resp, err := f.caller.Call(ctx, call.Method, call.Params)
	raw, err := f.classifier.Classify(call, resp, err)
	if err != nil {
		return domain.InstrumentSpec{}, err
	}
	var spec domain.InstrumentSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return domain.InstrumentSpec{}, domain.NewTransportError(domain.ReasonMalformedResponse, "decode instrument", err)
	}
	if spec.InstrumentName == "" {
		spec.InstrumentName = name
	}
	return spec, nil
}

func (f *RPCInstrumentFetcher) FetchInstruments(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error) {
	params := domain.Params{"currency": currency, "expired": false}
	if kind != "" {
		params["kind"] = kind
	}
	call := Call{Operation: "get_instruments", Method: "public/get_instruments", Params: params}
	resp, err := f.caller.Call(ctx, call.Method, call.Params)
	raw, err := f.classifier.Classify(call, resp, err)
	if err != nil {
		return nil, err
	}
	var specs []domain.InstrumentSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, domain.NewTransportError(domain.ReasonMalformedResponse, "decode instruments", err)
	}
	return specs, nil
}

// cacheEntry is owned by SpecCache.
type cacheEntry struct {
	spec       domain.InstrumentSpec
	insertedAt time.Time
	ttl        time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// SpecCache serves instrument specs for at most ttl after they were fetched.
// Concurrent misses on one instrument share a single fetch.
type SpecCache struct {
	fetcher      InstrumentFetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
}

type SpecCacheOption func(*SpecCache)

func WithSpecClock(now func() time.Time) SpecCacheOption {
	return func(c *SpecCache) { c.now = now }
}

func WithSpecLogger(l *zap.Logger) SpecCacheOption {
	return func(c *SpecCache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithFetchTimeout(d time.Duration) SpecCacheOption {
	return func(c *SpecCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func NewSpecCache(fetcher InstrumentFetcher, ttl time.Duration, opts ...SpecCacheOption) *SpecCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	c := &SpecCache{
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: 15 * time.Second,
		now:          time.Now,
		logger:       zap.NewNop(),
		entries:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSpec returns the cached spec or fetches it. The fetch runs detached
// from ctx so that a waiter leaving early does not fail the others.
func (c *SpecCache) GetSpec(ctx context.Context, name string) (domain.InstrumentSpec, error) {
	if name == "" {
		return domain.InstrumentSpec{}, domain.NewValidationError(domain.ReasonInvalidParams, "instrument_name", "instrument_name is required", nil)
	}
	if spec, ok := c.Peek(name); ok {
		return spec, nil
	}

	ch := c.group.DoChan(name, func() (any, error) {
		// a fill may have landed between Peek and DoChan
		if spec, ok := c.Peek(name); ok {
			return spec, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		spec, err := c.fetcher.FetchInstrument(fctx, name)
		if err != nil {
			c.logger.Warn("instrument fetch failed", zap.String("instrument", name), zap.Error(err))
			return nil, err
		}
		c.store(c.now(), spec)
		c.logger.Debug("instrument cached", zap.String("instrument", name))
		return spec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.InstrumentSpec{}, res.Err
		}
		return res.Val.(domain.InstrumentSpec), nil
	case <-ctx.Done():
		return domain.InstrumentSpec{}, domain.FromContext(ctx, ctx.Err())
	}
}

// Refresh loads every live instrument of currency+kind and stores each with
// a fresh insertion time.
func (c *SpecCache) Refresh(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error) {
	if currency == "" {
		return nil, domain.NewValidationError(domain.ReasonInvalidParams, "currency", "currency is required", nil)
	}
	key := fmt.Sprintf("batch:%s:%s", currency, kind)
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		specs, err := c.fetcher.FetchInstruments(fctx, currency, kind)
		if err != nil {
			return nil, err
		}
		now := c.now()
		for _, spec := range specs {
			c.store(now, spec)
		}
		c.logger.Info("instrument batch cached",
			zap.String("currency", currency), zap.String("kind", kind), zap.Int("count", len(specs)))
		return specs, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.InstrumentSpec), nil
	case <-ctx.Done():
		return nil, domain.FromContext(ctx, ctx.Err())
	}
}

// Peek returns an unexpired entry without fetching.
func (c *SpecCache) Peek(name string) (domain.InstrumentSpec, bool) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok || e.expired(c.now()) {
		return domain.InstrumentSpec{}, false
	}
	return e.spec, true
}

// Size counts stored entries, expired ones included.
func (c *SpecCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SpecCache) store(now time.Time, spec domain.InstrumentSpec) {
	if spec.InstrumentName == "" {
		return
	}
	c.mu.Lock()
	c.entries[spec.InstrumentName] = cacheEntry{spec: spec, insertedAt: now, ttl: c.ttl}
	c.mu.Unlock()
}
