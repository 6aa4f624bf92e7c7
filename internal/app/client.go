package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/auth"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
	"github.com/vitos/deribit_gateway/internal/infrastructure/rpc"
	"github.com/vitos/deribit_gateway/internal/infrastructure/storage"
	"github.com/vitos/deribit_gateway/internal/usecase"
	"go.uber.org/zap"
)

// Client is one authenticated venue session: a transport, its token
// lifecycle, the spec cache and the operation registry built on them.
type Client struct {
	cfg      *config.Config
	logger   *zap.Logger
	sender   rpc.Sender
	auth     *auth.Manager
	specs    *usecase.SpecCache
	registry *usecase.Registry
	journal  *storage.SQLiteStore
	started  time.Time
}

// Status is a snapshot of the client for health checks.
type Status struct {
	Network     domain.Network `json:"network"`
	Transport   string         `json:"transport"`
	Auth        string         `json:"auth"`
	CachedSpecs int            `json:"cached_specs"`
	Operations  int            `json:"operations"`
	Journal     bool           `json:"journal"`
	Uptime      string         `json:"uptime"`
}

// New wires a client from configuration. Without credentials only public
// operations succeed; private ones fail with an auth error.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var sender rpc.Sender
	switch cfg.Exchange.Transport {
	case "ws":
		sender = rpc.NewWSSender(cfg.WSEndpoint(), logger.Named("ws"))
	default:
		sender = rpc.NewHTTPSender(cfg.RESTEndpoint(), cfg.RequestTimeout())
	}

	retry := cfg.Exchange.Retry
	base := rpc.NewTransport(sender,
		rpc.WithPolicy(rpc.Policy{
			MaxAttempts:     retry.MaxAttempts,
			InitialInterval: time.Duration(retry.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(retry.MaxIntervalMs) * time.Millisecond,
			Multiplier:      retry.Multiplier,
			Jitter:          retry.Jitter,
			AttemptTimeout:  time.Duration(retry.AttemptTimeoutMs) * time.Millisecond,
		}),
		rpc.WithRateLimit(cfg.Exchange.RateLimit.PerSecond, cfg.Exchange.RateLimit.Burst),
		rpc.WithLogger(logger.Named("rpc")),
	)

	c := &Client{cfg: cfg, logger: logger, sender: sender, started: time.Now()}

	var tokens domain.TokenSource = missingCredentials{}
	creds, err := cfg.Credentials()
	if err == nil {
		c.auth = auth.NewManager(creds, auth.NewRPCExchanger(base),
			auth.Config{SafetyMargin: cfg.SafetyMargin(), ExchangeTimeout: cfg.ExchangeTimeout()},
			auth.WithLogger(logger.Named("auth")),
		)
		tokens = c.auth
	} else {
		logger.Warn("no client credentials configured, private operations are disabled", zap.Error(err))
	}
	transport := base.WithTokenSource(tokens)

	c.specs = usecase.NewSpecCache(usecase.NewRPCInstrumentFetcher(transport), cfg.SpecTTL(),
		usecase.WithFetchTimeout(cfg.SpecFetchTimeout()),
		usecase.WithSpecLogger(logger.Named("specs")),
	)

	opts := []usecase.RegistryOption{usecase.WithRegistryLogger(logger.Named("registry"))}
	if path := cfg.Journal.Path; path != "" {
		store, err := storage.NewSQLiteStore(path)
		if err != nil {
			_ = c.closeSession()
			return nil, fmt.Errorf("failed to open order journal: %w", err)
		}
		c.journal = store
		opts = append(opts, usecase.WithJournal(store))
	}

	c.registry = usecase.NewRegistry(transport, c.specs, usecase.NewErrorClassifier(c.specs), opts...)

	logger.Info("client ready",
		zap.String("network", string(cfg.Network())),
		zap.String("transport", cfg.Exchange.Transport),
		zap.Bool("private", c.auth != nil),
		zap.Bool("journal", c.journal != nil),
	)
	return c, nil
}

// Invoke runs a named operation.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) domain.Outcome {
	return c.registry.Invoke(ctx, name, args)
}

func (c *Client) Operations() []usecase.Operation {
	return c.registry.Operations()
}

// Prewarm loads the configured instrument batches into the spec cache.
// Every target is attempted; the errors are joined.
func (c *Client) Prewarm(ctx context.Context) error {
	var errs []error
	for _, target := range c.cfg.SpecCache.Prewarm {
		specs, err := c.specs.Refresh(ctx, target.Currency, target.Kind)
		if err != nil {
			c.logger.Error("spec prewarm failed",
				zap.String("currency", target.Currency), zap.String("kind", target.Kind), zap.Error(err))
			errs = append(errs, fmt.Errorf("prewarm %s/%s: %w", target.Currency, target.Kind, err))
			continue
		}
		c.logger.Info("spec prewarm done", zap.String("currency", target.Currency), zap.Int("count", len(specs)))
	}
	return errors.Join(errs...)
}

// RefreshSpecs loads every live instrument of currency and kind into the cache.
func (c *Client) RefreshSpecs(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error) {
	return c.specs.Refresh(ctx, currency, kind)
}

// Spec returns the cached spec of an instrument, fetching it on a miss.
func (c *Client) Spec(ctx context.Context, name string) (domain.InstrumentSpec, error) {
	return c.specs.GetSpec(ctx, name)
}

// Journal lists the most recent order attempts. It fails when no journal
// is configured.
func (c *Client) Journal(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.ListRecent(ctx, limit)
}

// JournalEntry returns the journaled attempt carrying label.
func (c *Client) JournalEntry(ctx context.Context, label string) (*domain.JournalEntry, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.GetByLabel(ctx, label)
}

func (c *Client) Status() Status {
	st := Status{
		Network:     c.cfg.Network(),
		Transport:   c.cfg.Exchange.Transport,
		Auth:        "disabled",
		CachedSpecs: c.specs.Size(),
		Operations:  len(c.registry.Operations()),
		Journal:     c.journal != nil,
		Uptime:      time.Since(c.started).Round(time.Second).String(),
	}
	if c.auth != nil {
		st.Auth = c.auth.State().String()
	}
	return st
}

// Close tears down the connection, the token and the journal.
func (c *Client) Close() error {
	err := c.closeSession()
	if c.journal != nil {
		if jerr := c.journal.Close(); jerr != nil {
			err = errors.Join(err, jerr)
		}
	}
	c.logger.Info("client closed")
	return err
}

func (c *Client) closeSession() error {
	if c.auth != nil {
		c.auth.Close()
	}
	return c.sender.Close()
}

var ErrJournalDisabled = errors.New("order journal is not configured")

// missingCredentials stands in for the auth manager when no credentials are
// configured.
type missingCredentials struct{}

func (missingCredentials) ValidToken(ctx context.Context) (string, error) {
	return "", domain.NewAuthError("client credentials are not configured", nil)
}

func (missingCredentials) Expire(string) {}
