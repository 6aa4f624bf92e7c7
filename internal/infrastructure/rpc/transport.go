package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vitos/deribit_gateway/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/vitos/deribit_gateway/rpc"

// RetryHook observes each scheduled retry.
type RetryHook func(method string, attempt int, wait time.Duration, err error)

// Transport turns a method and params into a venue response. It owns envelope
// ids, bearer attachment, pacing and the retry policy; the Sender owns the wire.
type Transport struct {
	sender  Sender
	tokens  domain.TokenSource
	policy  Policy
	limiter *rate.Limiter
	ids     *atomic.Uint64
	logger  *zap.Logger
	tracer  trace.Tracer
	onRetry RetryHook
}

type Option func(*Transport)

func WithTokenSource(ts domain.TokenSource) Option {
	return func(t *Transport) { t.tokens = ts }
}

func WithPolicy(p Policy) Option {
	return func(t *Transport) { t.policy = p.normalized() }
}

// WithRateLimit paces outgoing attempts. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(t *Transport) {
		if perSecond <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithRetryHook(h RetryHook) Option {
	return func(t *Transport) { t.onRetry = h }
}

func NewTransport(sender Sender, opts ...Option) *Transport {
	t := &Transport{
		sender:  sender,
		policy:  DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		ids:     new(atomic.Uint64),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTokenSource returns a Transport sharing this one's sender, pacing and
// id sequence but attaching bearers from ts. The auth manager needs an
// unauthenticated transport to reach public/auth while everyone else needs an
// authenticated one.
func (t *Transport) WithTokenSource(ts domain.TokenSource) *Transport {
	c := *t
	c.tokens = ts
	return &c
}

func (t *Transport) Policy() Policy { return t.policy }

// Call sends method with params, retrying transient failures for read-only
// methods. Mutating methods are attempted exactly once.
func (t *Transport) Call(ctx context.Context, method string, params domain.Params) (*domain.RPCResponse, error) {
	ctx, span := t.tracer.Start(ctx, "rpc "+method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()

	mutating := IsMutating(method)
	attempts := 0
	var resp *domain.RPCResponse

	op := func() error {
		attempts++
		r, err := t.attempt(ctx, method, params)
		if err == nil {
			resp = r
			return nil
		}
		if mutating || ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		t.logger.Warn("retrying rpc call",
			zap.String("method", method),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if t.onRetry != nil {
			t.onRetry(method, attempts, wait, err)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(t.policy.backOff(), ctx), notify)
	span.SetAttributes(attribute.Int("rpc.attempts", attempts))
	if err != nil {
		derr := t.finalError(ctx, method, err)
		span.RecordError(derr)
		span.SetStatus(codes.Error, derr.Error())
		return nil, derr
	}
	return resp, nil
}

// Send performs a single attempt with a caller-built envelope. A zero id is
// replaced with a fresh one.
func (t *Transport) Send(ctx context.Context, req *domain.RPCRequest) (*domain.RPCResponse, error) {
	if req.ID == 0 {
		req.ID = t.ids.Add(1)
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	token, err := t.bearer(ctx, req.Method)
	if err != nil {
		return nil, err
	}
	resp, err := t.sender.Send(ctx, req, token)
	if err != nil {
		return nil, t.finalError(ctx, req.Method, err)
	}
	return resp, nil
}

func (t *Transport) attempt(ctx context.Context, method string, params domain.Params) (*domain.RPCResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, domain.FromContext(ctx, err)
	}

	token, err := t.bearer(ctx, method)
	if err != nil {
		return nil, err
	}

	req := &domain.RPCRequest{
		JSONRPC: "2.0",
		ID:      t.ids.Add(1),
		Method:  method,
		Params:  params,
	}

	actx, cancel := context.WithTimeout(ctx, t.policy.AttemptTimeout)
	defer cancel()

	resp, err := t.sender.Send(actx, req, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.FromContext(ctx, err)
		}
		if actx.Err() != nil {
			return nil, domain.NewRetryableTransportError(domain.ReasonTimeout, "attempt timed out", err)
		}
		if domain.KindOf(err) == domain.KindAuth {
			t.expire(token)
		}
		return nil, err
	}

	if resp.Error != nil {
		if domain.IsAuthCode(resp.Error.Code) {
			t.expire(token)
		}
		if domain.IsBusyCode(resp.Error.Code) {
			busy := domain.NewRetryableTransportError(domain.ReasonServerBusy, resp.Error.Message, resp.Error)
			busy.Code = resp.Error.Code
			busy.Data = resp.Error.Data
			return nil, busy
		}
	}
	return resp, nil
}

func (t *Transport) bearer(ctx context.Context, method string) (string, error) {
	if !IsPrivate(method) || t.tokens == nil {
		return "", nil
	}
	return t.tokens.ValidToken(ctx)
}

func (t *Transport) expire(token string) {
	if token != "" && t.tokens != nil {
		t.tokens.Expire(token)
	}
}

// finalError maps whatever ended the call onto the domain taxonomy. backoff
// reports the bare context error when the deadline hits between attempts.
func (t *Transport) finalError(ctx context.Context, method string, err error) error {
	derr, ok := domain.AsError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			derr = domain.FromContext(ctx, err)
		} else {
			derr = domain.Normalize(err)
		}
	}
	if IsMutating(method) && derr.Kind == domain.KindTransport && derr.Reason == domain.ReasonTimeout {
		derr.WithDetail("side_effect", "unknown")
	}
	return derr
}

func retryable(err error) bool {
	e, ok := domain.AsError(err)
	return ok && e.Retryable
}
