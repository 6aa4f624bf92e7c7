package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/deribit_gateway/internal/domain"
	"go.uber.org/zap"
)

type ParamKind string

const (
	ParamString  ParamKind = "string"
	ParamDecimal ParamKind = "decimal"
	ParamInt     ParamKind = "integer"
	ParamBool    ParamKind = "boolean"
)

// ParamSpec describes one argument of an operation.
type ParamSpec struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Operation is a fixed record binding a caller-facing name to a venue method.
// Preflight operations are validated against the instrument spec before the
// call is sent.
type Operation struct {
	Name        string                                 `json:"name"`
	Method      string                                 `json:"method"`
	Description string                                 `json:"description"`
	Params      []ParamSpec                            `json:"params"`
	Preflight   bool                                   `json:"preflight"`
	Side        domain.Side                            `json:"side,omitempty"`
	Mutating    bool                                   `json:"mutating"`
	Parse       func(raw json.RawMessage) (any, error) `json:"-"`
}

// Registry resolves operation names and runs them: bind arguments, validate
// orders locally, call the venue, classify the reply, decode the result.
type Registry struct {
	mu         sync.RWMutex
	ops        map[string]Operation
	caller     domain.Caller
	specs      domain.SpecSource
	validator  *OrderValidator
	classifier *ErrorClassifier
	journal    domain.OrderJournal
	newLabel   func() string
	logger     *zap.Logger
}

type RegistryOption func(*Registry)

func WithJournal(j domain.OrderJournal) RegistryOption {
	return func(r *Registry) { r.journal = j }
}

func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithLabelGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newLabel = gen }
}

func NewRegistry(caller domain.Caller, specs domain.SpecSource, classifier *ErrorClassifier, opts ...RegistryOption) *Registry {
	r := &Registry{
		ops:        make(map[string]Operation),
		caller:     caller,
		specs:      specs,
		validator:  NewOrderValidator(),
		classifier: classifier,
		newLabel:   uuid.NewString,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, op := range DefaultOperations() {
		r.ops[op.Name] = op
	}
	return r
}

// Register adds or replaces an operation.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" || op.Method == "" {
		return fmt.Errorf("operation needs a name and a method")
	}
	if op.Parse == nil {
		op.Parse = rawResult
	}
	if op.Preflight && !op.Side.Valid() {
		return fmt.Errorf("preflight operation %s needs a side", op.Name)
	}
	r.mu.Lock()
	r.ops[op.Name] = op
	r.mu.Unlock()
	return nil
}

func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Operations lists the catalog sorted by name.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named operation. It never panics and never returns both a
// result and an error.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (out domain.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("operation panicked", zap.String("operation", name), zap.Any("panic", p))
			out = domain.Failure(name, domain.NewTransportError(domain.ReasonInternal, fmt.Sprintf("operation %s panicked: %v", name, p), nil))
		}
	}()

	op, ok := r.Lookup(name)
	if !ok {
		return domain.Failure(name, domain.NewValidationError(domain.ReasonUnknownOperation, "operation",
			fmt.Sprintf("unknown operation %q", name), nil))
	}

	params, err := bind(op, args)
	if err != nil {
		return domain.Failure(name, err)
	}

	if op.Preflight {
		req := orderRequest(op, params)
		if err := r.preflight(ctx, req); err != nil {
			r.logger.Info("order rejected locally",
				zap.String("operation", name),
				zap.String("instrument", req.InstrumentName),
				zap.Error(err),
			)
			return domain.Failure(name, err)
		}
		if req.Label == "" {
			req.Label = r.newLabel()
		}
		params = orderParams(req, params)
	}

	label := r.recordAttempt(ctx, op, params)

	call := Call{Operation: name, Method: op.Method, Params: wireParams(params)}
	resp, err := r.caller.Call(ctx, call.Method, call.Params)
	raw, err := r.classifier.Classify(call, resp, err)
	if err != nil {
		r.recordFailure(ctx, label, err)
		return domain.Failure(name, withLabel(err, params))
	}

	result, err := op.Parse(raw)
	if err != nil {
		perr := domain.NewTransportError(domain.ReasonMalformedResponse, fmt.Sprintf("decode %s result", name), err)
		r.recordFailure(ctx, label, perr)
		return domain.Failure(name, perr)
	}
	r.recordSuccess(ctx, label, result)
	return domain.Success(name, result)
}

func (r *Registry) preflight(ctx context.Context, req domain.OrderRequest) error {
	if out := r.validator.CheckRequired(req); !out.Accepted {
		return out.Err()
	}
	spec, err := r.specs.GetSpec(ctx, req.InstrumentName)
	if err != nil {
		return err
	}
	return r.validator.Validate(req, spec).Err()
}

// recordAttempt journals a mutating call before it is sent and returns the
// label it is keyed by, or "" when nothing was journaled.
func (r *Registry) recordAttempt(ctx context.Context, op Operation, params domain.Params) string {
	if r.journal == nil || !op.Mutating {
		return ""
	}
	label, _ := params["label"].(string)
	if label == "" {
		label = r.newLabel()
	}
	entry := &domain.JournalEntry{
		Label:     label,
		Operation: op.Name,
		Side:      op.Side,
	}
	entry.InstrumentName, _ = params["instrument_name"].(string)
	if t, ok := params["type"].(string); ok {
		entry.OrderType = domain.OrderType(t)
	}
	if a, ok := params["amount"].(decimal.Decimal); ok {
		entry.Amount = a.String()
	}
	if p, ok := params["price"].(decimal.Decimal); ok {
		entry.Price = p.String()
	}
	if id, ok := params["order_id"].(string); ok {
		entry.OrderID = id
	}
	if err := r.journal.RecordAttempt(ctx, entry); err != nil {
		r.logger.Warn("journal write failed", zap.String("label", label), zap.Error(err))
	}
	return label
}

func (r *Registry) recordSuccess(ctx context.Context, label string, result any) {
	if label == "" {
		return
	}
	state := domain.JournalState(domain.OrderStateCancelled)
	orderID := ""
	if o, ok := result.(*domain.OrderResult); ok {
		state = domain.JournalState(o.State)
		orderID = o.OrderID
	}
	if err := r.journal.RecordOutcome(context.WithoutCancel(ctx), label, state, orderID, "", ""); err != nil {
		r.logger.Warn("journal update failed", zap.String("label", label), zap.Error(err))
	}
}

func (r *Registry) recordFailure(ctx context.Context, label string, err error) {
	if label == "" {
		return
	}
	e := domain.Normalize(err)
	state := domain.JournalFailed
	if e.Kind == domain.KindTransport && e.Reason == domain.ReasonTimeout {
		state = domain.JournalUnknown
	}
	if jerr := r.journal.RecordOutcome(context.WithoutCancel(ctx), label, state, "", string(e.Kind), e.Error()); jerr != nil {
		r.logger.Warn("journal update failed", zap.String("label", label), zap.Error(jerr))
	}
}

// withLabel points an order with unknown outcome at the label that
// reconciles it through get_order_state_by_label.
func withLabel(err error, params domain.Params) error {
	e, ok := domain.AsError(err)
	if !ok {
		return err
	}
	label, _ := params["label"].(string)
	if v, ok := e.Details["side_effect"]; ok && v == "unknown" && label != "" {
		e.WithDetail("label", label)
	}
	return e
}

func orderRequest(op Operation, params domain.Params) domain.OrderRequest {
	req := domain.OrderRequest{Side: op.Side}
	req.InstrumentName, _ = params["instrument_name"].(string)
	req.Amount, _ = params["amount"].(decimal.Decimal)
	req.Price, _ = params["price"].(decimal.Decimal)
	req.ReduceOnly, _ = params["reduce_only"].(bool)
	req.PostOnly, _ = params["post_only"].(bool)
	req.Label, _ = params["label"].(string)
	if t, ok := params["type"].(string); ok {
		req.Type = domain.OrderType(t)
	}
	return req
}

// orderParams rebuilds the params from the request so market orders carry no
// price, keeping any extra bound arguments.
func orderParams(req domain.OrderRequest, bound domain.Params) domain.Params {
	out := domain.Params(req.Args())
	for k, v := range bound {
		if _, ok := out[k]; ok || k == "price" {
			continue
		}
		out[k] = v
	}
	return out
}

func rawResult(raw json.RawMessage) (any, error) {
	return raw, nil
}

// bind checks args against the operation's params and returns typed values:
// string, decimal.Decimal, int64 or bool. Unknown arguments are rejected.
func bind(op Operation, args map[string]any) (domain.Params, error) {
	known := make(map[string]ParamSpec, len(op.Params))
	for _, p := range op.Params {
		known[p.Name] = p
	}
	for k := range args {
		if _, ok := known[k]; !ok {
			return nil, invalidParam(k, fmt.Sprintf("%s does not take argument %q", op.Name, k))
		}
	}

	out := make(domain.Params, len(op.Params))
	for _, p := range op.Params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, invalidParam(p.Name, fmt.Sprintf("%s is required", p.Name))
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		typed, err := coerce(p, v)
		if err != nil {
			return nil, invalidParam(p.Name, fmt.Sprintf("%s: %v", p.Name, err))
		}
		if len(p.Enum) > 0 {
			s, _ := typed.(string)
			if !contains(p.Enum, s) {
				return nil, invalidParam(p.Name, fmt.Sprintf("%s must be one of %s", p.Name, strings.Join(p.Enum, ", ")))
			}
		}
		out[p.Name] = typed
	}
	return out, nil
}

func invalidParam(field, msg string) error {
	return domain.NewValidationError(domain.ReasonInvalidParams, field, msg, nil)
}

func coerce(p ParamSpec, v any) (any, error) {
	switch p.Kind {
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		s = strings.TrimSpace(s)
		if s == "" && p.Required {
			return nil, fmt.Errorf("must not be empty")
		}
		return s, nil
	case ParamDecimal:
		return toDecimal(v)
	case ParamInt:
		return toInt(v)
	case ParamBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		return nil, fmt.Errorf("want boolean, got %T", v)
	default:
		return nil, fmt.Errorf("unsupported parameter kind %q", p.Kind)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, fmt.Errorf("nil decimal")
		}
		return *n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Zero, fmt.Errorf("want decimal, got %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

// wireParams renders decimals as JSON numbers with their exact digits.
func wireParams(p domain.Params) domain.Params {
	out := make(domain.Params, len(p))
	for k, v := range p {
		switch d := v.(type) {
		case decimal.Decimal:
			out[k] = json.Number(d.String())
		default:
			out[k] = v
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
