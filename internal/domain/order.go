package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderState string

const (
	OrderStateOpen            OrderState = "open"
	OrderStateFilled          OrderState = "filled"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRejected        OrderState = "rejected"
)

// OrderRequest is one buy or sell instruction before it reaches the venue.
// Price is only meaningful, and then required, for limit orders.
type OrderRequest struct {
	InstrumentName string          `json:"instrument_name"`
	Side           Side            `json:"side"`
	Amount         decimal.Decimal `json:"amount"`
	Type           OrderType       `json:"type"`
	Price          decimal.Decimal `json:"price"`
	ReduceOnly     bool            `json:"reduce_only"`
	PostOnly       bool            `json:"post_only"`
	Label          string          `json:"label,omitempty"`
}

func (r OrderRequest) IsLimit() bool { return r.Type == "" || r.Type == OrderTypeLimit }

// Args renders the request as operation arguments. Side is implied by the
// operation name and is not included.
func (r OrderRequest) Args() map[string]any {
	args := map[string]any{
		"instrument_name": r.InstrumentName,
		"amount":          r.Amount,
		"type":            string(r.orderType()),
		"reduce_only":     r.ReduceOnly,
		"post_only":       r.PostOnly,
	}
	if r.IsLimit() {
		args["price"] = r.Price
	}
	if r.Label != "" {
		args["label"] = r.Label
	}
	return args
}

func (r OrderRequest) orderType() OrderType {
	if r.Type == "" {
		return OrderTypeLimit
	}
	return r.Type
}

type RejectReason string

const (
	ReasonMissingOrNonPositive RejectReason = "missing_or_nonpositive"
	ReasonContractSizeMismatch RejectReason = "contract_size_mismatch"
	ReasonTickSizeMismatch     RejectReason = "tick_size_mismatch"
)

// ValidationOutcome is either Accepted or a rejection naming the offending
// field and, when computable, a corrected value.
type ValidationOutcome struct {
	Accepted  bool
	Reason    RejectReason
	Field     string
	Message   string
	Suggested *decimal.Decimal
}

func Accept() ValidationOutcome { return ValidationOutcome{Accepted: true} }

func Reject(reason RejectReason, field, message string, suggested *decimal.Decimal) ValidationOutcome {
	return ValidationOutcome{Reason: reason, Field: field, Message: message, Suggested: suggested}
}

// Err converts a rejection into a validation error. Accepted outcomes return nil.
func (o ValidationOutcome) Err() error {
	if o.Accepted {
		return nil
	}
	return NewValidationError(string(o.Reason), o.Field, o.Message, o.Suggested)
}

// OrderResult is the venue's view of an order after a place/cancel/query.
type OrderResult struct {
	OrderID        string           `json:"order_id"`
	State          OrderState       `json:"state"`
	FilledAmount   decimal.Decimal  `json:"filled_amount"`
	AveragePrice   *decimal.Decimal `json:"average_price,omitempty"`
	InstrumentName string           `json:"instrument_name"`
	Direction      Side             `json:"direction"`
	OrderType      OrderType        `json:"order_type"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	Label          string           `json:"label,omitempty"`
	ReduceOnly     bool             `json:"reduce_only"`
	PostOnly       bool             `json:"post_only"`
	Trades         int              `json:"trades,omitempty"`
}

// venueOrder is the order object as the venue sends it.
type venueOrder struct {
	OrderID      string          `json:"order_id"`
	OrderState   string          `json:"order_state"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Instrument   string          `json:"instrument_name"`
	Direction    Side            `json:"direction"`
	OrderType    OrderType       `json:"order_type"`
	Price        json.RawMessage `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Label        string          `json:"label"`
	ReduceOnly   bool            `json:"reduce_only"`
	PostOnly     bool            `json:"post_only"`
}

// DecodeOrder converts a venue order object into an OrderResult.
func DecodeOrder(data []byte) (*OrderResult, error) {
	var o venueOrder
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	if o.OrderID == "" {
		return nil, fmt.Errorf("order object without order_id")
	}
	state, err := ParseOrderState(o.OrderState, o.FilledAmount)
	if err != nil {
		return nil, err
	}
	res := &OrderResult{
		OrderID:        o.OrderID,
		State:          state,
		FilledAmount:   o.FilledAmount,
		InstrumentName: o.Instrument,
		Direction:      o.Direction,
		OrderType:      o.OrderType,
		Amount:         o.Amount,
		Label:          o.Label,
		ReduceOnly:     o.ReduceOnly,
		PostOnly:       o.PostOnly,
	}
	if o.FilledAmount.IsPositive() && o.AveragePrice.IsPositive() {
		avg := o.AveragePrice
		res.AveragePrice = &avg
	}
	// market orders carry the string "market_price" instead of a number
	if p := bytes.TrimSpace(o.Price); len(p) > 0 && p[0] != '"' && !bytes.Equal(p, []byte("null")) {
		var price decimal.Decimal
		if err := json.Unmarshal(p, &price); err != nil {
			return nil, fmt.Errorf("order price: %w", err)
		}
		res.Price = &price
	}
	return res, nil
}

// ParseOrderState maps the venue's order_state onto the five states callers
// branch on. Trigger orders waiting for activation count as open.
func ParseOrderState(venue string, filled decimal.Decimal) (OrderState, error) {
	switch venue {
	case "open", "untriggered", "triggered":
		if filled.IsPositive() {
			return OrderStatePartiallyFilled, nil
		}
		return OrderStateOpen, nil
	case "filled":
		return OrderStateFilled, nil
	case "cancelled":
		return OrderStateCancelled, nil
	case "rejected":
		return OrderStateRejected, nil
	default:
		return "", fmt.Errorf("unknown order state %q", venue)
	}
}

// CancelAllResult reports how many orders a bulk cancel removed.
type CancelAllResult struct {
	Cancelled int `json:"cancelled"`
}

// Position represents an open position on the exchange.
type Position struct {
	InstrumentName            string              `json:"instrument_name"`
	Kind                      InstrumentKind      `json:"kind"`
	Direction                 string              `json:"direction"`
	Size                      decimal.Decimal     `json:"size"`
	SizeCurrency              decimal.NullDecimal `json:"size_currency"`
	AveragePrice              decimal.Decimal     `json:"average_price"`
	MarkPrice                 decimal.Decimal     `json:"mark_price"`
	IndexPrice                decimal.Decimal     `json:"index_price"`
	FloatingProfitLoss        decimal.Decimal     `json:"floating_profit_loss"`
	RealizedProfitLoss        decimal.Decimal     `json:"realized_profit_loss"`
	TotalProfitLoss           decimal.Decimal     `json:"total_profit_loss"`
	EstimatedLiquidationPrice decimal.NullDecimal `json:"estimated_liquidation_price"`
	Leverage                  int                 `json:"leverage"`
}

type AccountSummary struct {
	Currency                 string          `json:"currency"`
	Balance                  decimal.Decimal `json:"balance"`
	Equity                   decimal.Decimal `json:"equity"`
	AvailableFunds           decimal.Decimal `json:"available_funds"`
	AvailableWithdrawalFunds decimal.Decimal `json:"available_withdrawal_funds"`
	MarginBalance            decimal.Decimal `json:"margin_balance"`
	InitialMargin            decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin        decimal.Decimal `json:"maintenance_margin"`
	TotalPL                  decimal.Decimal `json:"total_pl"`
	SessionUPL               decimal.Decimal `json:"session_upl"`
	SessionRPL               decimal.Decimal `json:"session_rpl"`
}

// JournalState extends OrderState with the states only the local journal uses.
type JournalState string

const (
	JournalPending JournalState = "pending"
	JournalUnknown JournalState = "unknown"
	JournalFailed  JournalState = "failed"
)

// JournalEntry is one order-mutating call as recorded locally.
type JournalEntry struct {
	Label          string       `json:"label"`
	Operation      string       `json:"operation"`
	InstrumentName string       `json:"instrument_name,omitempty"`
	Side           Side         `json:"side,omitempty"`
	OrderType      OrderType    `json:"order_type,omitempty"`
	Amount         string       `json:"amount,omitempty"`
	Price          string       `json:"price,omitempty"`
	OrderID        string       `json:"order_id,omitempty"`
	State          JournalState `json:"state"`
	ErrorKind      string       `json:"error_kind,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
