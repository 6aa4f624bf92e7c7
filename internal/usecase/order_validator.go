package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/deribit_gateway/internal/domain"
)

// OrderValidator checks an order against instrument metadata before it is
// sent. It is pure: no I/O, no clock, no shared state.
type OrderValidator struct{}

func NewOrderValidator() *OrderValidator {
	return &OrderValidator{}
}

// CheckRequired runs the checks that need no instrument spec, so a request
// with missing fields is rejected before any spec lookup.
func (v *OrderValidator) CheckRequired(req domain.OrderRequest) domain.ValidationOutcome {
	switch {
	case req.InstrumentName == "":
		return domain.Reject(domain.ReasonMissingOrNonPositive, "instrument_name", "instrument_name is required", nil)
	case !req.Amount.IsPositive():
		return domain.Reject(domain.ReasonMissingOrNonPositive, "amount",
			fmt.Sprintf("amount must be positive, got %s", req.Amount), nil)
	case req.IsLimit() && !req.Price.IsPositive():
		return domain.Reject(domain.ReasonMissingOrNonPositive, "price",
			"limit orders need a positive price", nil)
	}
	return domain.Accept()
}

// Validate applies, in order: required fields, amount against contract size,
// then limit price against tick size. A non-positive step in the instrument
// spec skips its check.
func (v *OrderValidator) Validate(req domain.OrderRequest, spec domain.InstrumentSpec) domain.ValidationOutcome {
	if out := v.CheckRequired(req); !out.Accepted {
		return out
	}

	if step := spec.ContractSize; step.IsPositive() && !req.Amount.Mod(step).IsZero() {
		suggested := RoundToStep(req.Amount, step)
		return domain.Reject(domain.ReasonContractSizeMismatch, "amount",
			fmt.Sprintf("amount %s is not a multiple of contract size %s for %s", req.Amount, step, spec.InstrumentName),
			&suggested)
	}

	if req.IsLimit() {
		if step := spec.TickSize; step.IsPositive() && !req.Price.Mod(step).IsZero() {
			suggested := RoundToStep(req.Price, step)
			return domain.Reject(domain.ReasonTickSizeMismatch, "price",
				fmt.Sprintf("price %s is not a multiple of tick size %s for %s", req.Price, step, spec.InstrumentName),
				&suggested)
		}
	}

	return domain.Accept()
}

// RoundToStep returns the multiple of step nearest to value, ties away from
// zero, and never less than one step for a positive value. The arithmetic is
// exact.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	q, r := value.QuoRem(step, 0)
	if r.Abs().Mul(decimal.NewFromInt(2)).GreaterThanOrEqual(step) {
		if value.IsNegative() {
			q = q.Sub(decimal.NewFromInt(1))
		} else {
			q = q.Add(decimal.NewFromInt(1))
		}
	}
	rounded := q.Mul(step)
	if value.IsPositive() && rounded.LessThan(step) {
		return step
	}
	return rounded
}
