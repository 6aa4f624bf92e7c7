package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorPayload is the wire form of a failed operation.
type ErrorPayload struct {
	Kind           ErrorKind        `json:"kind"`
	Reason         string           `json:"reason,omitempty"`
	Message        string           `json:"message"`
	Code           int              `json:"code,omitempty"`
	Field          string           `json:"field,omitempty"`
	SuggestedValue *decimal.Decimal `json:"suggested_value,omitempty"`
	Data           json.RawMessage  `json:"data,omitempty"`
	Details        map[string]any   `json:"details,omitempty"`
}

// Outcome is what a named operation returns: a result or a tagged error,
// never both. Callers branch on Error before touching Result.
type Outcome struct {
	Operation string        `json:"operation"`
	Result    any           `json:"result,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`

	err *Error
}

func Success(operation string, result any) Outcome {
	return Outcome{Operation: operation, Result: result}
}

func Failure(operation string, err error) Outcome {
	e := Normalize(err)
	if e == nil {
		e = NewTransportError(ReasonInternal, "failure without error", nil)
	}
	return Outcome{
		Operation: operation,
		Error: &ErrorPayload{
			Kind:           e.Kind,
			Reason:         e.Reason,
			Message:        e.Message,
			Code:           e.Code,
			Field:          e.Field,
			SuggestedValue: e.Suggested,
			Data:           e.Data,
			Details:        e.Details,
		},
		err: e,
	}
}

func (o Outcome) OK() bool { return o.Error == nil && o.Result != nil }

// Err returns the tagged error, or nil on success.
func (o Outcome) Err() error {
	if o.Error == nil {
		return nil
	}
	if o.err != nil {
		return o.err
	}
	return &Error{
		Kind:      o.Error.Kind,
		Reason:    o.Error.Reason,
		Message:   o.Error.Message,
		Code:      o.Error.Code,
		Field:     o.Error.Field,
		Suggested: o.Error.SuggestedValue,
		Data:      o.Error.Data,
		Details:   o.Error.Details,
	}
}

// ResultAs extracts a typed result. It fails when the outcome carries an
// error, carries no result, or carries a result of another type, so code
// that skips the tag check still cannot mistake a failure for a value.
func ResultAs[T any](o Outcome) (T, error) {
	var zero T
	if err := o.Err(); err != nil {
		return zero, err
	}
	if o.Result == nil {
		return zero, NewTransportError(ReasonMalformedResponse, fmt.Sprintf("%s returned no result", o.Operation), nil)
	}
	v, ok := o.Result.(T)
	if !ok {
		return zero, NewTransportError(ReasonInternal, fmt.Sprintf("%s result is %T, not %T", o.Operation, o.Result, zero), nil)
	}
	return v, nil
}
