package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind is the caller-facing tag of a failed operation.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindAuth       ErrorKind = "auth_error"
	KindTransport  ErrorKind = "transport_error"
	KindRemote     ErrorKind = "remote_error"
)

// Transport failure reasons.
const (
	ReasonTimeout           = "timeout"
	ReasonCanceled          = "canceled"
	ReasonConnection        = "connection"
	ReasonHTTPStatus        = "http_status"
	ReasonRateLimited       = "rate_limited"
	ReasonServerBusy        = "server_busy"
	ReasonMalformedResponse = "malformed_response"
	ReasonInternal          = "internal"
)

// Validation reasons that do not come from the order validator.
const (
	ReasonInvalidParams    = "invalid_params"
	ReasonUnknownOperation = "unknown_operation"
)

// Error is the single error type that crosses component boundaries. Kind
// decides how callers branch; the remaining fields carry whatever the
// failing layer knew.
type Error struct {
	Kind      ErrorKind
	Reason    string
	Message   string
	Field     string
	Suggested *decimal.Decimal
	Code      int
	Data      json.RawMessage
	Details   map[string]any
	Retryable bool
	Wrapped   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s", e.Kind)
	if e.Reason != "" {
		msg += ":" + e.Reason
	}
	msg += "]"
	if e.Code != 0 {
		msg += fmt.Sprintf(" code=%d", e.Code)
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(": %v", e.Wrapped)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NewValidationError(reason, field, message string, suggested *decimal.Decimal) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Field: field, Message: message, Suggested: suggested}
}

func NewAuthError(message string, wrapped error) *Error {
	return &Error{Kind: KindAuth, Message: message, Wrapped: wrapped}
}

func NewTransportError(reason, message string, wrapped error) *Error {
	return &Error{Kind: KindTransport, Reason: reason, Message: message, Wrapped: wrapped}
}

// NewRetryableTransportError marks a failure the retry policy may repeat.
func NewRetryableTransportError(reason, message string, wrapped error) *Error {
	e := NewTransportError(reason, message, wrapped)
	e.Retryable = true
	return e
}

func NewRemoteError(rpcErr *RPCError) *Error {
	return &Error{Kind: KindRemote, Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the tag of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// FromContext converts an expired or cancelled context into a transport error.
func FromContext(ctx context.Context, cause error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return NewTransportError(ReasonCanceled, "request cancelled", cause)
	}
	return NewTransportError(ReasonTimeout, "deadline exceeded", cause)
}

// Normalize turns any error into a *Error so it can be tagged.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransportError(ReasonTimeout, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewTransportError(ReasonCanceled, "request cancelled", err)
	default:
		return NewTransportError(ReasonInternal, err.Error(), err)
	}
}
