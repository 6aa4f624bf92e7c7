package rpc

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how a call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	AttemptTimeout  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		AttemptTimeout:  10 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

var mutatingMethods = map[string]struct{}{
	"private/buy":                      {},
	"private/sell":                     {},
	"private/edit":                     {},
	"private/cancel":                   {},
	"private/cancel_all":               {},
	"private/cancel_all_by_currency":   {},
	"private/cancel_all_by_instrument": {},
	"private/cancel_by_label":          {},
	"private/close_position":           {},
}

// IsMutating reports methods that change venue state. They are sent once.
func IsMutating(method string) bool {
	_, ok := mutatingMethods[method]
	return ok
}

// IsPrivate reports methods that need a bearer token.
func IsPrivate(method string) bool {
	return strings.HasPrefix(method, "private/")
}
