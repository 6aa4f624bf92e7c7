package domain

import "context"

// Caller is the typed remote call capability: one JSON-RPC method with its
// params, answered by the venue's response or a transport failure.
type Caller interface {
	Call(ctx context.Context, method string, params Params) (*RPCResponse, error)
}

// TokenSource hands out bearer tokens for private methods.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	// Expire reports that the venue rejected this bearer.
	Expire(token string)
}

// SpecSource resolves instrument metadata.
type SpecSource interface {
	GetSpec(ctx context.Context, instrumentName string) (InstrumentSpec, error)
	// Peek returns a cached spec without any remote call.
	Peek(instrumentName string) (InstrumentSpec, bool)
}

// OrderJournal defines storage operations for order-mutating calls.
type OrderJournal interface {
	RecordAttempt(ctx context.Context, entry *JournalEntry) error
	RecordOutcome(ctx context.Context, label string, state JournalState, orderID, errKind, errMessage string) error
	GetByLabel(ctx context.Context, label string) (*JournalEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*JournalEntry, error)
}
