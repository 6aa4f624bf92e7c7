package domain

import (
	"encoding/json"
	"fmt"
)

// Params is the params object of a JSON-RPC request.
type Params map[string]any

// Clone returns a shallow copy so senders can add transport-only keys.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params,omitempty"`
}

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCResponse carries exactly one of Result or Error.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	UsIn    int64           `json:"usIn,omitempty"`
	UsOut   int64           `json:"usOut,omitempty"`
	UsDiff  int64           `json:"usDiff,omitempty"`
	Testnet bool            `json:"testnet,omitempty"`
}

// IsEnvelope reports whether the decoded body looked like a JSON-RPC reply.
func (r *RPCResponse) IsEnvelope() bool {
	return r.JSONRPC == "2.0" || len(r.Result) > 0 || r.Error != nil
}

// Venue error codes the gateway gives special treatment.
const (
	CodeAuthorizationRequired   = 10000
	CodeNotEnoughFunds          = 10009
	CodeTooManyRequests         = 10028
	CodePriceWrongTick          = 10043
	CodeMatchingEngineQueueFull = 10047
	CodeInvalidCredentials      = 13004
	CodeUnauthorized            = 13009
	CodeTemporarilyUnavailable  = 13028
	CodeInvalidParams           = -32602
	CodeInternalError           = -32603
)

// IsBusyCode reports venue codes that mean "try again later".
func IsBusyCode(code int) bool {
	switch code {
	case CodeTooManyRequests, CodeMatchingEngineQueueFull, CodeTemporarilyUnavailable, CodeInternalError:
		return true
	}
	return false
}

// IsAuthCode reports venue codes that reject the bearer or the credentials.
func IsAuthCode(code int) bool {
	switch code {
	case CodeAuthorizationRequired, CodeInvalidCredentials, CodeUnauthorized:
		return true
	}
	return false
}
