package usecase

import (
	"encoding/json"
	"strings"

	"github.com/vitos/deribit_gateway/internal/domain"
)

// Call identifies the request a response belongs to.
type Call struct {
	Operation string
	Method    string
	Params    domain.Params
}

func (c Call) instrument() string {
	name, _ := c.Params["instrument_name"].(string)
	return name
}

// ErrorClassifier turns a raw venue response, or the failure to get one,
// into a success payload or exactly one tagged error.
type ErrorClassifier struct {
	specs domain.SpecSource
}

// NewErrorClassifier enriches remote errors from specs. A nil specs disables
// enrichment.
func NewErrorClassifier(specs domain.SpecSource) *ErrorClassifier {
	return &ErrorClassifier{specs: specs}
}

func (c *ErrorClassifier) Classify(call Call, resp *domain.RPCResponse, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, domain.Normalize(err)
	}
	if resp == nil {
		return nil, domain.NewTransportError(domain.ReasonMalformedResponse, "no response for "+call.Method, nil)
	}

	if rpcErr := resp.Error; rpcErr != nil {
		if domain.IsAuthCode(rpcErr.Code) {
			authErr := domain.NewAuthError(rpcErr.Message, rpcErr)
			authErr.Code = rpcErr.Code
			authErr.Data = rpcErr.Data
			return nil, authErr
		}
		remote := domain.NewRemoteError(rpcErr)
		c.enrich(call, remote)
		return nil, remote
	}

	if len(resp.Result) == 0 {
		return nil, domain.NewTransportError(domain.ReasonMalformedResponse, "response without result for "+call.Method, nil)
	}
	return resp.Result, nil
}

// enrich adds already-known spec data to the venue errors that are about
// spec fields. It never triggers a fetch.
func (c *ErrorClassifier) enrich(call Call, e *domain.Error) {
	spec, known := c.peek(call.instrument())

	switch e.Code {
	case domain.CodeInvalidParams:
		if known && offendingParam(e) == "amount" {
			e.WithDetail("contract_size", spec.ContractSize.String())
			e.WithDetail("min_trade_amount", spec.MinTradeAmount.String())
		}
	case domain.CodePriceWrongTick:
		if known {
			e.WithDetail("tick_size", spec.TickSize.String())
		}
	case domain.CodeNotEnoughFunds:
		if known && spec.Currency != "" {
			e.WithDetail("currency", spec.Currency)
		} else if cur, ok := call.Params["currency"].(string); ok && cur != "" {
			e.WithDetail("currency", cur)
		}
	}
}

func (c *ErrorClassifier) peek(instrument string) (domain.InstrumentSpec, bool) {
	if c.specs == nil || instrument == "" {
		return domain.InstrumentSpec{}, false
	}
	return c.specs.Peek(instrument)
}

// offendingParam reads the offending parameter from the venue's error data,
// {"param": "amount", "reason": "..."}, falling back to the message text.
func offendingParam(e *domain.Error) string {
	var data struct {
		Param string `json:"param"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &data) == nil && data.Param != "" {
		return data.Param
	}
	if strings.Contains(strings.ToLower(e.Message), "amount") {
		return "amount"
	}
	return ""
}
