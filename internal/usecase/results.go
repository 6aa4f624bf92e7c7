package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/vitos/deribit_gateway/internal/domain"
)

// decodeAs decodes a venue result into T.
func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeObject decodes a venue result into a *T, rejecting null.
func decodeObject[T any](raw json.RawMessage) (any, error) {
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("result is null")
	}
	return v, nil
}

// parsePlacement reads buy/sell results: {"order": {...}, "trades": [...]}.
func parsePlacement(raw json.RawMessage) (any, error) {
	var body struct {
		Order  json.RawMessage   `json:"order"`
		Trades []json.RawMessage `json:"trades"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if len(body.Order) == 0 {
		return nil, fmt.Errorf("placement result without order")
	}
	order, err := domain.DecodeOrder(body.Order)
	if err != nil {
		return nil, err
	}
	order.Trades = len(body.Trades)
	return order, nil
}

func parseOrder(raw json.RawMessage) (any, error) {
	return domain.DecodeOrder(raw)
}

func parseOrders(raw json.RawMessage) (any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	orders := make([]*domain.OrderResult, 0, len(items))
	for _, item := range items {
		o, err := domain.DecodeOrder(item)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// parseCancelCount reads the number of cancelled orders. Cancelling with
// nothing open yields 0, which is a success.
func parseCancelCount(raw json.RawMessage) (any, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return domain.CancelAllResult{Cancelled: n}, nil
}
