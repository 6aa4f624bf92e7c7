package usecase

import (
	"github.com/vitos/deribit_gateway/internal/domain"
)

var (
	instrumentKinds = []string{"future", "option", "spot", "future_combo", "option_combo"}
	orderTypes      = []string{"limit", "market"}
	timeInForce     = []string{"good_til_cancelled", "good_til_day", "fill_or_kill", "immediate_or_cancel"}
)

func instrumentParam() ParamSpec {
	return ParamSpec{Name: "instrument_name", Kind: ParamString, Required: true, Description: "e.g. BTC-PERPETUAL"}
}

func currencyParam(required bool) ParamSpec {
	return ParamSpec{Name: "currency", Kind: ParamString, Required: required, Description: "BTC, ETH, USDC, USDT, EURR or any"}
}

func kindParam() ParamSpec {
	return ParamSpec{Name: "kind", Kind: ParamString, Enum: instrumentKinds}
}

func orderOperation(name string, side domain.Side) Operation {
	return Operation{
		Name:        name,
		Method:      "private/" + name,
		Description: "Place a " + string(side) + " order after local contract and tick size checks",
		Preflight:   true,
		Side:        side,
		Mutating:    true,
		Params: []ParamSpec{
			instrumentParam(),
			{Name: "amount", Kind: ParamDecimal, Required: true, Description: "multiple of the instrument's contract size"},
			{Name: "type", Kind: ParamString, Default: string(domain.OrderTypeLimit), Enum: orderTypes},
			{Name: "price", Kind: ParamDecimal, Description: "required for limit orders, multiple of the tick size"},
			{Name: "reduce_only", Kind: ParamBool, Default: false},
			{Name: "post_only", Kind: ParamBool, Default: false},
			{Name: "time_in_force", Kind: ParamString, Enum: timeInForce},
			{Name: "label", Kind: ParamString, Description: "client label; generated when absent"},
		},
		Parse: parsePlacement,
	}
}

// DefaultOperations is the built-in catalog.
func DefaultOperations() []Operation {
	return []Operation{
		// market data
		{
			Name:        "get_instruments",
			Method:      "public/get_instruments",
			Description: "List instruments of a currency",
			Params: []ParamSpec{
				currencyParam(true),
				kindParam(),
				{Name: "expired", Kind: ParamBool, Default: false},
			},
			Parse: decodeAs[[]domain.InstrumentSpec],
		},
		{
			Name:        "get_instrument",
			Method:      "public/get_instrument",
			Description: "Instrument metadata: contract size, tick size, kind",
			Params:      []ParamSpec{instrumentParam()},
			Parse:       decodeAs[domain.InstrumentSpec],
		},
		{
			Name:        "get_ticker",
			Method:      "public/ticker",
			Description: "Best bid/ask, mark, index and funding for one instrument",
			Params:      []ParamSpec{instrumentParam()},
			Parse:       decodeObject[domain.Ticker],
		},
		{
			Name:        "get_order_book",
			Method:      "public/get_order_book",
			Description: "Order book for one instrument",
			Params: []ParamSpec{
				instrumentParam(),
				{Name: "depth", Kind: ParamInt, Description: "1, 5, 10, 20, 50, 100, 1000 or 10000"},
			},
			Parse: decodeObject[domain.OrderBook],
		},
		{
			Name:        "get_book_summary_by_currency",
			Method:      "public/get_book_summary_by_currency",
			Description: "Volume, open interest and marks for every instrument of a currency",
			Params:      []ParamSpec{currencyParam(true), kindParam()},
			Parse:       decodeAs[[]domain.BookSummary],
		},
		{
			Name:        "get_book_summary_by_instrument",
			Method:      "public/get_book_summary_by_instrument",
			Description: "Volume, open interest and marks for one instrument",
			Params:      []ParamSpec{instrumentParam()},
			Parse:       decodeAs[[]domain.BookSummary],
		},
		{
			Name:        "get_contract_size",
			Method:      "public/get_contract_size",
			Description: "Contract size of one instrument",
			Params:      []ParamSpec{instrumentParam()},
			Parse:       decodeAs[domain.ContractSize],
		},
		{
			Name:        "get_currencies",
			Method:      "public/get_currencies",
			Description: "Supported currencies",
			Parse:       decodeAs[[]domain.Currency],
		},
		{
			Name:        "get_delivery_prices",
			Method:      "public/get_delivery_prices",
			Description: "Historical delivery prices of an index",
			Params: []ParamSpec{
				{Name: "index_name", Kind: ParamString, Required: true, Description: "e.g. btc_usd"},
				{Name: "offset", Kind: ParamInt},
				{Name: "count", Kind: ParamInt},
			},
			Parse: decodeAs[domain.DeliveryPrices],
		},
		{
			Name:        "get_apr_history",
			Method:      "public/get_apr_history",
			Description: "Daily APR of a yield-bearing currency",
			Params: []ParamSpec{
				{Name: "currency", Kind: ParamString, Required: true, Enum: []string{"usde", "steth"}},
				{Name: "limit", Kind: ParamInt},
				{Name: "before", Kind: ParamInt},
			},
			Parse: decodeAs[domain.AprHistory],
		},

		// account
		{
			Name:        "get_account_summary",
			Method:      "private/get_account_summary",
			Description: "Balance, equity and margin of one currency",
			Params: []ParamSpec{
				currencyParam(true),
				{Name: "extended", Kind: ParamBool},
			},
			Parse: decodeObject[domain.AccountSummary],
		},
		{
			Name:        "get_positions",
			Method:      "private/get_positions",
			Description: "Open positions",
			Params:      []ParamSpec{currencyParam(false), kindParam()},
			Parse:       decodeAs[[]domain.Position],
		},
		{
			Name:        "get_open_orders_by_currency",
			Method:      "private/get_open_orders_by_currency",
			Description: "Open orders of a currency",
			Params: []ParamSpec{
				currencyParam(true),
				kindParam(),
				{Name: "type", Kind: ParamString, Enum: []string{"all", "limit", "trigger_all", "stop_all", "stop_limit", "stop_market", "take_all", "take_limit", "take_market", "trailing_all", "trailing_stop"}},
			},
			Parse: parseOrders,
		},
		{
			Name:        "get_order_state",
			Method:      "private/get_order_state",
			Description: "Current state of one order",
			Params:      []ParamSpec{{Name: "order_id", Kind: ParamString, Required: true}},
			Parse:       parseOrder,
		},
		{
			Name:        "get_order_state_by_label",
			Method:      "private/get_order_state_by_label",
			Description: "Orders carrying a client label; reconciles an order whose placement timed out",
			Params: []ParamSpec{
				currencyParam(true),
				{Name: "label", Kind: ParamString, Required: true},
			},
			Parse: parseOrders,
		},

		// trading
		orderOperation("buy", domain.SideBuy),
		orderOperation("sell", domain.SideSell),
		{
			Name:        "cancel",
			Method:      "private/cancel",
			Description: "Cancel one order",
			Mutating:    true,
			Params:      []ParamSpec{{Name: "order_id", Kind: ParamString, Required: true}},
			Parse:       parseOrder,
		},
		{
			Name:        "cancel_all_by_currency",
			Method:      "private/cancel_all_by_currency",
			Description: "Cancel every open order of a currency; a no-op when none are open",
			Mutating:    true,
			Params: []ParamSpec{
				currencyParam(true),
				kindParam(),
				{Name: "type", Kind: ParamString, Enum: []string{"all", "limit", "trigger_all", "stop", "take", "trailing_stop"}},
			},
			Parse: parseCancelCount,
		},
	}
}
