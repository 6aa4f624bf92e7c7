package app

import (
	"context"

	"github.com/vitos/deribit_gateway/internal/domain"
)

func invokeAs[T any](ctx context.Context, c *Client, name string, args map[string]any) (T, error) {
	return domain.ResultAs[T](c.Invoke(ctx, name, args))
}

func withKind(args map[string]any, kind string) map[string]any {
	if kind != "" {
		args["kind"] = kind
	}
	return args
}

func (c *Client) GetInstruments(ctx context.Context, currency, kind string) ([]domain.InstrumentSpec, error) {
	return invokeAs[[]domain.InstrumentSpec](ctx, c, "get_instruments", withKind(map[string]any{"currency": currency}, kind))
}

func (c *Client) GetInstrument(ctx context.Context, name string) (domain.InstrumentSpec, error) {
	return invokeAs[domain.InstrumentSpec](ctx, c, "get_instrument", map[string]any{"instrument_name": name})
}

func (c *Client) GetTicker(ctx context.Context, name string) (*domain.Ticker, error) {
	return invokeAs[*domain.Ticker](ctx, c, "get_ticker", map[string]any{"instrument_name": name})
}

// GetOrderBook reads the book of an instrument. A non-positive depth uses the
// venue default.
func (c *Client) GetOrderBook(ctx context.Context, name string, depth int) (*domain.OrderBook, error) {
	args := map[string]any{"instrument_name": name}
	if depth > 0 {
		args["depth"] = depth
	}
	return invokeAs[*domain.OrderBook](ctx, c, "get_order_book", args)
}

func (c *Client) GetBookSummaryByCurrency(ctx context.Context, currency, kind string) ([]domain.BookSummary, error) {
	return invokeAs[[]domain.BookSummary](ctx, c, "get_book_summary_by_currency", withKind(map[string]any{"currency": currency}, kind))
}

func (c *Client) GetContractSize(ctx context.Context, name string) (domain.ContractSize, error) {
	return invokeAs[domain.ContractSize](ctx, c, "get_contract_size", map[string]any{"instrument_name": name})
}

func (c *Client) GetCurrencies(ctx context.Context) ([]domain.Currency, error) {
	return invokeAs[[]domain.Currency](ctx, c, "get_currencies", nil)
}

func (c *Client) GetAccountSummary(ctx context.Context, currency string) (*domain.AccountSummary, error) {
	return invokeAs[*domain.AccountSummary](ctx, c, "get_account_summary", map[string]any{"currency": currency})
}

func (c *Client) GetPositions(ctx context.Context, currency, kind string) ([]domain.Position, error) {
	args := map[string]any{}
	if currency != "" {
		args["currency"] = currency
	}
	return invokeAs[[]domain.Position](ctx, c, "get_positions", withKind(args, kind))
}

func (c *Client) GetOpenOrders(ctx context.Context, currency string) ([]*domain.OrderResult, error) {
	return invokeAs[[]*domain.OrderResult](ctx, c, "get_open_orders_by_currency", map[string]any{"currency": currency})
}

func (c *Client) GetOrderState(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	return invokeAs[*domain.OrderResult](ctx, c, "get_order_state", map[string]any{"order_id": orderID})
}

// GetOrderStateByLabel finds orders by client label, which is how a placement
// that timed out is reconciled.
func (c *Client) GetOrderStateByLabel(ctx context.Context, currency, label string) ([]*domain.OrderResult, error) {
	return invokeAs[[]*domain.OrderResult](ctx, c, "get_order_state_by_label", map[string]any{"currency": currency, "label": label})
}

// PlaceOrder sends req as a buy or a sell depending on its side. The order is
// checked against the instrument spec first and never sent when invalid.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if !req.Side.Valid() {
		return nil, domain.NewValidationError(domain.ReasonInvalidParams, "side",
			"side must be buy or sell, got "+string(req.Side), nil)
	}
	return invokeAs[*domain.OrderResult](ctx, c, string(req.Side), req.Args())
}

func (c *Client) Cancel(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	return invokeAs[*domain.OrderResult](ctx, c, "cancel", map[string]any{"order_id": orderID})
}

// CancelAllByCurrency cancels every open order of currency. Nothing open is
// a success with zero cancelled.
func (c *Client) CancelAllByCurrency(ctx context.Context, currency string) (domain.CancelAllResult, error) {
	return invokeAs[domain.CancelAllResult](ctx, c, "cancel_all_by_currency", map[string]any{"currency": currency})
}
