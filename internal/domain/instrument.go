package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type InstrumentKind string

const (
	KindFuture      InstrumentKind = "future"
	KindOption      InstrumentKind = "option"
	KindSpot        InstrumentKind = "spot"
	KindFutureCombo InstrumentKind = "future_combo"
	KindOptionCombo InstrumentKind = "option_combo"
)

// InstrumentSpec is the trading metadata the venue publishes per instrument.
// A newer fetch supersedes an older value; specs are never mutated in place.
type InstrumentSpec struct {
	InstrumentName      string          `json:"instrument_name"`
	Currency            string          `json:"currency"`
	Kind                InstrumentKind  `json:"kind"`
	ContractSize        decimal.Decimal `json:"contract_size"`
	TickSize            decimal.Decimal `json:"tick_size"`
	MinTradeAmount      decimal.Decimal `json:"min_trade_amount"`
	Expired             bool            `json:"expired"`
	ExpirationTimestamp int64           `json:"expiration_timestamp,omitempty"`
}

// UnmarshalJSON maps the venue's instrument object onto InstrumentSpec.
func (s *InstrumentSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		InstrumentName      string          `json:"instrument_name"`
		BaseCurrency        string          `json:"base_currency"`
		Currency            string          `json:"currency"`
		Kind                InstrumentKind  `json:"kind"`
		ContractSize        decimal.Decimal `json:"contract_size"`
		TickSize            decimal.Decimal `json:"tick_size"`
		MinTradeAmount      decimal.Decimal `json:"min_trade_amount"`
		IsActive            *bool           `json:"is_active"`
		Expired             bool            `json:"expired"`
		ExpirationTimestamp int64           `json:"expiration_timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	currency := raw.BaseCurrency
	if currency == "" {
		currency = raw.Currency
	}
	expired := raw.Expired
	if raw.IsActive != nil {
		expired = !*raw.IsActive
	}
	*s = InstrumentSpec{
		InstrumentName:      raw.InstrumentName,
		Currency:            currency,
		Kind:                raw.Kind,
		ContractSize:        raw.ContractSize,
		TickSize:            raw.TickSize,
		MinTradeAmount:      raw.MinTradeAmount,
		Expired:             expired,
		ExpirationTimestamp: raw.ExpirationTimestamp,
	}
	return nil
}

type Ticker struct {
	InstrumentName  string              `json:"instrument_name"`
	State           string              `json:"state"`
	Timestamp       int64               `json:"timestamp"`
	LastPrice       decimal.NullDecimal `json:"last_price"`
	MarkPrice       decimal.Decimal     `json:"mark_price"`
	IndexPrice      decimal.Decimal     `json:"index_price"`
	BestBidPrice    decimal.NullDecimal `json:"best_bid_price"`
	BestBidAmount   decimal.Decimal     `json:"best_bid_amount"`
	BestAskPrice    decimal.NullDecimal `json:"best_ask_price"`
	BestAskAmount   decimal.Decimal     `json:"best_ask_amount"`
	OpenInterest    decimal.Decimal     `json:"open_interest"`
	CurrentFunding  decimal.NullDecimal `json:"current_funding"`
	Funding8h       decimal.NullDecimal `json:"funding_8h"`
	SettlementPrice decimal.NullDecimal `json:"settlement_price"`
}

type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// UnmarshalJSON accepts the venue's [price, amount] pair form.
func (l *BookLevel) UnmarshalJSON(data []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) >= 2 {
			l.Price, l.Amount = pair[0], pair[1]
		}
		return nil
	}
	type plain BookLevel
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = BookLevel(p)
	return nil
}

type OrderBook struct {
	InstrumentName string              `json:"instrument_name"`
	Timestamp      int64               `json:"timestamp"`
	ChangeID       int64               `json:"change_id"`
	Bids           []BookLevel         `json:"bids"`
	Asks           []BookLevel         `json:"asks"`
	MarkPrice      decimal.Decimal     `json:"mark_price"`
	IndexPrice     decimal.Decimal     `json:"index_price"`
	BestBidPrice   decimal.NullDecimal `json:"best_bid_price"`
	BestAskPrice   decimal.NullDecimal `json:"best_ask_price"`
}

// BookSummary is the per-instrument summary (open interest, volume, marks).
type BookSummary struct {
	InstrumentName         string              `json:"instrument_name"`
	BaseCurrency           string              `json:"base_currency"`
	QuoteCurrency          string              `json:"quote_currency"`
	Volume                 decimal.Decimal     `json:"volume"`
	VolumeUSD              decimal.Decimal     `json:"volume_usd"`
	OpenInterest           decimal.Decimal     `json:"open_interest"`
	MarkPrice              decimal.Decimal     `json:"mark_price"`
	Last                   decimal.NullDecimal `json:"last"`
	High                   decimal.NullDecimal `json:"high"`
	Low                    decimal.NullDecimal `json:"low"`
	BidPrice               decimal.NullDecimal `json:"bid_price"`
	AskPrice               decimal.NullDecimal `json:"ask_price"`
	MidPrice               decimal.NullDecimal `json:"mid_price"`
	PriceChange            decimal.NullDecimal `json:"price_change"`
	EstimatedDeliveryPrice decimal.NullDecimal `json:"estimated_delivery_price"`
	CurrentFunding         decimal.NullDecimal `json:"current_funding"`
	Funding8h              decimal.NullDecimal `json:"funding_8h"`
	CreationTimestamp      int64               `json:"creation_timestamp"`
}

type ContractSize struct {
	ContractSize decimal.Decimal `json:"contract_size"`
}

type Currency struct {
	Currency         string          `json:"currency"`
	CurrencyLong     string          `json:"currency_long"`
	CoinType         string          `json:"coin_type"`
	FeePrecision     int             `json:"fee_precision"`
	MinConfirmations int             `json:"min_confirmations"`
	MinWithdrawalFee decimal.Decimal `json:"min_withdrawal_fee"`
	WithdrawalFee    decimal.Decimal `json:"withdrawal_fee"`
}

type DeliveryPrice struct {
	Date          string          `json:"date"`
	DeliveryPrice decimal.Decimal `json:"delivery_price"`
}

type DeliveryPrices struct {
	Data         []DeliveryPrice `json:"data"`
	RecordsTotal int             `json:"records_total"`
}

type AprPoint struct {
	Day int             `json:"day"`
	Apr decimal.Decimal `json:"apr"`
}

// AprHistory applies to yield-bearing currencies (USDE, STETH).
type AprHistory struct {
	Data         []AprPoint `json:"data"`
	Continuation int64      `json:"continuation"`
}

func (s InstrumentSpec) ExpiresAt() time.Time {
	if s.ExpirationTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpirationTimestamp)
}
