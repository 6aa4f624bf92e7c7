package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
)

const btcPerpetual = `{"instrument_name":"BTC-PERPETUAL","base_currency":"BTC","kind":"future",
	"contract_size":10,"tick_size":0.5,"min_trade_amount":10,"is_active":true}`

const btcUSDC = `{"instrument_name":"BTC_USDC","base_currency":"BTC","kind":"spot",
	"contract_size":0.0001,"tick_size":1,"min_trade_amount":0.0001,"is_active":true}`

// fakeVenue answers JSON-RPC over HTTP the way the venue does and counts
// the calls per method.
type fakeVenue struct {
	t      *testing.T
	mu     sync.Mutex
	counts map[string]int
	srv    *httptest.Server
}

func newFakeVenue(t *testing.T) *fakeVenue {
	v := &fakeVenue{t: t, counts: map[string]int{}}
	v.srv = httptest.NewServer(http.HandlerFunc(v.handle))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVenue) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		v.t.Errorf("decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, "/")

	v.mu.Lock()
	v.counts[method]++
	v.mu.Unlock()

	if strings.HasPrefix(method, "private/") && r.Header.Get("Authorization") != "Bearer access-1" {
		writeEnvelope(w, req.ID, "", `{"code":13009,"message":"unauthorized"}`)
		return
	}

	switch method {
	case "public/auth":
		writeEnvelope(w, req.ID, `{"access_token":"access-1","refresh_token":"refresh-1","expires_in":900,"scope":"session:test"}`, "")
	case "public/get_instruments":
		if req.Params["kind"] == "spot" {
			writeEnvelope(w, req.ID, "["+btcUSDC+"]", "")
			return
		}
		writeEnvelope(w, req.ID, "["+btcPerpetual+"]", "")
	case "public/get_instrument":
		writeEnvelope(w, req.ID, btcPerpetual, "")
	case "private/cancel_all_by_currency":
		writeEnvelope(w, req.ID, `0`, "")
	case "private/buy":
		writeEnvelope(w, req.ID, `{"order":{"order_id":"ETH-1","order_state":"open","filled_amount":0,"average_price":0,
			"instrument_name":"BTC-PERPETUAL","direction":"buy","order_type":"limit","price":50000,"amount":20,"label":"l-1"},"trades":[]}`, "")
	default:
		writeEnvelope(w, req.ID, "", `{"code":-32601,"message":"Method not found"}`)
	}
}

func (v *fakeVenue) count(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[method]
}

func (v *fakeVenue) total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.counts {
		n += c
	}
	return n
}

func writeEnvelope(w http.ResponseWriter, id uint64, result, rpcErr string) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != "" {
		body["error"] = json.RawMessage(rpcErr)
	} else {
		body["result"] = json.RawMessage(result)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func testConfig(v *fakeVenue) *config.Config {
	cfg := config.Default()
	cfg.Exchange.RESTEndpoint = v.srv.URL
	cfg.Exchange.ClientID = "client"
	cfg.Exchange.ClientSecret = "secret"
	cfg.Exchange.Retry.InitialIntervalMs = 1
	cfg.Exchange.Retry.MaxIntervalMs = 2
	cfg.SpecCache.Prewarm = []config.PrewarmTarget{{Currency: "BTC", Kind: "future"}}
	return cfg
}

func newClient(t *testing.T, cfg *config.Config) *app.Client {
	c, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_CancelAllTwiceSucceeds(t *testing.T) {
	venue := newFakeVenue(t)
	c := newClient(t, testConfig(venue))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := c.CancelAllByCurrency(ctx, "BTC")
		require.NoError(t, err)
		assert.Equal(t, 0, res.Cancelled)
	}
	assert.Equal(t, 2, venue.count("private/cancel_all_by_currency"))
	assert.Equal(t, 1, venue.count("public/auth"))
	assert.Equal(t, "authenticated", c.Status().Auth)
}

func TestClient_InvalidOrderNeverReachesTheNetwork(t *testing.T) {
	venue := newFakeVenue(t)
	c := newClient(t, testConfig(venue))
	ctx := context.Background()

	require.NoError(t, c.Prewarm(ctx))
	require.Equal(t, 1, venue.total())

	_, err := c.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentName: "BTC-PERPETUAL",
		Side:           domain.SideBuy,
		Amount:         decimal.RequireFromString("15"),
		Price:          decimal.RequireFromString("50000"),
	})

	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindValidation, e.Kind)
	assert.Equal(t, string(domain.ReasonContractSizeMismatch), e.Reason)
	assert.Equal(t, "amount", e.Field)
	require.NotNil(t, e.Suggested)
	assert.Equal(t, "20", e.Suggested.String())

	assert.Equal(t, 1, venue.total(), "rejected order must not touch the network")
}

func TestClient_FractionalAmountSuggestionWithoutNetwork(t *testing.T) {
	venue := newFakeVenue(t)
	cfg := testConfig(venue)
	cfg.SpecCache.Prewarm = []config.PrewarmTarget{{Currency: "BTC", Kind: "spot"}}
	c := newClient(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Prewarm(ctx))
	calls := venue.total()

	_, err := c.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentName: "BTC_USDC",
		Side:           domain.SideBuy,
		Amount:         decimal.RequireFromString("0.00005"),
		Price:          decimal.RequireFromString("60000"),
	})

	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, string(domain.ReasonContractSizeMismatch), e.Reason)
	require.NotNil(t, e.Suggested)
	assert.Equal(t, "0.0001", e.Suggested.String())
	assert.Equal(t, calls, venue.total())
	assert.Equal(t, 0, venue.count("public/auth"))
}

func TestClient_ValidOrderIsJournaled(t *testing.T) {
	venue := newFakeVenue(t)
	cfg := testConfig(venue)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	c := newClient(t, cfg)
	ctx := context.Background()

	order, err := c.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentName: "BTC-PERPETUAL",
		Side:           domain.SideBuy,
		Amount:         decimal.RequireFromString("20"),
		Price:          decimal.RequireFromString("50000"),
		Label:          "l-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH-1", order.OrderID)
	assert.Equal(t, 1, venue.count("public/get_instrument"))
	assert.Equal(t, 1, venue.count("private/buy"))

	entry, err := c.JournalEntry(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JournalState("open"), entry.State)
	assert.Equal(t, "ETH-1", entry.OrderID)

	recent, err := c.Journal(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestClient_WithoutCredentialsOnlyPublicWorks(t *testing.T) {
	venue := newFakeVenue(t)
	cfg := testConfig(venue)
	cfg.Exchange.ClientID = ""
	cfg.Exchange.ClientSecret = ""
	c := newClient(t, cfg)
	ctx := context.Background()

	spec, err := c.GetInstrument(ctx, "BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, "10", spec.ContractSize.String())

	_, err = c.CancelAllByCurrency(ctx, "BTC")
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
	assert.Equal(t, 0, venue.count("private/cancel_all_by_currency"))
	assert.Equal(t, "disabled", c.Status().Auth)

	_, err = c.Journal(ctx, 10)
	assert.Error(t, err)
}

func TestClient_PlaceOrderNeedsSide(t *testing.T) {
	venue := newFakeVenue(t)
	c := newClient(t, testConfig(venue))

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{InstrumentName: "BTC-PERPETUAL"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, 0, venue.total())
}
