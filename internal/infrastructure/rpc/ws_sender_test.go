package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/rpc"
)

// newWSServer answers requests in reverse arrival order once batch requests
// have arrived, so correlation by id is the only way callers get their reply.
func newWSServer(t *testing.T, batch int) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var reqs []domain.RPCRequest
		for len(reqs) < batch {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req domain.RPCRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("decode request: %v", err)
				return
			}
			reqs = append(reqs, req)
		}
		// a notification without id must be ignored by the client
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"heartbeat","params":{"type":"heartbeat"}}`))
		for i := len(reqs) - 1; i >= 0; i-- {
			result, _ := json.Marshal(map[string]any{
				"method": reqs[i].Method,
				"token":  reqs[i].Params["access_token"],
				"echo":   reqs[i].Params["n"],
			})
			data, _ := json.Marshal(domain.RPCResponse{JSONRPC: "2.0", ID: reqs[i].ID, Result: result})
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		// keep the socket open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSender_CorrelatesResponsesByID(t *testing.T) {
	const n = 4
	srv := newWSServer(t, n)
	defer srv.Close()

	sender := rpc.NewWSSender(wsURL(srv), nil)
	defer sender.Close()
	tr := rpc.NewTransport(sender, rpc.WithPolicy(fastPolicy()))

	var wg sync.WaitGroup
	results := make([]float64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := tr.Call(context.Background(), "public/test", domain.Params{"n": i})
			if err != nil {
				errs[i] = err
				return
			}
			var body struct {
				Echo float64 `json:"echo"`
			}
			errs[i] = json.Unmarshal(resp.Result, &body)
			results[i] = body.Echo
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, float64(i), results[i])
	}
}

func TestWSSender_TokenTravelsAsParam(t *testing.T) {
	srv := newWSServer(t, 1)
	defer srv.Close()

	sender := rpc.NewWSSender(wsURL(srv), nil)
	defer sender.Close()
	tr := rpc.NewTransport(sender, rpc.WithPolicy(fastPolicy()), rpc.WithTokenSource(&MockTokenSource{token: "ws-token"}))

	params := domain.Params{"currency": "BTC"}
	resp, err := tr.Call(context.Background(), "private/get_positions", params)
	require.NoError(t, err)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	assert.Equal(t, "ws-token", body.Token)
	_, leaked := params["access_token"]
	assert.False(t, leaked)
}

func TestWSSender_ConnectionLossFailsPendingCalls(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	sender := rpc.NewWSSender(wsURL(srv), nil)
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := sender.Send(ctx, &domain.RPCRequest{JSONRPC: "2.0", ID: 7, Method: "public/test"}, "")
	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonConnection, e.Reason)
	assert.True(t, e.Retryable)
}

func TestWSSender_CallWithoutDeadlineAfterExpiredOne(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req domain.RPCRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("decode request: %v", err)
				return
			}
			data, _ := json.Marshal(domain.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"ok"`)})
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	defer srv.Close()

	sender := rpc.NewWSSender(wsURL(srv), nil)
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	resp, err := sender.Send(ctx, &domain.RPCRequest{JSONRPC: "2.0", ID: 1, Method: "public/test"}, "")
	cancel()
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(resp.Result))

	time.Sleep(150 * time.Millisecond)

	resp, err = sender.Send(context.Background(), &domain.RPCRequest{JSONRPC: "2.0", ID: 2, Method: "public/test"}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(resp.Result))
}
