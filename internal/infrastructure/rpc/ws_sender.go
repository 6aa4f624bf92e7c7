package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/deribit_gateway/internal/domain"
	"go.uber.org/zap"
)

var errSenderClosed = errors.New("websocket sender closed")

type wsResult struct {
	resp *domain.RPCResponse
	err  error
}

// WSSender multiplexes calls over one WebSocket connection. Responses are
// matched to callers by envelope id; the connection is dialled lazily and
// re-dialled after it drops.
type WSSender struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan wsResult
	closed  bool

	writeMu sync.Mutex
}

func NewWSSender(url string, logger *zap.Logger) *WSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSender{
		url:     url,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		pending: make(map[uint64]chan wsResult),
	}
}

func (s *WSSender) Send(ctx context.Context, req *domain.RPCRequest, token string) (*domain.RPCResponse, error) {
	if token != "" {
		params := req.Params.Clone()
		params["access_token"] = token
		withToken := *req
		withToken.Params = params
		req = &withToken
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, domain.NewTransportError(domain.ReasonInternal, "encode request", err)
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan wsResult, 1)
	s.mu.Lock()
	s.pending[req.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	s.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.drop(conn, err)
		return nil, domain.NewRetryableTransportError(domain.ReasonConnection, "websocket write failed", err)
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, domain.FromContext(ctx, ctx.Err())
	}
}

func (s *WSSender) connect(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.NewTransportError(domain.ReasonConnection, "sender closed", errSenderClosed)
	}
	if s.conn != nil {
		return s.conn, nil
	}

	c, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.FromContext(ctx, err)
		}
		return nil, domain.NewRetryableTransportError(domain.ReasonConnection, "websocket dial failed", err)
	}
	s.conn = c
	s.logger.Info("websocket connected", zap.String("url", s.url))

	go s.readLoop(c)
	return c, nil
}

func (s *WSSender) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.drop(conn, err)
			return
		}

		var resp domain.RPCResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			s.logger.Warn("websocket message not decodable", zap.Error(err))
			continue
		}
		// subscription notifications carry no id
		if resp.ID == 0 {
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("websocket response without waiter", zap.Uint64("id", resp.ID))
			continue
		}

		r := wsResult{resp: &resp}
		if len(resp.Result) == 0 && resp.Error == nil {
			r = wsResult{err: domain.NewTransportError(domain.ReasonMalformedResponse, "envelope without result or error", nil)}
		}
		select {
		case ch <- r:
		default:
		}
	}
}

// drop forgets conn and fails every call still waiting on it.
func (s *WSSender) drop(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	waiting := s.pending
	s.pending = make(map[uint64]chan wsResult)
	closed := s.closed
	s.mu.Unlock()

	_ = conn.Close()
	if !closed {
		s.logger.Warn("websocket connection lost", zap.Error(cause), zap.Int("pending", len(waiting)))
	}

	for _, ch := range waiting {
		select {
		case ch <- wsResult{err: domain.NewRetryableTransportError(domain.ReasonConnection, "websocket connection lost", cause)}:
		default:
		}
	}
}

func (s *WSSender) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.drop(conn, errSenderClosed)
	return nil
}
