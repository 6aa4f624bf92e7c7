package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/vitos/deribit_gateway/internal/domain"
)

// Sender performs exactly one request/response exchange. Failures come back
// as *domain.Error with Retryable set when another attempt may succeed.
type Sender interface {
	Send(ctx context.Context, req *domain.RPCRequest, token string) (*domain.RPCResponse, error)
	Close() error
}

// HTTPSender posts each envelope to {base}/{method}.
type HTTPSender struct {
	client *resty.Client
}

func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPSender{client: client}
}

func (s *HTTPSender) Send(ctx context.Context, req *domain.RPCRequest, token string) (*domain.RPCResponse, error) {
	r := s.client.R().SetContext(ctx).SetBody(req)
	if token != "" {
		r.SetAuthToken(token)
	}

	resp, err := r.Post("/" + req.Method)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.FromContext(ctx, err)
		}
		return nil, domain.NewRetryableTransportError(domain.ReasonConnection, "request failed", errors.Wrap(err, req.Method))
	}
	return decodeHTTP(req.ID, resp.StatusCode(), resp.Body())
}

func (s *HTTPSender) Close() error { return nil }

// decodeHTTP prefers a JSON-RPC envelope for 2xx and 4xx; the venue reports
// business errors as HTTP 400 with an error object. 429 and 5xx stay
// retryable even when they carry an envelope.
func decodeHTTP(id uint64, status int, body []byte) (*domain.RPCResponse, error) {
	var resp domain.RPCResponse
	enveloped := json.Unmarshal(body, &resp) == nil && resp.IsEnvelope()

	if status == http.StatusTooManyRequests || status >= 500 {
		reason := domain.ReasonHTTPStatus
		if status == http.StatusTooManyRequests {
			reason = domain.ReasonRateLimited
		}
		e := domain.NewRetryableTransportError(reason, fmt.Sprintf("http %d: %s", status, truncate(body, 200)), nil)
		if enveloped && resp.Error != nil {
			e.Code = resp.Error.Code
			e.Data = resp.Error.Data
			e.Wrapped = resp.Error
		}
		return nil, e
	}

	if enveloped {
		if resp.ID != 0 && id != 0 && resp.ID != id {
			return nil, domain.NewTransportError(domain.ReasonMalformedResponse,
				fmt.Sprintf("response id %d does not match request id %d", resp.ID, id), nil)
		}
		if len(resp.Result) == 0 && resp.Error == nil {
			return nil, domain.NewTransportError(domain.ReasonMalformedResponse, "envelope without result or error", nil)
		}
		return &resp, nil
	}

	msg := fmt.Sprintf("http %d: %s", status, truncate(body, 200))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, domain.NewAuthError(msg, nil)
	case status >= 400:
		return nil, domain.NewTransportError(domain.ReasonHTTPStatus, msg, nil)
	default:
		return nil, domain.NewTransportError(domain.ReasonMalformedResponse, msg, nil)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
