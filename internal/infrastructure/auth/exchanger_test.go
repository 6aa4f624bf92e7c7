package auth_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/auth"
)

type MockCaller struct {
	method string
	params domain.Params
	resp   *domain.RPCResponse
}

func (m *MockCaller) Call(ctx context.Context, method string, params domain.Params) (*domain.RPCResponse, error) {
	m.method, m.params = method, params
	return m.resp, nil
}

func TestRPCExchanger_ClientCredentials(t *testing.T) {
	caller := &MockCaller{resp: &domain.RPCResponse{
		JSONRPC: "2.0",
		Result:  json.RawMessage(`{"access_token":"a","refresh_token":"r","expires_in":900,"scope":"session:x","token_type":"bearer"}`),
	}}
	ex := auth.NewRPCExchanger(caller)

	issued, err := ex.Exchange(context.Background(), auth.Grant{Type: auth.GrantClientCredentials, ClientID: "id", ClientSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "public/auth", caller.method)
	assert.Equal(t, "client_credentials", caller.params["grant_type"])
	assert.Equal(t, "id", caller.params["client_id"])
	assert.Equal(t, "a", issued.AccessToken)
	assert.Equal(t, "r", issued.RefreshToken)
	assert.Equal(t, 900*time.Second, issued.ExpiresIn)
}

func TestRPCExchanger_RejectedGrantIsAuthError(t *testing.T) {
	caller := &MockCaller{resp: &domain.RPCResponse{
		JSONRPC: "2.0",
		Error:   &domain.RPCError{Code: domain.CodeInvalidCredentials, Message: "invalid_credentials"},
	}}
	ex := auth.NewRPCExchanger(caller)

	_, err := ex.Exchange(context.Background(), auth.Grant{Type: auth.GrantRefreshToken, RefreshToken: "old"})
	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindAuth, e.Kind)
	assert.Equal(t, domain.CodeInvalidCredentials, e.Code)
	assert.Equal(t, "old", caller.params["refresh_token"])
	_, hasSecret := caller.params["client_secret"]
	assert.False(t, hasSecret)
}
