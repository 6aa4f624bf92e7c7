package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vitos/deribit_gateway/internal/domain"
)

const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// Grant is one OAuth2 request to public/auth.
type Grant struct {
	Type         string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (g Grant) params() domain.Params {
	p := domain.Params{"grant_type": g.Type}
	switch g.Type {
	case GrantRefreshToken:
		p["refresh_token"] = g.RefreshToken
	default:
		p["client_id"] = g.ClientID
		p["client_secret"] = g.ClientSecret
	}
	return p
}

// IssuedToken is what the venue hands back for a successful grant.
type IssuedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Scope        string
}

// Exchanger performs the network side of authentication.
type Exchanger interface {
	Exchange(ctx context.Context, grant Grant) (IssuedToken, error)
}

// RPCExchanger calls public/auth through an unauthenticated caller.
type RPCExchanger struct {
	caller domain.Caller
}

func NewRPCExchanger(caller domain.Caller) *RPCExchanger {
	return &RPCExchanger{caller: caller}
}

func (e *RPCExchanger) Exchange(ctx context.Context, grant Grant) (IssuedToken, error) {
	resp, err := e.caller.Call(ctx, "public/auth", grant.params())
	if err != nil {
		return IssuedToken{}, err
	}
	if resp.Error != nil {
		authErr := domain.NewAuthError(fmt.Sprintf("%s grant rejected: %s", grant.Type, resp.Error.Message), resp.Error)
		authErr.Code = resp.Error.Code
		authErr.Data = resp.Error.Data
		return IssuedToken{}, authErr
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
		TokenType    string `json:"token_type"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return IssuedToken{}, domain.NewTransportError(domain.ReasonMalformedResponse, "decode auth result", err)
	}
	if result.AccessToken == "" || result.ExpiresIn <= 0 {
		return IssuedToken{}, domain.NewTransportError(domain.ReasonMalformedResponse, "auth result without access_token or expires_in", nil)
	}

	return IssuedToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    time.Duration(result.ExpiresIn) * time.Second,
		Scope:        result.Scope,
	}, nil
}
