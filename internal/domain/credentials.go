package domain

import (
	"fmt"
	"strings"
)

// Network selects which Deribit environment the gateway talks to.
type Network string

const (
	NetworkTest Network = "test"
	NetworkMain Network = "main"
)

const (
	TestRESTEndpoint = "https://test.deribit.com/api/v2"
	TestWSEndpoint   = "wss://test.deribit.com/ws/api/v2"
	MainRESTEndpoint = "https://www.deribit.com/api/v2"
	MainWSEndpoint   = "wss://www.deribit.com/ws/api/v2"
)

func ParseNetwork(v string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "test", "testnet", "":
		return NetworkTest, nil
	case "main", "mainnet", "prod", "production":
		return NetworkMain, nil
	default:
		return "", fmt.Errorf("unknown network %q (want test or main)", v)
	}
}

func (n Network) RESTEndpoint() string {
	if n == NetworkMain {
		return MainRESTEndpoint
	}
	return TestRESTEndpoint
}

func (n Network) WSEndpoint() string {
	if n == NetworkMain {
		return MainWSEndpoint
	}
	return TestWSEndpoint
}

// Credentials are the client-credentials pair issued by the venue. The value
// is immutable once built; pass it by value.
type Credentials struct {
	clientID     string
	clientSecret string
	network      Network
}

func NewCredentials(clientID, clientSecret string, network Network) (Credentials, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return Credentials{}, fmt.Errorf("client id and client secret are required")
	}
	if network != NetworkTest && network != NetworkMain {
		return Credentials{}, fmt.Errorf("unknown network %q", network)
	}
	return Credentials{clientID: clientID, clientSecret: clientSecret, network: network}, nil
}

func (c Credentials) ClientID() string     { return c.clientID }
func (c Credentials) ClientSecret() string { return c.clientSecret }
func (c Credentials) Network() Network     { return c.network }
func (c Credentials) IsZero() bool         { return c.clientID == "" }

// String never prints the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{client_id=%s network=%s}", c.clientID, c.network)
}
