package client

import (
	"context"
	"errors"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// remoteError is a registry error returned by the server. It unwraps to the
// matching exchange sentinel.
type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.sentinel }

func mapError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if sentinel := exchange.ErrorFromCode(rpcErr.ErrorCode()); sentinel != nil {
			return &remoteError{sentinel: sentinel, message: rpcErr.Error()}
		}
	}
	return err
}

// Caller is a typed client for the registry API.
type Caller struct {
	rpcClient *rpc.Client
}

// NewCaller wraps an existing RPC client.
func NewCaller(rpcClient *rpc.Client) *Caller {
	return &Caller{rpcClient: rpcClient}
}

// DialCaller connects to the registry server at url.
func DialCaller(ctx context.Context, url string) (*Caller, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewCaller(rpcClient), nil
}

// Close closes the underlying connection.
func (c *Caller) Close() {
	c.rpcClient.Close()
}

func (c *Caller) call(ctx context.Context, result any, method string, args ...any) error {
	return mapError(c.rpcClient.CallContext(ctx, result, jsonrpc.RpcNamespace+"_"+method, args...))
}

func (c *Caller) AddToken(ctx context.Context, token common.Address) error {
	return c.call(ctx, nil, "addToken", token)
}

func (c *Caller) ListTokens(ctx context.Context) ([]common.Address, error) {
	var tokens []common.Address
	err := c.call(ctx, &tokens, "listTokens")
	return tokens, err
}

func (c *Caller) AddPair(ctx context.Context, a, b common.Address) error {
	return c.call(ctx, nil, "addPair", a, b)
}

func (c *Caller) ListPairs(ctx context.Context) ([]exchange.Pair, error) {
	var pairs []exchange.Pair
	err := c.call(ctx, &pairs, "listPairs")
	return pairs, err
}

func (c *Caller) RemovePair(ctx context.Context, a, b common.Address) error {
	return c.call(ctx, nil, "removePair", a, b)
}

func (c *Caller) PairsForToken(ctx context.Context, token common.Address) ([]exchange.Pair, error) {
	var pairs []exchange.Pair
	err := c.call(ctx, &pairs, "pairsForToken", token)
	return pairs, err
}

// GetState returns the server's current registry state.
func (c *Caller) GetState(ctx context.Context) (*engine.State, error) {
	var state engine.State
	if err := c.call(ctx, &state, "getState"); err != nil {
		return nil, err
	}
	return &state, nil
}
