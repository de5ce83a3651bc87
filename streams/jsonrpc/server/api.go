package server

import (
	"context"
	"time"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcError carries a registry error code to the client.
type rpcError struct {
	err  error
	code int
}

func (e *rpcError) Error() string  { return e.err.Error() }
func (e *rpcError) ErrorCode() int { return e.code }
func (e *rpcError) Unwrap() error  { return e.err }

func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	if code := exchange.ErrorCode(err); code != 0 {
		return &rpcError{err: err, code: code}
	}
	return err
}

// ExchangeAPI is the registry API served under the "exchange" namespace.
type ExchangeAPI struct {
	chainID  uint64
	system   *exchange.System
	streamer *Streamer
	metrics  *rpcMetrics
	logger   Logger
}

func (api *ExchangeAPI) track(method string) func(err error) error {
	start := time.Now()
	return func(err error) error {
		api.metrics.observe(method, start, err)
		if err != nil {
			api.logger.Debug("registry call failed", "method", method, "error", err)
		}
		return toRPCError(err)
	}
}

// AddToken approves token.
func (api *ExchangeAPI) AddToken(token common.Address) error {
	done := api.track("addToken")
	return done(api.system.AddToken(token))
}

// ListTokens returns the approved tokens in approval order.
func (api *ExchangeAPI) ListTokens() []common.Address {
	done := api.track("listTokens")
	tokens := api.system.ListTokens()
	done(nil)
	return tokens
}

// AddPair registers the pair a/b. Both tokens must be approved.
func (api *ExchangeAPI) AddPair(a, b common.Address) error {
	done := api.track("addPair")
	return done(api.system.AddPair(a, b))
}

// ListPairs returns the active pairs in insertion order.
func (api *ExchangeAPI) ListPairs() []exchange.Pair {
	done := api.track("listPairs")
	pairs := api.system.ListPairs()
	done(nil)
	return pairs
}

// RemovePair removes the pair a/b in either orientation.
func (api *ExchangeAPI) RemovePair(a, b common.Address) error {
	done := api.track("removePair")
	return done(api.system.RemovePair(a, b))
}

// PairsForToken returns the active pairs that trade token.
func (api *ExchangeAPI) PairsForToken(token common.Address) []exchange.Pair {
	done := api.track("pairsForToken")
	pairs := api.system.PairsForToken(token)
	done(nil)
	if pairs == nil {
		return []exchange.Pair{}
	}
	return pairs
}

// GetState returns the current registry wrapped in a state envelope.
func (api *ExchangeAPI) GetState() *engine.State {
	done := api.track("getState")
	defer done(nil)
	return &engine.State{
		ChainID:   api.chainID,
		Timestamp: uint64(time.Now().UnixNano()),
		Schema:    engine.RegistrySchema,
		Registry:  *api.system.View(),
	}
}

// SubscribeRegistryStream streams a full state followed by diffs.
func (api *ExchangeAPI) SubscribeRegistryStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	api.streamer.subscribe(notifier, rpcSub)
	return rpcSub, nil
}
