package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/exchange-registry-go/differ"
	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	brz = common.HexToAddress("0x420412E765BFa6d85aaaC94b4f7b708C89be2e2B")
	blu = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usd = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type testEnv struct {
	system   *exchange.System
	streamer *Streamer
	server   *Server
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, bufferSize int) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{Registry: registry, Logger: logger})
	require.NoError(t, err)

	streamer, err := NewStreamer(StreamerConfig{
		ChainID:    1,
		BufferSize: bufferSize,
		Differ:     stateDiffer,
		Logger:     logger,
		Registry:   registry,
	})
	require.NoError(t, err)

	system := exchange.NewSystem(exchange.WithListener(streamer.Notify), exchange.WithMetrics(registry))
	streamer.Notify(system.View())

	srv, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		ChainID:    1,
		System:     system,
		Streamer:   streamer,
		Logger:     logger,
		Registry:   registry,
		Gatherer:   registry,
	})
	require.NoError(t, err)

	return &testEnv{system: system, streamer: streamer, server: srv, registry: registry}
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "ListenAddr is required")

	_, err = NewStreamer(StreamerConfig{})
	assert.ErrorContains(t, err, "Differ cannot be nil")
}

func TestExchangeAPI_ManagerScenario(t *testing.T) {
	env := newTestEnv(t, 0)
	client := rpc.DialInProc(env.server.RPC())
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.CallContext(ctx, nil, "exchange_addToken", brz))
	require.NoError(t, client.CallContext(ctx, nil, "exchange_addToken", blu))

	var tokens []common.Address
	require.NoError(t, client.CallContext(ctx, &tokens, "exchange_listTokens"))
	assert.Equal(t, []common.Address{brz, blu}, tokens)

	require.NoError(t, client.CallContext(ctx, nil, "exchange_addPair", brz, blu))

	var pairs []exchange.Pair
	require.NoError(t, client.CallContext(ctx, &pairs, "exchange_listPairs"))
	assert.Equal(t, []exchange.Pair{exchange.NewPair(brz, blu)}, pairs)

	var forToken []exchange.Pair
	require.NoError(t, client.CallContext(ctx, &forToken, "exchange_pairsForToken", blu))
	assert.Equal(t, pairs, forToken)

	require.NoError(t, client.CallContext(ctx, nil, "exchange_removePair", blu, brz))
	require.NoError(t, client.CallContext(ctx, &pairs, "exchange_listPairs"))
	assert.Empty(t, pairs)

	var state engine.State
	require.NoError(t, client.CallContext(ctx, &state, "exchange_getState"))
	assert.Equal(t, uint64(1), state.ChainID)
	assert.Equal(t, engine.RegistrySchema, state.Schema)
	assert.Equal(t, uint64(4), state.Sequence())
	assert.Equal(t, []common.Address{brz, blu}, state.Registry.Tokens)

	assert.Equal(t, 2.0, testutil.ToFloat64(env.server.api.metrics.requests.WithLabelValues("addToken", resultOK)))
}

func TestExchangeAPI_ErrorCodes(t *testing.T) {
	env := newTestEnv(t, 0)
	client := rpc.DialInProc(env.server.RPC())
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.CallContext(ctx, nil, "exchange_addToken", brz))

	testCases := []struct {
		name   string
		method string
		args   []any
		code   int
	}{
		{"duplicate token", "exchange_addToken", []any{brz}, exchange.CodeTokenAlreadyApproved},
		{"zero address", "exchange_addToken", []any{common.Address{}}, exchange.CodeZeroAddress},
		{"unapproved token", "exchange_addPair", []any{brz, blu}, exchange.CodeTokenNotApproved},
		{"identical tokens", "exchange_addPair", []any{brz, brz}, exchange.CodeIdenticalTokens},
		{"missing pair", "exchange_removePair", []any{brz, blu}, exchange.CodePairNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := client.CallContext(ctx, nil, tc.method, tc.args...)
			var rpcErr rpc.Error
			require.True(t, errors.As(err, &rpcErr), "expected an rpc error, got %v", err)
			assert.Equal(t, tc.code, rpcErr.ErrorCode())
		})
	}

	assert.Equal(t, uint64(1), env.system.Sequence(), "failed calls must not mutate the registry")
}

func TestExchangeAPI_Stream(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.streamer.Run(ctx)

	client := rpc.DialInProc(env.server.RPC())
	defer client.Close()

	events := make(chan jsonrpc.SubscriptionEvent, 16)
	sub, err := client.Subscribe(ctx, jsonrpc.RpcNamespace, events, jsonrpc.StateStreamSubscriptionMethod)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	receive := func() jsonrpc.SubscriptionEvent {
		select {
		case event := <-events:
			return event
		case err := <-sub.Err():
			t.Fatalf("subscription failed: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream event")
		}
		return jsonrpc.SubscriptionEvent{}
	}

	full := receive()
	require.Equal(t, jsonrpc.EventTypeFull, full.Type)
	var state engine.State
	require.NoError(t, json.Unmarshal(full.Payload, &state))
	assert.Equal(t, uint64(0), state.Sequence())

	require.NoError(t, env.system.AddTokens([]common.Address{brz, blu}))

	event := receive()
	require.Equal(t, jsonrpc.EventTypeDiff, event.Type)
	var diff differ.StateDiff
	require.NoError(t, json.Unmarshal(event.Payload, &diff))
	assert.Equal(t, uint64(0), diff.FromSequence)
	assert.Equal(t, uint64(2), diff.ToSequence)
	assert.Equal(t, []common.Address{brz, blu}, diff.Registry.TokenAdditions)
	assert.NotZero(t, full.SentAt)
}

func TestStreamer_ResyncsSlowSubscriber(t *testing.T) {
	env := newTestEnv(t, 1)
	s := env.streamer

	sub := &subscriber{id: "slow", events: make(chan streamEvent, 1)}
	s.subscribers[sub.id] = sub

	s.publish(&exchange.View{Sequence: 1, Tokens: []common.Address{brz}})
	s.publish(&exchange.View{Sequence: 2, Tokens: []common.Address{brz, blu}})

	require.Len(t, sub.events, 1)
	event := <-sub.events
	assert.Equal(t, jsonrpc.EventTypeFull, event.typ, "an overflowing subscriber gets the newest full state")

	var state engine.State
	require.NoError(t, json.Unmarshal(event.payload, &state))
	assert.Equal(t, uint64(2), state.Sequence())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.resyncs))

	// Stale notifications are ignored.
	s.publish(&exchange.View{Sequence: 2, Tokens: []common.Address{brz, blu, usd}})
	assert.Len(t, sub.events, 0)
	assert.Equal(t, uint64(2), s.State().Sequence())
}

func TestServer_HTTPAndWebsocket(t *testing.T) {
	env := newTestEnv(t, 0)
	require.NoError(t, env.system.AddToken(usd))

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	ctx := context.Background()

	for _, url := range []string{ts.URL, "ws" + strings.TrimPrefix(ts.URL, "http")} {
		client, err := rpc.DialContext(ctx, url)
		require.NoError(t, err)

		var tokens []common.Address
		require.NoError(t, client.CallContext(ctx, &tokens, "exchange_listTokens"), url)
		assert.Equal(t, []common.Address{usd}, tokens)
		client.Close()
	}

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "registry_rpc_requests_total")
	assert.Contains(t, string(body), "registry_tokens 1")
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}
