package replica

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/protocols/exchange/indexer"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/server"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	brz = common.HexToAddress("0x420412E765BFa6d85aaaC94b4f7b708C89be2e2B")
	blu = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStream struct {
	stateCh chan *engine.State
	errCh   chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{stateCh: make(chan *engine.State, 4), errCh: make(chan error, 1)}
}

func (s *fakeStream) State() <-chan *engine.State { return s.stateCh }
func (s *fakeStream) Err() <-chan error           { return s.errCh }

type countingIndexer struct {
	calls int
}

func (c *countingIndexer) Index(view *exchange.View) indexer.IndexedRegistry {
	c.calls++
	return indexer.NewIndexableRegistry(view)
}

func TestClient_IndexesStates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeStream()
	idx := &countingIndexer{}
	p := newClient(ctx, stream, discardLogger, WithIndexer(idx))

	stream.stateCh <- &engine.State{
		ChainID:  1,
		Schema:   engine.RegistrySchema,
		Registry: exchange.View{Sequence: 3, Tokens: []common.Address{brz, blu}, Pairs: []exchange.Pair{exchange.NewPair(brz, blu)}},
	}

	select {
	case state := <-p.State():
		assert.Equal(t, uint64(3), state.Sequence)
		assert.Equal(t, uint64(1), state.ChainID)
		assert.True(t, state.Registry.HasPair(blu, brz))
		assert.True(t, state.Registry.IsApproved(brz))
		assert.NotZero(t, state.ProcessedAtUnixNs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for indexed state")
	}
	assert.Equal(t, 1, idx.calls, "custom indexer should be used")
}

func TestClient_ForwardsFatalErrors(t *testing.T) {
	stream := newFakeStream()
	p := newClient(context.Background(), stream, discardLogger)

	boom := errors.New("boom")
	stream.errCh <- boom

	select {
	case err := <-p.Err():
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
	p.Wait()

	_, ok := <-p.State()
	assert.False(t, ok, "state channel is closed once the replica stops")
}

func TestClient_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newClient(ctx, newFakeStream(), discardLogger)
	cancel()
	p.Wait()

	_, ok := <-p.Err()
	assert.False(t, ok)
}

func TestDial_FollowsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRegistry := prometheus.NewRegistry()
	ops, err := stateops.NewStateOps(discardLogger, serverRegistry)
	require.NoError(t, err)
	streamer, err := server.NewStreamer(server.StreamerConfig{ChainID: 1, Differ: ops.StateDiffer, Logger: discardLogger, Registry: serverRegistry})
	require.NoError(t, err)
	system := exchange.NewSystem(exchange.WithListener(streamer.Notify))
	streamer.Notify(system.View())

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		ChainID:    1,
		System:     system,
		Streamer:   streamer,
		Logger:     discardLogger,
		Registry:   serverRegistry,
	})
	require.NoError(t, err)
	go streamer.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	p, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), discardLogger, prometheus.NewRegistry(), WithBufferSize(16))
	require.NoError(t, err)

	waitFor := func(sequence uint64) *State {
		deadline := time.After(5 * time.Second)
		for {
			select {
			case state := <-p.State():
				if state.Sequence >= sequence {
					return state
				}
			case <-deadline:
				t.Fatalf("timed out waiting for sequence %d", sequence)
				return nil
			}
		}
	}

	waitFor(0)
	require.NoError(t, system.AddTokens([]common.Address{brz, blu}))
	require.NoError(t, system.AddPair(brz, blu))

	state := waitFor(3)
	assert.Equal(t, []common.Address{brz, blu}, state.Registry.Tokens())
	assert.True(t, state.Registry.HasPair(brz, blu))
}
