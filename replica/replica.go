// Package replica follows a registry server's stream and keeps an indexed, read-only
// copy of the registry.
package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/protocols/exchange/indexer"
	jsonrpcclient "github.com/defistate/exchange-registry-go/streams/jsonrpc/client"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stream defines the interface the replica consumes states from.
type Stream interface {
	State() <-chan *engine.State
	Err() <-chan error
}

// Indexer defines the interface for any component that can index a registry view.
type Indexer interface {
	Index(view *exchange.View) indexer.IndexedRegistry
}

// State is an indexed registry snapshot.
type State struct {
	Registry          indexer.IndexedRegistry
	ChainID           uint64
	Sequence          uint64
	Timestamp         uint64
	ProcessedAtUnixNs uint64
}

// Client orchestrates the ingestion and indexing of registry state.
// Its lifecycle is bound to the context passed during Dial.
type Client struct {
	stream  Stream
	logger  Logger
	stateCh chan *State
	errCh   chan error

	// Immutable, set via Options during Dial
	indexer    Indexer
	bufferSize int

	ctx context.Context
	wg  sync.WaitGroup
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after Dial.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(p *Client) {
	f(p)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// WithIndexer replaces the default indexer.
func WithIndexer(indexer Indexer) Option {
	return newOption(func(p *Client) {
		p.indexer = indexer
	})
}

// WithBufferSize sets how many indexed states are buffered before new ones are dropped.
func WithBufferSize(size int) Option {
	return newOption(func(p *Client) {
		p.bufferSize = max(size, 1)
	})
}

// Dial establishes the connection and starts the processing loop.
// The returned Client will remain active until the provided ctx is cancelled.
func Dial(
	ctx context.Context,
	url string,
	logger Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	stateOps, err := stateops.NewStateOps(logger, prometheusRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to create state ops: %w", err)
	}

	stream, err := jsonrpcclient.NewClient(ctx, jsonrpcclient.Config{
		URL:          url,
		Logger:       logger,
		BufferSize:   1,
		StatePatcher: stateOps.Patch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial registry stream url: %w", err)
	}

	p := newClient(ctx, stream, logger, opts...)
	p.logger.Info("Replica started", "url", url)
	return p, nil
}

func newClient(ctx context.Context, stream Stream, logger Logger, opts ...Option) *Client {
	p := &Client{
		stream:     stream,
		logger:     logger,
		errCh:      make(chan error, 1),
		indexer:    indexer.New(),
		bufferSize: 1,
	}
	for _, opt := range opts {
		opt.apply(p)
	}
	p.stateCh = make(chan *State, p.bufferSize)

	// Bind the Client's lifecycle to the user-provided context
	p.ctx = ctx
	p.wg.Add(1)
	go p.loop()
	return p
}

// State channel is best-effort; if consumer is slow, updates may be dropped
func (p *Client) State() <-chan *State {
	return p.stateCh
}

func (p *Client) Err() <-chan error {
	return p.errCh
}

// Wait blocks until the processing loop has stopped.
func (p *Client) Wait() {
	p.wg.Wait()
}

func (p *Client) loop() {
	defer p.wg.Done()
	defer func() {
		close(p.stateCh)
		close(p.errCh)
		p.logger.Info("Replica stopped")
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case err, ok := <-p.stream.Err():
			if !ok {
				p.logger.Info("Upstream stream stopped")
				return
			}
			p.logger.Error("Fatal stream error", "err", err)
			select {
			case p.errCh <- err:
			case <-p.ctx.Done():
			}
			return

		case rawState, ok := <-p.stream.State():
			if !ok {
				p.logger.Error("Upstream state channel closed")
				return
			}

			processed := p.processState(rawState)

			select {
			case p.stateCh <- processed:
			case <-p.ctx.Done():
				return
			default:
				p.logger.Warn("State buffer full, discarding processed state...", "sequence", rawState.Sequence())
			}
		}
	}
}

func (p *Client) processState(rawState *engine.State) *State {
	indexingStart := time.Now()
	indexed := p.indexer.Index(&rawState.Registry)

	p.logger.Debug("Registry indexed",
		"sequence", rawState.Sequence(),
		"tokens", len(rawState.Registry.Tokens),
		"pairs", len(rawState.Registry.Pairs),
		"duration_ms", time.Since(indexingStart).Milliseconds(),
	)

	return &State{
		Registry:          indexed,
		ChainID:           rawState.ChainID,
		Sequence:          rawState.Sequence(),
		Timestamp:         rawState.Timestamp,
		ProcessedAtUnixNs: uint64(time.Now().UnixNano()),
	}
}
