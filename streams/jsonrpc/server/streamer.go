package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/exchange-registry-go/differ"
	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultStreamBufferSize = 64

// StreamerConfig holds the dependencies of a Streamer.
type StreamerConfig struct {
	ChainID    uint64
	BufferSize int // Per-subscriber queue length. Defaults to 64.
	Differ     *differ.StateDiffer
	Logger     Logger
	Registry   prometheus.Registerer
}

func (c *StreamerConfig) validate() error {
	if c.Differ == nil {
		return errors.New("config: Differ cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

type streamEvent struct {
	typ     string
	payload json.RawMessage
}

type subscriber struct {
	id     rpc.ID
	events chan streamEvent
	synced bool // has been sent a full state
}

// Streamer turns registry views into full and diff events for stream subscribers.
// Views arrive through Notify and are coalesced: only the newest pending view is
// published.
type Streamer struct {
	chainID    uint64
	bufferSize int
	differ     *differ.StateDiffer
	logger     Logger
	metrics    *streamMetrics

	pending  atomic.Pointer[exchange.View]
	notifyCh chan struct{}
	stopped  chan struct{}

	mu          sync.Mutex
	last        *engine.State
	lastPayload json.RawMessage
	subscribers map[rpc.ID]*subscriber
}

// NewStreamer creates a Streamer. Run must be called for views to be published.
func NewStreamer(cfg StreamerConfig) (*Streamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultStreamBufferSize
	}
	return &Streamer{
		chainID:     cfg.ChainID,
		bufferSize:  bufferSize,
		differ:      cfg.Differ,
		logger:      cfg.Logger,
		metrics:     newStreamMetrics(cfg.Registry),
		notifyCh:    make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		subscribers: make(map[rpc.ID]*subscriber),
	}, nil
}

// Notify queues view for publication. It never blocks and can be registered as an
// exchange.Listener. view must not be modified afterwards.
func (s *Streamer) Notify(view *exchange.View) {
	s.pending.Store(view)
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Run publishes notified views until ctx is canceled.
func (s *Streamer) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notifyCh:
			if view := s.pending.Swap(nil); view != nil {
				s.publish(view)
			}
		}
	}
}

// State returns the last published state, or nil if nothing was published yet.
func (s *Streamer) State() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Streamer) publish(view *exchange.View) {
	state := &engine.State{
		ChainID:   s.chainID,
		Timestamp: uint64(time.Now().UnixNano()),
		Schema:    engine.RegistrySchema,
		Registry:  *view,
	}
	payload, err := json.Marshal(state)
	if err != nil {
		s.metrics.publishErrs.Inc()
		s.logger.Error("failed to encode registry state", "sequence", state.Sequence(), "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var diffPayload json.RawMessage
	if s.last != nil {
		if state.Sequence() <= s.last.Sequence() {
			return
		}
		diffPayload = s.encodeDiff(s.last, state)
	}
	s.last = state
	s.lastPayload = payload

	for _, sub := range s.subscribers {
		// Without a diff every subscriber is brought up to date with a full state.
		if !sub.synced || diffPayload == nil {
			s.enqueueFull(sub)
			continue
		}
		s.enqueue(sub, streamEvent{typ: jsonrpc.EventTypeDiff, payload: diffPayload})
	}
}

func (s *Streamer) encodeDiff(old, new *engine.State) json.RawMessage {
	diff, err := s.differ.Diff(old, new)
	if err != nil {
		s.metrics.publishErrs.Inc()
		return nil
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		s.metrics.publishErrs.Inc()
		s.logger.Error("failed to encode registry diff", "fromSequence", diff.FromSequence, "toSequence", diff.ToSequence, "error", err)
		return nil
	}
	return payload
}

// enqueue MUST be called with s.mu held.
func (s *Streamer) enqueue(sub *subscriber, event streamEvent) {
	select {
	case sub.events <- event:
	default:
		s.metrics.resyncs.Inc()
		s.logger.Warn("subscriber queue full, resyncing with full state", "subscription", sub.id)
		s.enqueueFull(sub)
	}
}

// enqueueFull discards anything still queued for sub and queues the last published state.
// It MUST be called with s.mu held.
func (s *Streamer) enqueueFull(sub *subscriber) {
	for drained := false; !drained; {
		select {
		case <-sub.events:
		default:
			drained = true
		}
	}
	select {
	case sub.events <- streamEvent{typ: jsonrpc.EventTypeFull, payload: s.lastPayload}:
		sub.synced = true
	default:
	}
}

// subscribe registers a new stream subscription. The subscriber is sent the last
// published state before any diff.
func (s *Streamer) subscribe(notifier *rpc.Notifier, rpcSub *rpc.Subscription) {
	sub := &subscriber{
		id:     rpcSub.ID,
		events: make(chan streamEvent, s.bufferSize),
	}

	s.mu.Lock()
	s.subscribers[sub.id] = sub
	if s.last != nil {
		s.enqueueFull(sub)
	}
	s.mu.Unlock()

	s.metrics.subscribers.Inc()
	s.logger.Info("stream subscriber registered", "subscription", sub.id)
	go s.forward(notifier, rpcSub, sub)
}

func (s *Streamer) forward(notifier *rpc.Notifier, rpcSub *rpc.Subscription, sub *subscriber) {
	defer s.unsubscribe(sub.id)
	for {
		select {
		case event := <-sub.events:
			err := notifier.Notify(rpcSub.ID, jsonrpc.SubscriptionEvent{
				Type:    event.typ,
				Payload: event.payload,
				SentAt:  time.Now().UnixNano(),
			})
			if err != nil {
				s.logger.Warn("failed to notify subscriber", "subscription", sub.id, "error", err)
				return
			}
			s.metrics.events.WithLabelValues(event.typ).Inc()
		case <-rpcSub.Err():
			return
		case <-s.stopped:
			return
		}
	}
}

func (s *Streamer) unsubscribe(id rpc.ID) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()

	s.metrics.subscribers.Dec()
	s.logger.Info("stream subscriber removed", "subscription", id)
}
