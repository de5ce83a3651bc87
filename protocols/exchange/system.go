package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opAddToken   = "add_token"
	opAddTokens  = "add_tokens"
	opAddPair    = "add_pair"
	opRemovePair = "remove_pair"
)

// Listener is called after every successful mutation with the new view. The view is
// shared and must not be modified. Listeners run while the write lock is held and
// must not block or call back into the System's write methods.
type Listener func(view *View)

// System provides a concurrency-safe layer over Registry. Writers are serialised by a
// sync.RWMutex; ListTokens, ListPairs and View read an atomically swapped snapshot
// and never take the lock.
type System struct {
	mu         sync.RWMutex
	registry   *Registry
	cachedView atomic.Pointer[View]

	compactionThreshold int
	journal             Journal
	listeners           []Listener
	metrics             *Metrics
}

// Option configures a System.
type Option interface {
	apply(*System)
}

type funcOption func(*System)

func (f funcOption) apply(s *System) {
	f(s)
}

func newOption(f func(*System)) Option {
	return funcOption(f)
}

// WithCompactionThreshold sets how many removed pairs are tolerated before the pair
// storage is compacted.
func WithCompactionThreshold(threshold int) Option {
	return newOption(func(s *System) {
		s.compactionThreshold = threshold
	})
}

// WithJournal records every mutation in j before it is applied.
func WithJournal(j Journal) Option {
	return newOption(func(s *System) {
		s.journal = j
	})
}

// WithListener registers l to be notified after every successful mutation.
func WithListener(l Listener) Option {
	return newOption(func(s *System) {
		s.listeners = append(s.listeners, l)
	})
}

// WithMetrics registers the registry metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return newOption(func(s *System) {
		s.metrics = NewMetrics(reg)
	})
}

// NewSystem creates an empty, concurrency-safe System.
func NewSystem(opts ...Option) *System {
	s := &System{}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.registry = NewRegistry(s.compactionThreshold)
	s.updateCachedView()
	return s
}

// NewSystemFromView creates a System from a snapshot. The snapshot is validated and
// the returned System continues from its sequence.
func NewSystemFromView(view *View, opts ...Option) (*System, error) {
	s := &System{}
	for _, opt := range opts {
		opt.apply(s)
	}
	registry, err := NewRegistryFromView(view, s.compactionThreshold)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	s.updateCachedView()
	return s, nil
}

// updateCachedView generates a fresh view from the registry and atomically updates the pointer.
// This method MUST be called from within a write lock (s.mu.Lock).
func (s *System) updateCachedView() *View {
	newView := s.registry.view()
	s.cachedView.Store(newView)
	s.metrics.observeView(newView)
	return newView
}

// commit publishes the registry state after a successful mutation.
// This method MUST be called from within a write lock (s.mu.Lock).
func (s *System) commit() {
	v := s.updateCachedView()
	for _, l := range s.listeners {
		l(v)
	}
}

// --- Write Methods ---

// AddToken approves a single token.
func (s *System) AddToken(token common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.addTokens([]common.Address{token})
	s.metrics.observeOperation(opAddToken, err)
	return err
}

// AddTokens approves multiple tokens in a single, atomic operation: either every
// token is approved or none is.
func (s *System) AddTokens(tokens []common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	err := s.addTokens(tokens)
	s.metrics.observeOperation(opAddTokens, err)
	return err
}

func (s *System) addTokens(tokens []common.Address) error {
	seen := make(map[common.Address]struct{}, len(tokens))
	for _, token := range tokens {
		if err := s.registry.validateToken(token); err != nil {
			return err
		}
		if _, dup := seen[token]; dup {
			return fmt.Errorf("%w: %s appears twice in batch", ErrTokenAlreadyApproved, token.Hex())
		}
		seen[token] = struct{}{}
	}

	if s.journal != nil {
		if err := s.journal.RecordTokens(tokens, s.registry.sequence+1); err != nil {
			return fmt.Errorf("journal tokens: %w", err)
		}
	}

	for _, token := range tokens {
		s.registry.applyToken(token)
	}
	s.commit()
	return nil
}

// AddPair creates the pair {a, b}. Both tokens must already be approved.
func (s *System) AddPair(a, b common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.addPair(NewPair(a, b))
	s.metrics.observeOperation(opAddPair, err)
	return err
}

func (s *System) addPair(pair Pair) error {
	if err := s.registry.validateAddPair(pair); err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.RecordPairAdded(pair, s.registry.sequence+1); err != nil {
			return fmt.Errorf("journal pair %s: %w", pair, err)
		}
	}
	s.registry.applyAddPair(pair)
	s.commit()
	return nil
}

// RemovePair deletes the pair {a, b}, in either orientation.
func (s *System) RemovePair(a, b common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.removePair(a, b)
	s.metrics.observeOperation(opRemovePair, err)
	return err
}

func (s *System) removePair(a, b common.Address) error {
	pair, err := s.registry.lookupPair(a, b)
	if err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.RecordPairRemoved(pair, s.registry.sequence+1); err != nil {
			return fmt.Errorf("journal pair removal %s: %w", pair, err)
		}
	}
	s.registry.applyRemovePair(pair)
	s.commit()
	return nil
}

// --- Read Methods ---

// ListTokens returns the approved tokens in insertion order.
func (s *System) ListTokens() []common.Address {
	v := s.loadView()
	out := make([]common.Address, len(v.Tokens))
	copy(out, v.Tokens)
	return out
}

// ListPairs returns the active pairs in insertion order.
func (s *System) ListPairs() []Pair {
	v := s.loadView()
	out := make([]Pair, len(v.Pairs))
	copy(out, v.Pairs)
	return out
}

// Sequence returns the sequence number of the latest mutation.
func (s *System) Sequence() uint64 {
	return s.loadView().Sequence
}

func (s *System) HasToken(token common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.hasToken(token)
}

func (s *System) HasPair(a, b common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.hasPair(a, b)
}

// PairsForToken returns the active pairs that trade token, or nil if there are none.
func (s *System) PairsForToken(token common.Address) []Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.pairsForToken(token)
}

// View returns a deep copy of the current snapshot. The caller may modify it freely.
func (s *System) View() *View {
	return s.loadView().Copy()
}

func (s *System) loadView() *View {
	v := s.cachedView.Load()
	if v == nil {
		return &View{}
	}
	return v
}
