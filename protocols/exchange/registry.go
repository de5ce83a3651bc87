package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const defaultCompactionThreshold = 1000

// Registry is a simple, non-thread-safe data structure that owns the approved token set
// and the trading pair set. Use System for concurrent access.
type Registry struct {
	// Lookups for fast index retrieval
	tokenToIndex map[common.Address]int
	pairToIndex  map[PairKey]int

	// Insertion-ordered storage. Removed pairs stay in place as tombstones
	// until the next compaction.
	tokens              []common.Address
	pairs               []Pair
	live                []bool
	deadPairCount       int
	compactionThreshold int
	sequence            uint64
}

// NewRegistry creates a new, empty registry.
func NewRegistry(compactionThreshold int) *Registry {
	if compactionThreshold <= 0 {
		compactionThreshold = defaultCompactionThreshold
	}
	return &Registry{
		tokenToIndex:        make(map[common.Address]int),
		pairToIndex:         make(map[PairKey]int),
		tokens:              make([]common.Address, 0),
		pairs:               make([]Pair, 0),
		live:                make([]bool, 0),
		compactionThreshold: compactionThreshold,
	}
}

// NewRegistryFromView reconstructs a registry from a view snapshot. The view is
// validated against the registry invariants and deep-copied, so the new registry
// has full ownership of its memory.
func NewRegistryFromView(view *View, compactionThreshold int) (*Registry, error) {
	r := NewRegistry(compactionThreshold)
	if view == nil {
		return r, nil
	}

	for _, token := range view.Tokens {
		if err := r.validateToken(token); err != nil {
			return nil, fmt.Errorf("restore token %s: %w", token.Hex(), err)
		}
		r.applyToken(token)
	}
	for _, pair := range view.Pairs {
		if err := r.validateAddPair(pair); err != nil {
			return nil, fmt.Errorf("restore pair %s: %w", pair, err)
		}
		r.applyAddPair(pair)
	}

	// A restored registry continues from the snapshot's sequence.
	r.sequence = view.Sequence
	return r, nil
}

func (r *Registry) validateToken(token common.Address) error {
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, exists := r.tokenToIndex[token]; exists {
		return fmt.Errorf("%w: %s", ErrTokenAlreadyApproved, token.Hex())
	}
	return nil
}

func (r *Registry) applyToken(token common.Address) {
	r.tokenToIndex[token] = len(r.tokens)
	r.tokens = append(r.tokens, token)
	r.sequence++
}

func (r *Registry) validateAddPair(pair Pair) error {
	if pair.TokenA == pair.TokenB {
		return fmt.Errorf("%w: %s", ErrIdenticalTokens, pair.TokenA.Hex())
	}
	for _, token := range []common.Address{pair.TokenA, pair.TokenB} {
		if _, approved := r.tokenToIndex[token]; !approved {
			return fmt.Errorf("%w: %s", ErrTokenNotApproved, token.Hex())
		}
	}
	if _, exists := r.pairToIndex[pair.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrPairExists, pair)
	}
	return nil
}

func (r *Registry) applyAddPair(pair Pair) {
	r.pairToIndex[pair.Key()] = len(r.pairs)
	r.pairs = append(r.pairs, pair)
	r.live = append(r.live, true)
	r.sequence++
}

// lookupPair returns the stored pair for {a, b} in its original orientation.
func (r *Registry) lookupPair(a, b common.Address) (Pair, error) {
	index, exists := r.pairToIndex[NewPairKey(a, b)]
	if !exists {
		return Pair{}, fmt.Errorf("%w: %s/%s", ErrPairNotFound, a.Hex(), b.Hex())
	}
	return r.pairs[index], nil
}

// applyRemovePair performs a logical deletion of the pair. The slot is reclaimed
// once the tombstone count passes the compaction threshold.
func (r *Registry) applyRemovePair(pair Pair) {
	key := pair.Key()
	index := r.pairToIndex[key]
	delete(r.pairToIndex, key)
	r.live[index] = false
	r.deadPairCount++
	r.sequence++

	if r.deadPairCount > r.compactionThreshold {
		r.compact()
	}
}

// compact rebuilds the pair storage to physically remove tombstones.
func (r *Registry) compact() {
	if r.deadPairCount == 0 {
		return
	}

	livePairs := len(r.pairs) - r.deadPairCount
	newPairs := make([]Pair, 0, livePairs)
	newLive := make([]bool, 0, livePairs)
	newPairToIndex := make(map[PairKey]int, livePairs)

	for i, pair := range r.pairs {
		if !r.live[i] {
			continue
		}
		newPairToIndex[pair.Key()] = len(newPairs)
		newPairs = append(newPairs, pair)
		newLive = append(newLive, true)
	}

	r.pairs = newPairs
	r.live = newLive
	r.pairToIndex = newPairToIndex
	r.deadPairCount = 0
}

func (r *Registry) addToken(token common.Address) error {
	if err := r.validateToken(token); err != nil {
		return err
	}
	r.applyToken(token)
	return nil
}

func (r *Registry) addPair(a, b common.Address) error {
	pair := NewPair(a, b)
	if err := r.validateAddPair(pair); err != nil {
		return err
	}
	r.applyAddPair(pair)
	return nil
}

func (r *Registry) removePair(a, b common.Address) error {
	pair, err := r.lookupPair(a, b)
	if err != nil {
		return err
	}
	r.applyRemovePair(pair)
	return nil
}

func (r *Registry) hasToken(token common.Address) bool {
	_, ok := r.tokenToIndex[token]
	return ok
}

func (r *Registry) hasPair(a, b common.Address) bool {
	_, ok := r.pairToIndex[NewPairKey(a, b)]
	return ok
}

func (r *Registry) pairsForToken(token common.Address) []Pair {
	if !r.hasToken(token) {
		return nil
	}
	var out []Pair
	for i, pair := range r.pairs {
		if r.live[i] && pair.Has(token) {
			out = append(out, pair)
		}
	}
	return out
}

// view returns a deep copy of the live registry state.
func (r *Registry) view() *View {
	tokensCopy := make([]common.Address, len(r.tokens))
	copy(tokensCopy, r.tokens)

	pairsCopy := make([]Pair, 0, len(r.pairs)-r.deadPairCount)
	for i, pair := range r.pairs {
		if r.live[i] {
			pairsCopy = append(pairsCopy, pair)
		}
	}

	return &View{
		Sequence: r.sequence,
		Tokens:   tokensCopy,
		Pairs:    pairsCopy,
	}
}
