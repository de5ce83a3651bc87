package indexer

import (
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedRegistry values from registry views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed registry from a view.
func (i *Indexer) Index(view *exchange.View) IndexedRegistry {
	return NewIndexableRegistry(view)
}

// IndexableRegistry provides fast, indexed access to a registry view.
type IndexableRegistry struct {
	sequence uint64
	approved map[common.Address]struct{}
	byKey    map[exchange.PairKey]exchange.Pair
	byToken  map[common.Address][]exchange.Pair
	tokens   []common.Address
	pairs    []exchange.Pair
}

// NewIndexableRegistry creates a new indexed registry from a view. The view's slices
// are copied.
func NewIndexableRegistry(view *exchange.View) *IndexableRegistry {
	if view == nil {
		view = &exchange.View{}
	}

	approved := make(map[common.Address]struct{}, len(view.Tokens))
	for _, token := range view.Tokens {
		approved[token] = struct{}{}
	}

	byKey := make(map[exchange.PairKey]exchange.Pair, len(view.Pairs))
	byToken := make(map[common.Address][]exchange.Pair)
	for _, pair := range view.Pairs {
		byKey[pair.Key()] = pair
		byToken[pair.TokenA] = append(byToken[pair.TokenA], pair)
		byToken[pair.TokenB] = append(byToken[pair.TokenB], pair)
	}

	c := view.Copy()
	return &IndexableRegistry{
		sequence: view.Sequence,
		approved: approved,
		byKey:    byKey,
		byToken:  byToken,
		tokens:   c.Tokens,
		pairs:    c.Pairs,
	}
}

func (ir *IndexableRegistry) Sequence() uint64 {
	return ir.sequence
}

// IsApproved reports whether token is in the approved set.
func (ir *IndexableRegistry) IsApproved(token common.Address) bool {
	_, ok := ir.approved[token]
	return ok
}

// HasPair reports whether {a, b} is an active pair, in either orientation.
func (ir *IndexableRegistry) HasPair(a, b common.Address) bool {
	_, ok := ir.byKey[exchange.NewPairKey(a, b)]
	return ok
}

// PairsForToken returns a copy of the pairs that trade token.
func (ir *IndexableRegistry) PairsForToken(token common.Address) []exchange.Pair {
	pairs := ir.byToken[token]
	if len(pairs) == 0 {
		return nil
	}
	out := make([]exchange.Pair, len(pairs))
	copy(out, pairs)
	return out
}

// Tokens returns a copy of the approved tokens.
func (ir *IndexableRegistry) Tokens() []common.Address {
	out := make([]common.Address, len(ir.tokens))
	copy(out, ir.tokens)
	return out
}

// Pairs returns a copy of the active pairs.
func (ir *IndexableRegistry) Pairs() []exchange.Pair {
	out := make([]exchange.Pair, len(ir.pairs))
	copy(out, ir.pairs)
	return out
}
