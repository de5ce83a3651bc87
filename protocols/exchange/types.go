package exchange

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the decode contract for registry views published on the stream.
const Schema = "defistate/exchange/registryView@v1"

// Pair is a tradable market between two approved tokens. The orientation is the one
// the pair was added with; it carries no meaning for equality or lookup.
type Pair struct {
	TokenA common.Address `json:"tokenA"`
	TokenB common.Address `json:"tokenB"`
}

// NewPair returns the pair {a, b}.
func NewPair(a, b common.Address) Pair {
	return Pair{TokenA: a, TokenB: b}
}

// Key returns the orientation-independent identity of the pair.
func (p Pair) Key() PairKey {
	return NewPairKey(p.TokenA, p.TokenB)
}

// Has reports whether token is one of the pair's legs.
func (p Pair) Has(token common.Address) bool {
	return p.TokenA == token || p.TokenB == token
}

func (p Pair) String() string {
	return p.TokenA.Hex() + "/" + p.TokenB.Hex()
}

// PairKey is a comparable, hashable pair identity with the two addresses stored in
// ascending byte order, so that {A, B} and {B, A} produce the same key.
type PairKey struct {
	Lo common.Address
	Hi common.Address
}

// NewPairKey normalises two addresses into a PairKey.
func NewPairKey(a, b common.Address) PairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// View is an immutable snapshot of the registry.
type View struct {
	// Sequence advances by one on every successful mutation.
	Sequence uint64           `json:"sequence"`
	Tokens   []common.Address `json:"tokens"`
	Pairs    []Pair           `json:"pairs"`
}

// Copy returns a deep copy of the view with its own backing arrays.
func (v *View) Copy() *View {
	if v == nil {
		return nil
	}
	return &View{
		Sequence: v.Sequence,
		Tokens:   append(make([]common.Address, 0, len(v.Tokens)), v.Tokens...),
		Pairs:    append(make([]Pair, 0, len(v.Pairs)), v.Pairs...),
	}
}

// Journal records registry mutations before they are applied in memory. A Journal
// error aborts the mutation.
type Journal interface {
	// RecordTokens persists a batch of approvals atomically. The i-th token is
	// assigned firstSequence+i.
	RecordTokens(tokens []common.Address, firstSequence uint64) error
	RecordPairAdded(pair Pair, sequence uint64) error
	RecordPairRemoved(pair Pair, sequence uint64) error
}
