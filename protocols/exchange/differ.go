package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Diff is the set of changes that moves one registry view to another.
type Diff struct {
	TokenAdditions []common.Address `json:"tokenAdditions,omitempty"`
	PairAdditions  []Pair           `json:"pairAdditions,omitempty"`
	PairDeletions  []Pair           `json:"pairDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.TokenAdditions) == 0 && len(d.PairAdditions) == 0 && len(d.PairDeletions) == 0
}

// Differ calculates the difference between two registry views (old -> new).
// Additions keep the order of new and deletions keep the order of old, so patching
// old with the result reproduces new exactly. Tokens are never removed from a
// registry; a token missing from new is reported as ErrTokenRemoved.
func Differ(old, new *View) (Diff, error) {
	if old == nil {
		old = &View{}
	}
	if new == nil {
		new = &View{}
	}

	newTokens := make(map[common.Address]struct{}, len(new.Tokens))
	for _, token := range new.Tokens {
		newTokens[token] = struct{}{}
	}
	oldTokens := make(map[common.Address]struct{}, len(old.Tokens))
	for _, token := range old.Tokens {
		if _, ok := newTokens[token]; !ok {
			return Diff{}, fmt.Errorf("%w: %s", ErrTokenRemoved, token.Hex())
		}
		oldTokens[token] = struct{}{}
	}

	var diff Diff
	for _, token := range new.Tokens {
		if _, ok := oldTokens[token]; !ok {
			diff.TokenAdditions = append(diff.TokenAdditions, token)
		}
	}

	// A pair that was removed and added again between the two views moves to the end
	// of the list; it is expressed as a deletion plus an addition so order survives.
	oldPairs := make(map[PairKey]int, len(old.Pairs))
	for i, pair := range old.Pairs {
		oldPairs[pair.Key()] = i
	}
	retained := retainedPairs(old.Pairs, new.Pairs, oldPairs)

	for _, pair := range old.Pairs {
		if _, ok := retained[pair.Key()]; !ok {
			diff.PairDeletions = append(diff.PairDeletions, pair)
		}
	}
	for _, pair := range new.Pairs {
		if _, ok := retained[pair.Key()]; !ok {
			diff.PairAdditions = append(diff.PairAdditions, pair)
		}
	}

	return diff, nil
}

// retainedPairs returns the longest prefix of newList made of pairs that exist in
// oldList with the same orientation and in the same relative order. Everything after
// that prefix has to be appended by the patcher.
func retainedPairs(oldList, newList []Pair, oldIndex map[PairKey]int) map[PairKey]struct{} {
	retained := make(map[PairKey]struct{}, len(newList))
	last := -1
	for _, pair := range newList {
		i, ok := oldIndex[pair.Key()]
		if !ok || i < last || oldList[i] != pair {
			break
		}
		last = i
		retained[pair.Key()] = struct{}{}
	}
	return retained
}
