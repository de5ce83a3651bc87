package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new view by applying a diff to a previous view. prevState is
// never mutated. Deletions are applied first, then token additions, then pair
// additions; a diff that would break the registry invariants is rejected.
// The returned view keeps prevState's Sequence; callers stamp the new one.
func Patcher(prevState *View, diff Diff) (*View, error) {
	if prevState == nil {
		prevState = &View{}
	}

	approved := make(map[common.Address]struct{}, len(prevState.Tokens)+len(diff.TokenAdditions))
	tokens := make([]common.Address, 0, len(prevState.Tokens)+len(diff.TokenAdditions))
	for _, token := range prevState.Tokens {
		approved[token] = struct{}{}
		tokens = append(tokens, token)
	}

	// 1. Process deletions.
	deleted := make(map[PairKey]struct{}, len(diff.PairDeletions))
	for _, pair := range diff.PairDeletions {
		deleted[pair.Key()] = struct{}{}
	}
	active := make(map[PairKey]struct{}, len(prevState.Pairs)+len(diff.PairAdditions))
	pairs := make([]Pair, 0, len(prevState.Pairs)+len(diff.PairAdditions))
	for _, pair := range prevState.Pairs {
		key := pair.Key()
		if _, ok := deleted[key]; ok {
			delete(deleted, key)
			continue
		}
		active[key] = struct{}{}
		pairs = append(pairs, pair)
	}
	for key := range deleted {
		return nil, fmt.Errorf("patch deletion %s/%s: %w", key.Lo.Hex(), key.Hi.Hex(), ErrPairNotFound)
	}

	// 2. Process token additions.
	for _, token := range diff.TokenAdditions {
		if token == (common.Address{}) {
			return nil, fmt.Errorf("patch token addition: %w", ErrZeroAddress)
		}
		if _, ok := approved[token]; ok {
			return nil, fmt.Errorf("patch token addition: %w: %s", ErrTokenAlreadyApproved, token.Hex())
		}
		approved[token] = struct{}{}
		tokens = append(tokens, token)
	}

	// 3. Process pair additions.
	for _, pair := range diff.PairAdditions {
		if pair.TokenA == pair.TokenB {
			return nil, fmt.Errorf("patch pair addition: %w: %s", ErrIdenticalTokens, pair.TokenA.Hex())
		}
		for _, token := range []common.Address{pair.TokenA, pair.TokenB} {
			if _, ok := approved[token]; !ok {
				return nil, fmt.Errorf("patch pair addition %s: %w: %s", pair, ErrTokenNotApproved, token.Hex())
			}
		}
		if _, ok := active[pair.Key()]; ok {
			return nil, fmt.Errorf("patch pair addition: %w: %s", ErrPairExists, pair)
		}
		active[pair.Key()] = struct{}{}
		pairs = append(pairs, pair)
	}

	return &View{
		Sequence: prevState.Sequence,
		Tokens:   tokens,
		Pairs:    pairs,
	}, nil
}
