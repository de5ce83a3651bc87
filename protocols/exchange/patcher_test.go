package exchange

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	initialState := &View{
		Sequence: 5,
		Tokens:   []common.Address{brz, blu, weth},
		Pairs:    []Pair{NewPair(brz, blu), NewPair(weth, blu)},
	}

	t.Run("should handle only additions", func(t *testing.T) {
		diff := Diff{
			TokenAdditions: []common.Address{usdc},
			PairAdditions:  []Pair{NewPair(usdc, brz)},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{brz, blu, weth, usdc}, newState.Tokens)
		assert.Equal(t, []Pair{NewPair(brz, blu), NewPair(weth, blu), NewPair(usdc, brz)}, newState.Pairs)
		assert.Equal(t, uint64(5), newState.Sequence, "the patcher does not stamp sequences")
	})

	t.Run("should handle only deletions", func(t *testing.T) {
		diff := Diff{PairDeletions: []Pair{NewPair(blu, brz)}}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)
		assert.Equal(t, []Pair{NewPair(weth, blu)}, newState.Pairs)
	})

	t.Run("should handle an empty diff", func(t *testing.T) {
		newState, err := Patcher(initialState, Diff{})
		require.NoError(t, err)
		assert.Equal(t, initialState, newState, "state should be unchanged for an empty diff")
	})

	t.Run("should not mutate the previous state", func(t *testing.T) {
		snapshot := initialState.Copy()
		_, err := Patcher(initialState, Diff{
			TokenAdditions: []common.Address{usdc},
			PairDeletions:  []Pair{NewPair(brz, blu)},
		})
		require.NoError(t, err)
		assert.Equal(t, snapshot, initialState)
	})

	t.Run("should start from nil", func(t *testing.T) {
		newState, err := Patcher(nil, Diff{TokenAdditions: []common.Address{brz}})
		require.NoError(t, err)
		assert.Equal(t, []common.Address{brz}, newState.Tokens)
	})

	t.Run("should reject invalid diffs", func(t *testing.T) {
		testCases := []struct {
			name string
			diff Diff
			want error
		}{
			{"delete missing pair", Diff{PairDeletions: []Pair{NewPair(brz, weth)}}, ErrPairNotFound},
			{"duplicate token", Diff{TokenAdditions: []common.Address{blu}}, ErrTokenAlreadyApproved},
			{"zero token", Diff{TokenAdditions: []common.Address{{}}}, ErrZeroAddress},
			{"unapproved token", Diff{PairAdditions: []Pair{NewPair(usdc, brz)}}, ErrTokenNotApproved},
			{"existing pair", Diff{PairAdditions: []Pair{NewPair(blu, weth)}}, ErrPairExists},
			{"identical tokens", Diff{PairAdditions: []Pair{NewPair(brz, brz)}}, ErrIdenticalTokens},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := Patcher(initialState, tc.diff)
				assert.ErrorIs(t, err, tc.want)
			})
		}
	})
}

func TestErrorCodes(t *testing.T) {
	for _, err := range []error{
		ErrZeroAddress, ErrTokenAlreadyApproved, ErrTokenNotApproved,
		ErrIdenticalTokens, ErrPairExists, ErrPairNotFound, ErrTokenRemoved,
	} {
		code := ErrorCode(err)
		require.NotZero(t, code, "%v has no code", err)
		assert.Equal(t, err, ErrorFromCode(code))
	}

	wrapped := NewSystem().AddPair(brz, blu)
	assert.Equal(t, CodeTokenNotApproved, ErrorCode(wrapped), "wrapped errors keep their code")
	assert.Zero(t, ErrorCode(assert.AnError))
	assert.Nil(t, ErrorFromCode(-32000))
}
