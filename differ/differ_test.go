package differ

import (
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	brz = common.HexToAddress("0x420412E765BFa6d85aaaC94b4f7b708C89be2e2B")
	blu = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usd = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestDiffer(t *testing.T) *StateDiffer {
	t.Helper()
	d, err := NewStateDiffer(&StateDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func state(sequence uint64, tokens []common.Address, pairs []exchange.Pair) *engine.State {
	return &engine.State{
		ChainID:  1,
		Schema:   engine.RegistrySchema,
		Registry: exchange.View{Sequence: sequence, Tokens: tokens, Pairs: pairs},
	}
}

func TestNewStateDiffer(t *testing.T) {
	_, err := NewStateDiffer(&StateDifferConfig{Logger: slog.Default()})
	assert.ErrorContains(t, err, "Registry cannot be nil")

	_, err = NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
	assert.ErrorContains(t, err, "Logger cannot be nil")
}

func TestStateDiffer_Diff(t *testing.T) {
	d := newTestDiffer(t)

	old := state(2, []common.Address{brz, blu}, []exchange.Pair{exchange.NewPair(brz, blu)})
	new := state(5, []common.Address{brz, blu, usd}, []exchange.Pair{exchange.NewPair(usd, blu)})

	diff, err := d.Diff(old, new)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), diff.FromSequence)
	assert.Equal(t, uint64(5), diff.ToSequence)
	assert.Equal(t, uint64(1), diff.ChainID)
	assert.Equal(t, engine.RegistrySchema, diff.Schema)
	assert.NotZero(t, diff.Timestamp)
	assert.Equal(t, []common.Address{usd}, diff.Registry.TokenAdditions)
	assert.Equal(t, []exchange.Pair{exchange.NewPair(usd, blu)}, diff.Registry.PairAdditions)
	assert.Equal(t, []exchange.Pair{exchange.NewPair(brz, blu)}, diff.Registry.PairDeletions)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.diffChanges.WithLabelValues("token_addition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.diffChanges.WithLabelValues("pair_deletion")))
}

func TestStateDiffer_Rejects(t *testing.T) {
	d := newTestDiffer(t)
	base := state(4, []common.Address{brz, blu}, nil)

	t.Run("nil state", func(t *testing.T) {
		_, err := d.Diff(nil, base)
		assert.Error(t, err)
	})

	t.Run("chain mismatch", func(t *testing.T) {
		other := state(5, base.Registry.Tokens, nil)
		other.ChainID = 8453
		_, err := d.Diff(base, other)
		assert.ErrorContains(t, err, "chain id mismatch")
	})

	t.Run("older state", func(t *testing.T) {
		_, err := d.Diff(base, state(3, base.Registry.Tokens, nil))
		assert.ErrorContains(t, err, "older")
	})

	t.Run("token removal", func(t *testing.T) {
		_, err := d.Diff(base, state(5, []common.Address{brz}, nil))
		assert.ErrorIs(t, err, exchange.ErrTokenRemoved)
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(d.metrics.diffErrors))
}
