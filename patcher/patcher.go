package patcher

import (
	"fmt"

	differ "github.com/defistate/exchange-registry-go/differ"
	engine "github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
)

// PatcherFunc applies a registry diff to a previous view to produce a new view.
//
// CONTRACT:
// 1. Immutability: Implementations MUST NOT mutate 'prevState'. They must create a copy.
// 2. nil Handling: 'prevState' may be nil for a replica that has no state yet.
type PatcherFunc func(prevState *exchange.View, diff exchange.Diff) (*exchange.View, error)

type StatePatcherConfig struct {
	// Patcher defaults to exchange.Patcher.
	Patcher PatcherFunc
}

// StatePatcher is the engine for applying state updates.
type StatePatcher struct {
	patcher PatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	patcher := exchange.Patcher
	if cfg != nil && cfg.Patcher != nil {
		patcher = cfg.Patcher
	}
	return &StatePatcher{patcher: patcher}, nil
}

// Patch creates a new State by applying the Diff to the Old State.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	// 1. Integrity Check
	if oldState.Sequence() != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence(), diff.FromSequence)
	}
	if oldState.ChainID != diff.ChainID {
		return nil, fmt.Errorf("patcher: chain id mismatch (state=%d, diff=%d)", oldState.ChainID, diff.ChainID)
	}
	if oldState.Schema != diff.Schema {
		return nil, fmt.Errorf("patcher: schema mismatch (state=%s, diff=%s)", oldState.Schema, diff.Schema)
	}

	// 2. Execute the Patch
	newView, err := p.patcher(&oldState.Registry, diff.Registry)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch registry %d..%d: %w", diff.FromSequence, diff.ToSequence, err)
	}
	newView.Sequence = diff.ToSequence

	// 3. Return Final State
	return &engine.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp, // The time the diff was calculated
		Schema:    diff.Schema,
		Registry:  *newView,
	}, nil
}
