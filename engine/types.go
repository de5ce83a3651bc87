package engine

import (
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
)

// Schema is the decode contract for a state's registry data.
type Schema string

// RegistrySchema is the schema of every State produced by this module.
const RegistrySchema Schema = exchange.Schema

// State is the main data structure broadcast to subscribers.
type State struct {
	ChainID   uint64 `json:"chainId"`
	Timestamp uint64 `json:"timestamp"` // Unix nanoseconds at which the state was captured.

	// Schema is the decode contract for Registry.
	// Example:
	// "defistate/exchange/registryView@v1"
	Schema   Schema        `json:"schema"`
	Registry exchange.View `json:"registry"`
}

// Sequence returns the registry sequence the state was captured at.
func (state *State) Sequence() uint64 {
	return state.Registry.Sequence
}

// Copy returns a deep copy of the state.
func (state *State) Copy() *State {
	return &State{
		ChainID:   state.ChainID,
		Timestamp: state.Timestamp,
		Schema:    state.Schema,
		Registry:  *state.Registry.Copy(),
	}
}
