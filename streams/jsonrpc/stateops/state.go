package stateops

import (
	"github.com/defistate/exchange-registry-go/differ"
	"github.com/defistate/exchange-registry-go/patcher"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps encapsulates the core business logic for processing registry State.
//
// It acts as a unified facade for two critical operations:
// 1. Differ: Calculating the delta between two states (Used by the Streamer).
// 2. Patcher: Applying a delta to a previous state to reconstruct the present (Used by a Replica).
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Differ:   exchange.Differ,
		Logger:   logger,
		Registry: prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patcher: exchange.Patcher,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}
