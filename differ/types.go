package differ

import (
	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff represents a summary of registry changes FromSequence to ToSequence.
type StateDiff struct {
	Timestamp    uint64 `json:"timestamp"`
	ChainID      uint64 `json:"chainId"`
	FromSequence uint64 `json:"fromSequence"`
	ToSequence   uint64 `json:"toSequence"`

	// Schema is the decode contract of the states the diff was computed from.
	Schema   engine.Schema `json:"schema"`
	Registry exchange.Diff `json:"registry"`
}
