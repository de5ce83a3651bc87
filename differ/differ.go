package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/exchange-registry-go/engine"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/prometheus/client_golang/prometheus"
)

// RegistryDiffer computes the changes between two registry views.
type RegistryDiffer func(old, new *exchange.View) (exchange.Diff, error)

// StateDifferConfig holds the differ function and dependencies.
type StateDifferConfig struct {
	// Differ defaults to exchange.Differ.
	Differ   RegistryDiffer
	Registry prometheus.Registerer // Required for metrics.
	Logger   Logger                // Required for logging.
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer is the main differ engine, with metrics and logging.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
	differ  RegistryDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	differ := cfg.Differ
	if differ == nil {
		differ = exchange.Differ
	}

	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		differ:  differ,
	}, nil
}

// Diff compares two states of the same chain. new must not be older than old.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	stateDiff, err := d.diff(old, new)
	if err != nil {
		d.metrics.diffErrors.Inc()
		d.logger.Error("failed to diff registry states", "error", err)
		return nil, err
	}

	d.metrics.diffChanges.WithLabelValues("token_addition").Add(float64(len(stateDiff.Registry.TokenAdditions)))
	d.metrics.diffChanges.WithLabelValues("pair_addition").Add(float64(len(stateDiff.Registry.PairAdditions)))
	d.metrics.diffChanges.WithLabelValues("pair_deletion").Add(float64(len(stateDiff.Registry.PairDeletions)))
	d.logger.Debug("diffed registry states",
		"fromSequence", stateDiff.FromSequence,
		"toSequence", stateDiff.ToSequence,
		"tokenAdditions", len(stateDiff.Registry.TokenAdditions),
		"pairAdditions", len(stateDiff.Registry.PairAdditions),
		"pairDeletions", len(stateDiff.Registry.PairDeletions),
	)
	return stateDiff, nil
}

func (d *StateDiffer) diff(old, new *engine.State) (*StateDiff, error) {
	if old == nil || new == nil {
		return nil, errors.New("StateDiffer received a nil state")
	}
	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("chain id mismatch (old=%d, new=%d)", old.ChainID, new.ChainID)
	}
	if old.Schema != new.Schema {
		return nil, fmt.Errorf("schema mismatch (old=%s, new=%s)", old.Schema, new.Schema)
	}
	if new.Sequence() < old.Sequence() {
		return nil, fmt.Errorf("new state is older than old state (old=%d, new=%d)", old.Sequence(), new.Sequence())
	}

	registryDiff, err := d.differ(&old.Registry, &new.Registry)
	if err != nil {
		return nil, fmt.Errorf("diff registry %d..%d: %w", old.Sequence(), new.Sequence(), err)
	}

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		ChainID:      new.ChainID,
		FromSequence: old.Sequence(),
		ToSequence:   new.Sequence(),
		Schema:       new.Schema,
		Registry:     registryDiff,
	}, nil
}
