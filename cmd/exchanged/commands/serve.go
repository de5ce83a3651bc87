package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/exchange-registry-go/config"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/store/postgres"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/server"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// serve: run the registry server until interrupted.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over JSON-RPC and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, envFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stateOps, err := stateops.NewStateOps(logger.With("component", "stateops"), registry)
	if err != nil {
		return fmt.Errorf("create state ops: %w", err)
	}
	streamer, err := server.NewStreamer(server.StreamerConfig{
		ChainID:    cfg.ChainID,
		BufferSize: cfg.StreamBufferSize,
		Differ:     stateOps.StateDiffer,
		Logger:     logger.With("component", "streamer"),
		Registry:   registry,
	})
	if err != nil {
		return fmt.Errorf("create streamer: %w", err)
	}

	opts := []exchange.Option{
		exchange.WithCompactionThreshold(cfg.CompactionThreshold),
		exchange.WithListener(streamer.Notify),
		exchange.WithMetrics(registry),
	}

	var system *exchange.System
	if cfg.Postgres != nil {
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN(),
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
			Logger:         logger.With("component", "postgres"),
		})
		if err != nil {
			return err
		}
		defer store.Close()

		view, err := store.Load(ctx)
		if err != nil {
			return err
		}
		system, err = exchange.NewSystemFromView(view, append(opts, exchange.WithJournal(store))...)
		if err != nil {
			return fmt.Errorf("restore registry: %w", err)
		}
	} else {
		logger.Warn("no postgres configured, registry is kept in memory only")
		system = exchange.NewSystem(opts...)
	}
	streamer.Notify(system.View())

	if err := seed(system, cfg.SeedTokens(), cfg.SeedPairs(), logger); err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		ChainID:    cfg.ChainID,
		System:     system,
		Streamer:   streamer,
		Logger:     logger.With("component", "jsonrpc-server"),
		Registry:   registry,
		Gatherer:   registry,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// seed approves tokens and registers pairs, skipping the ones already present.
func seed(system *exchange.System, tokens []common.Address, pairs []exchange.Pair, logger *slog.Logger) error {
	added := 0
	for _, token := range tokens {
		err := system.AddToken(token)
		switch {
		case err == nil:
			added++
		case errors.Is(err, exchange.ErrTokenAlreadyApproved):
		default:
			return err
		}
	}
	for _, pair := range pairs {
		err := system.AddPair(pair.TokenA, pair.TokenB)
		switch {
		case err == nil:
			added++
		case errors.Is(err, exchange.ErrPairExists):
		default:
			return err
		}
	}
	logger.Info("registry seeded", "added", added, "sequence", system.Sequence())
	return nil
}
