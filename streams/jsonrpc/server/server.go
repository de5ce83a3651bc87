package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Config holds the configuration for the server.
type Config struct {
	ListenAddr string
	ChainID    uint64
	System     *exchange.System
	Streamer   *Streamer
	Logger     Logger
	Registry   prometheus.Registerer
	Gatherer   prometheus.Gatherer // Served on /metrics when set.
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: ListenAddr is required")
	}
	if c.System == nil {
		return errors.New("config: System is required")
	}
	if c.Streamer == nil {
		return errors.New("config: Streamer is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Server serves the registry API over HTTP and WebSocket on a single listener.
type Server struct {
	listenAddr string
	rpcServer  *rpc.Server
	api        *ExchangeAPI
	handler    http.Handler
	streamer   *Streamer
	logger     Logger
}

// New creates a server and registers the registry API.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	api := &ExchangeAPI{
		chainID:  cfg.ChainID,
		system:   cfg.System,
		streamer: cfg.Streamer,
		metrics:  newRPCMetrics(cfg.Registry),
		logger:   cfg.Logger,
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(jsonrpc.RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %w", err)
	}

	wsHandler := rpcServer.WebsocketHandler([]string{"*"})
	mux := http.NewServeMux()
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			wsHandler.ServeHTTP(w, r)
			return
		}
		rpcServer.ServeHTTP(w, r)
	}))

	return &Server{
		listenAddr: cfg.ListenAddr,
		rpcServer:  rpcServer,
		api:        api,
		handler:    mux,
		streamer:   cfg.Streamer,
		logger:     cfg.Logger,
	}, nil
}

// Handler returns the HTTP handler serving JSON-RPC, WebSocket and metrics.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RPC returns the underlying RPC server, for in-process clients.
func (s *Server) RPC() *rpc.Server {
	return s.rpcServer
}

// Run starts the streamer and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is like Run but accepts connections on listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{Handler: s.handler}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	go s.streamer.Run(streamCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("registry server listening", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down registry server")
	s.rpcServer.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
