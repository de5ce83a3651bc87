package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/defistate/exchange-registry-go/replica"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// websocketURL maps an http(s) URL to its ws(s) equivalent; subscriptions need a WebSocket.
func websocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

// watch: follow the registry stream and print every state the replica sees.
func watchCmd(opts *options) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the registry stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logOut := io.Discard
			if verbose {
				logOut = os.Stderr
			}
			logger := slog.New(slog.NewJSONHandler(logOut, nil))

			p, err := replica.Dial(ctx, websocketURL(opts.url), logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			for {
				select {
				case state, ok := <-p.State():
					if !ok {
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "sequence=%d tokens=%d pairs=%d\n",
						state.Sequence, len(state.Registry.Tokens()), len(state.Registry.Pairs()))
				case err, ok := <-p.Err():
					if ok && err != nil {
						return err
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log stream activity to stderr")
	return cmd
}
