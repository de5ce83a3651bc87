package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/defistate/exchange-registry-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// options are shared by every subcommand.
type options struct {
	url     string
	timeout time.Duration
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "exchangectl",
		Short:         "Manage the token and trading pair registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.url, "url", "http://127.0.0.1:8546", "registry server URL (http or ws)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for a single call")

	root.AddCommand(
		addTokenCmd(opts),
		listTokensCmd(opts),
		addPairCmd(opts),
		listPairsCmd(opts),
		removePairCmd(opts),
		pairsForCmd(opts),
		watchCmd(opts),
	)
	return root
}

// call dials the server and runs fn with a per-call timeout.
func (o *options) call(cmd *cobra.Command, fn func(ctx context.Context, c *client.Caller) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	c, err := client.DialCaller(ctx, o.url)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", o.url, err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(args []string) ([]common.Address, error) {
	out := make([]common.Address, len(args))
	for i, arg := range args {
		addr, err := parseAddress(arg)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}
