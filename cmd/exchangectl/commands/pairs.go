package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/client"
	"github.com/spf13/cobra"
)

func printPairs(out io.Writer, pairs []exchange.Pair) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN A\tTOKEN B")
	for _, pair := range pairs {
		fmt.Fprintf(w, "%s\t%s\n", pair.TokenA.Hex(), pair.TokenB.Hex())
	}
	return w.Flush()
}

// add-pair <a> <b>: register a trading pair between two approved tokens.
func addPairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-pair <a> <b>",
		Short: "Register a trading pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := parseAddresses(args)
			if err != nil {
				return err
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				if err := c.AddPair(ctx, tokens[0], tokens[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", exchange.NewPair(tokens[0], tokens[1]))
				return nil
			})
		},
	}
}

// list-pairs: print the active pairs in insertion order.
func listPairsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-pairs",
		Short: "Print the active pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				pairs, err := c.ListPairs(ctx)
				if err != nil {
					return err
				}
				return printPairs(cmd.OutOrStdout(), pairs)
			})
		},
	}
}

// remove-pair <a> <b>: remove a trading pair, in either orientation.
func removePairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-pair <a> <b>",
		Short: "Remove a trading pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := parseAddresses(args)
			if err != nil {
				return err
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				if err := c.RemovePair(ctx, tokens[0], tokens[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", exchange.NewPair(tokens[0], tokens[1]))
				return nil
			})
		},
	}
}

// pairs-for <addr>: print the pairs that trade a token.
func pairsForCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs-for <addr>",
		Short: "Print the active pairs that trade a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				pairs, err := c.PairsForToken(ctx, token)
				if err != nil {
					return err
				}
				return printPairs(cmd.OutOrStdout(), pairs)
			})
		},
	}
}
