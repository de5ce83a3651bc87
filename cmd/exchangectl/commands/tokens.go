package commands

import (
	"context"
	"fmt"

	"github.com/defistate/exchange-registry-go/streams/jsonrpc/client"
	"github.com/spf13/cobra"
)

// add-token <addr>: approve a token.
func addTokenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-token <addr>",
		Short: "Approve a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				if err := c.AddToken(ctx, token); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", token.Hex())
				return nil
			})
		},
	}
}

// list-tokens: print the approved tokens in approval order.
func listTokensCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-tokens",
		Short: "Print the approved tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Caller) error {
				tokens, err := c.ListTokens(ctx)
				if err != nil {
					return err
				}
				for _, token := range tokens {
					fmt.Fprintln(cmd.OutOrStdout(), token.Hex())
				}
				return nil
			})
		},
	}
}
