package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	logger     *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "exchanged",
		Short:         "Token and trading pair registry server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with EXCHANGE_* overrides")

	root.AddCommand(serveCmd())
	err := root.Execute()
	if err != nil {
		if logger == nil {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		}
		logger.Error("exchanged failed", "error", err)
	}
	return err
}
