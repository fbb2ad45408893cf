package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/logger"
)

func main() {
	if err := executeCLI(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func executeCLI(args []string) error {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

type rootOptions struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	serveCmd := newServeCommand(opts)
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "reply to Discourse topics when an answer is accepted",
		SilenceUsage:  true,
		SilenceErrors: true,
		// serve is the default command
		RunE: serveCmd.RunE,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file read before the environment")

	rootCmd.AddCommand(serveCmd, newCannedCommand(opts))
	return rootCmd
}

// setup loads configuration and builds the logger shared by every command.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
