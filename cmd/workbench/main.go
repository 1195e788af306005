package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragworkbench/internal/config"
	"ragworkbench/internal/pkg/logger"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "workbench",
		Short:         "RAG workbench: document ingestion tracking and cited Q&A",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "TOML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", ".env file (overrides ENV_FILE)")

	root.AddCommand(
		newServeCmd(opts),
		newDevBackendCmd(opts),
		newUploadCmd(opts),
		newAskCmd(opts),
	)
	return root
}

// load reads configuration and builds the process logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return nil, nil, err
		}
	}
	if o.envFile != "" {
		if err := os.Setenv("ENV_FILE", o.envFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.App.LogFile, cfg.IsProduction()), nil
}
