package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moscowboard/api/internal/config"
	"moscowboard/api/internal/logging"
)

// configLoader reads configuration once flags are parsed.
type configLoader func() (config.Config, *logrus.Logger, error)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "moscow-api",
		Short: "Realtime MoSCoW prioritization board API",
		Long: `Serves the shared MoSCoW board: anonymous sessions, functionality cards,
the change log, the live feed, search and exports.

Configuration comes from the environment (.env.local and .env are merged
first) and, optionally, a yaml/json/toml file passed with --config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (yaml, json or toml)")

	load := func() (config.Config, *logrus.Logger, error) {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
	}

	serve := newServeCmd(load)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newMigrateCmd(load),
		newReindexCmd(load),
		newArchiveCmd(load),
		newWatchCmd(),
	)
	return root
}
