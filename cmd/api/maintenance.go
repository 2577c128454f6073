package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"moscowboard/api/internal/export"
	"moscowboard/api/internal/store"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down>",
		Short: "Apply or revert database migrations",
		Long: `Apply pending migrations (up) or revert every applied migration (down).

Examples:
  moscow-api migrate up
  DATABASE_DRIVER=postgres DATABASE_URL=postgres://... moscow-api migrate down`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			switch args[0] {
			case "up":
				err = store.ApplyMigrations(cmd.Context(), db, cfg.DatabaseDriver)
			case "down":
				err = store.RevertMigrations(cmd.Context(), db, cfg.DatabaseDriver)
			default:
				return fmt.Errorf("unknown direction %q (want up or down)", args[0])
			}
			if err != nil {
				return err
			}
			logger.WithField("direction", args[0]).Info("migrations complete")
			return nil
		},
	}
}

func newReindexCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Meilisearch indexes from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.MeiliURL == "" {
				return errors.New("MEILI_URL is not set")
			}
			rt, err := openRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			cards, changes, err := rt.search.ReindexAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s functionalities and %s changes\n",
				humanize.Comma(int64(cards)), humanize.Comma(int64(changes)))
			return nil
		},
	}
}

func newArchiveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Upload a JSON snapshot of the board to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.archiver == nil {
				return export.ErrArchiveUnavailable
			}

			info, err := rt.archiver.Archive(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "archived %s to %s/%s\n", humanize.Bytes(uint64(info.Size)), info.Bucket, info.Key)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
