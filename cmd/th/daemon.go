package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/logging"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine in the foreground",
	Long: `Run the TaskHive sync engine until interrupted.

The daemon keeps the local cache live:
  1. Subscribes to the change feed for the active workspace
  2. Applies remote changes to the local database
  3. Raises device alerts for incoming notifications
  4. Follows login, logout, and workspace switches made by the CLI`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Daemon logs go to a rotated file so alerts survive the terminal.
		if cfg.Log.File == "" {
			cfg.Log.File = filepath.Join(cfg.DataDir, "taskhive.log")
			log, logDone = logging.New(cfg.Log)
		}

		ctx, cancel := signalContext()
		defer cancel()

		e, err := engine.New(ctx, cfg, nil, log)
		if err != nil {
			return err
		}
		defer e.Close()

		if e.Offline() {
			fmt.Println("warning: server unreachable, serving cached data only")
		}
		fmt.Printf("taskhive daemon running (data dir %s)\n", cfg.DataDir)

		err = e.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
