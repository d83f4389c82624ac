package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	log     zerolog.Logger
	logDone io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "th",
	Short: "TaskHive offline-first task client",
	Long: `th is the TaskHive client engine and CLI.

All reads come from a local SQLite cache, so every command works offline.
Writes apply locally first and confirm against the server when it is
reachable; unconfirmed writes stay flagged pending until the next sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("server"); v != "" {
			cfg.ServerURL = v
		}
		if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
			cfg.DataDir = v
		}
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			cfg.Log.Level = v
		}
		log, logDone = logging.New(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logDone != nil {
			logDone.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "backend websocket URL")
	rootCmd.PersistentFlags().String("data-dir", "", "local data directory")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "account", Title: "Account Commands:"},
	)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withEngine runs fn against a constructed engine with the persisted
// session loaded. One-shot commands use this; the daemon drives the
// engine loop itself.
func withEngine(fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := engine.New(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Session.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
}

// requireWorkspace resolves the session's active workspace or explains
// how to get one.
func requireWorkspace(e *engine.Engine) (string, error) {
	sess, err := e.Session.Current()
	if err != nil {
		return "", err
	}
	if sess.Anonymous() {
		return "", fmt.Errorf("not logged in, run 'th login' first")
	}
	if sess.ActiveWorkspaceID == "" {
		return "", fmt.Errorf("no active workspace, run 'th workspace switch' or 'th workspace join'")
	}
	if !sess.Approved {
		return "", fmt.Errorf("membership in workspace %s is awaiting approval", sess.ActiveWorkspaceID)
	}
	return sess.ActiveWorkspaceID, nil
}
