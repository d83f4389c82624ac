package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Pull a fresh snapshot of the active workspace",
	Long: `Pull the authoritative snapshot of every table in the active
workspace. Remote records overwrite local copies with the same id; local
records the server does not know about are left alone until their own
confirmation goes through.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			if err := e.Coordinator.SyncNow(ctx, workspaceID); err != nil {
				return fmt.Errorf("sync failed, cached data unchanged: %w", err)
			}
			fmt.Println(ui.RenderPass("Synced " + workspaceID))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
