package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/ui"
)

var teamCmd = &cobra.Command{
	Use:     "team",
	GroupID: "tasks",
	Short:   "List the members of the active workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}

			members, err := e.Coordinator.Employees(ctx, workspaceID)
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Println(ui.RenderMuted("No cached members yet, run 'th sync'."))
				return nil
			}

			for _, m := range members {
				fmt.Printf("%-24s %-28s %s\n", m.ID, m.Name, ui.RenderMuted(m.Role))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(teamCmd)
}
