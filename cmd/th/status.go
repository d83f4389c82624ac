package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/types"
	"github.com/taskhive/taskhive/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show session and sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			sess, err := e.Session.Current()
			if err != nil {
				return err
			}

			fmt.Println(ui.RenderHeader("Session"))
			if sess.Anonymous() {
				fmt.Println("  not logged in")
			} else {
				fmt.Printf("  user:      %s\n", sess.Email)
				if sess.ActiveWorkspaceID == "" {
					fmt.Println("  workspace: none")
				} else {
					fmt.Printf("  workspace: %s\n", sess.ActiveWorkspaceID)
					if !sess.Approved {
						fmt.Println("  " + ui.RenderWarn("membership pending approval"))
					}
				}
			}

			if e.Offline() {
				fmt.Println("  " + ui.RenderWarn("server unreachable, offline mode"))
			}

			if sess.ActiveWorkspaceID == "" {
				return nil
			}

			fmt.Println()
			fmt.Println(ui.RenderHeader("Sync"))
			for _, table := range []types.Table{
				types.TableTasks, types.TableEmployees, types.TableNotifications,
			} {
				st := e.Coordinator.Status(sess.ActiveWorkspaceID, table)
				line := fmt.Sprintf("  %-14s %s", table, st.Status)
				if !st.LastSync.IsZero() {
					line += ui.RenderMuted("  last " + st.LastSync.Local().Format("15:04:05"))
				}
				if st.LastErr != nil {
					line += "  " + ui.RenderFail(st.LastErr.Error())
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
