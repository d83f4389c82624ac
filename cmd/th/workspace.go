package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/ui"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	GroupID: "account",
	Short:   "Manage workspace memberships",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your workspace memberships",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			sess, err := e.Session.Current()
			if err != nil {
				return err
			}

			memberships, err := e.Session.Memberships(ctx)
			if err != nil {
				return err
			}
			if len(memberships) == 0 {
				fmt.Println(ui.RenderMuted("No memberships. Run 'th workspace join <id>'."))
				return nil
			}

			for _, m := range memberships {
				marker := "  "
				if m.WorkspaceID == sess.ActiveWorkspaceID {
					marker = ui.RenderAccent("* ")
				}
				state := ui.RenderPass(string(m.Status))
				if !m.Approved() {
					state = ui.RenderWarn(string(m.Status))
				}
				fmt.Printf("%s%-24s %-10s %s\n", marker, m.WorkspaceID, m.Role, state)
			}
			return nil
		})
	},
}

var workspaceSwitchCmd = &cobra.Command{
	Use:   "switch <workspace-id>",
	Short: "Switch the active workspace",
	Long: `Switch the active workspace.

Every cached view and the daemon's change feed follow the switch: the old
workspace's subscriptions close fully before the new one activates, so
data from the two never mixes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			target := args[0]

			memberships, err := e.Session.Memberships(ctx)
			if err != nil {
				return err
			}

			approved := false
			found := false
			for _, m := range memberships {
				if m.WorkspaceID == target {
					found = true
					approved = m.Approved()
					break
				}
			}
			if !found {
				return fmt.Errorf("no membership in workspace %s, run 'th workspace join %s' first", target, target)
			}

			if err := e.Session.SwitchWorkspace(ctx, target, approved); err != nil {
				return err
			}

			if !approved {
				fmt.Println(ui.RenderWarn("Switched to " + target + " (membership still pending approval)"))
				return nil
			}

			// Pull the new workspace immediately so the next list is warm.
			if err := e.Coordinator.SyncNow(ctx, target); err != nil {
				fmt.Println(ui.RenderWarn("Switched; initial sync failed: " + err.Error()))
				return nil
			}
			fmt.Println(ui.RenderPass("Switched to " + target))
			return nil
		})
	},
}

var workspaceJoinCmd = &cobra.Command{
	Use:   "join <workspace-id>",
	Short: "Request to join a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if err := e.Session.RequestJoin(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.RenderPass("Join requested for " + args[0] + ", awaiting approval."))
			return nil
		})
	},
}

var workspaceApproveCmd = &cobra.Command{
	Use:   "approve <user-id>",
	Short: "Approve a pending member (admins only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			ws, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			if err := e.Session.ApproveMember(ctx, args[0], ws); err != nil {
				return err
			}
			fmt.Println(ui.RenderPass("Approved " + args[0] + " in " + ws))
			return nil
		})
	},
}

var workspaceLeaveCmd = &cobra.Command{
	Use:   "leave <workspace-id>",
	Short: "Leave a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if err := e.Session.LeaveWorkspace(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.RenderPass("Left workspace " + args[0]))
			return nil
		})
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd, workspaceSwitchCmd,
		workspaceJoinCmd, workspaceApproveCmd, workspaceLeaveCmd)
	rootCmd.AddCommand(workspaceCmd)
}
