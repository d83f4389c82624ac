package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/ui"
)

var inboxCmd = &cobra.Command{
	Use:     "inbox",
	GroupID: "tasks",
	Short:   "Show your notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			userID, err := e.Session.UserID()
			if err != nil {
				return err
			}

			notifs, err := e.Coordinator.Notifications(ctx, workspaceID, store.NotificationFilter{
				RecipientID: userID,
				UnreadOnly:  !all,
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			if len(notifs) == 0 {
				fmt.Println(ui.RenderMuted("Inbox empty."))
				return nil
			}

			for _, n := range notifs {
				marker := ui.RenderAccent("●")
				if n.IsRead {
					marker = ui.RenderMuted("○")
				}
				fmt.Printf("%s %s  [%s] %s\n", marker,
					n.CreatedAt.Local().Format("Jan 2 15:04"), n.Type, n.Title)
				if n.Message != "" {
					fmt.Printf("    %s\n", ui.RenderMuted(n.Message))
				}
			}
			return nil
		})
	},
}

var inboxReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark one notification read, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}

			if all {
				userID, err := e.Session.UserID()
				if err != nil {
					return err
				}
				n, err := e.Coordinator.MarkAllNotificationsRead(ctx, workspaceID, userID)
				if err != nil {
					fmt.Println(ui.RenderWarn(fmt.Sprintf(
						"Marked %d read locally; server confirmation pending: %v", n, err)))
					return nil
				}
				fmt.Println(ui.RenderPass(fmt.Sprintf("Marked %d notifications read", n)))
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("notification id required (or --all)")
			}
			if err := e.Coordinator.MarkNotificationRead(ctx, workspaceID, args[0]); err != nil {
				fmt.Println(ui.RenderWarn("Marked read locally; server confirmation pending: " + err.Error()))
				return nil
			}
			fmt.Println(ui.RenderPass("Marked read"))
			return nil
		})
	},
}

func init() {
	inboxCmd.Flags().Bool("all", false, "include read notifications")
	inboxCmd.Flags().Int("limit", 0, "max rows")
	inboxReadCmd.Flags().Bool("all", false, "mark everything read")

	inboxCmd.AddCommand(inboxReadCmd)
	rootCmd.AddCommand(inboxCmd)
}
