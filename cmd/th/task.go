package main

import (
	"context"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
	"github.com/taskhive/taskhive/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Create, list, and update tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task in the active workspace.

The task is written to the local cache immediately and confirmed against
the server. When the server is unreachable, the task stays flagged pending
and confirms on the next sync.

Due dates accept natural language, e.g. --due "tomorrow 5pm" or
--due "next friday".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		assignee, _ := cmd.Flags().GetString("assignee")
		priority, _ := cmd.Flags().GetInt("priority")
		due, _ := cmd.Flags().GetString("due")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}

			task := types.Task{
				WorkspaceID: workspaceID,
				Title:       args[0],
				Description: desc,
				Status:      types.StatusOpen,
				Priority:    priority,
				AssigneeID:  assignee,
			}

			if due != "" {
				dueAt, err := parseDue(due)
				if err != nil {
					return err
				}
				task.DueAt = &dueAt
			}

			created, err := e.Coordinator.CreateTask(ctx, task)
			if created == nil {
				return err
			}
			if err != nil {
				fmt.Println(ui.RenderWarn("Saved locally; server confirmation pending: " + err.Error()))
			} else {
				fmt.Println(ui.RenderPass("Task created"))
			}
			fmt.Printf("  %s  %s\n", created.ID, created.Title)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the active workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		assignee, _ := cmd.Flags().GetString("assignee")
		limit, _ := cmd.Flags().GetInt("limit")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}

			tasks, err := e.Coordinator.Tasks(ctx, workspaceID, store.TaskFilter{
				Status:     status,
				AssigneeID: assignee,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println(ui.RenderMuted("No tasks."))
				return nil
			}

			for _, t := range tasks {
				printTaskRow(ctx, e, t)
			}
			return nil
		})
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task with its remarks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if _, err := requireWorkspace(e); err != nil {
				return err
			}

			t, err := e.Coordinator.Task(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println(ui.RenderHeader(t.Title))
			fmt.Printf("  id:       %s\n", t.ID)
			fmt.Printf("  status:   %s\n", t.Status)
			fmt.Printf("  priority: P%d\n", t.Priority)
			if t.AssigneeID != "" {
				fmt.Printf("  assignee: %s\n", t.AssigneeID)
			}
			if t.DueAt != nil {
				fmt.Printf("  due:      %s\n", t.DueAt.Local().Format("2006-01-02 15:04"))
			}
			if t.Description != "" {
				fmt.Printf("\n%s\n", t.Description)
			}
			if len(t.Remarks) > 0 {
				fmt.Println()
				fmt.Println(ui.RenderHeader("Remarks"))
				for _, r := range t.Remarks {
					fmt.Printf("  [%s] %s: %s\n",
						r.CreatedAt.Local().Format("Jan 2 15:04"), r.AuthorID, r.Body)
				}
			}
			return nil
		})
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a task's status (open, in_progress, done, archived)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			return reportWrite(func() (*types.Task, error) {
				return e.Coordinator.SetTaskStatus(ctx, workspaceID, args[0], args[1])
			})
		})
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			return reportWrite(func() (*types.Task, error) {
				return e.Coordinator.SetTaskStatus(ctx, workspaceID, args[0], types.StatusDone)
			})
		})
	},
}

var taskRemarkCmd = &cobra.Command{
	Use:   "remark <id> <text>",
	Short: "Add a remark to a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			userID, err := e.Session.UserID()
			if err != nil {
				return err
			}
			return reportWrite(func() (*types.Task, error) {
				return e.Coordinator.AddRemark(ctx, workspaceID, args[0], types.Remark{
					AuthorID: userID,
					Body:     args[1],
				})
			})
		})
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}
			if err := e.Coordinator.DeleteTask(ctx, workspaceID, args[0]); err != nil {
				fmt.Println(ui.RenderWarn("Deleted locally; server confirmation pending: " + err.Error()))
				return nil
			}
			fmt.Println(ui.RenderPass("Task deleted"))
			return nil
		})
	},
}

var taskWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a task's remarks live",
	Long: `Follow a task's remark thread until interrupted.

Remarks ride inside the task record and have no push channel, so the
engine polls the record on a short interval while the watch runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			workspaceID, err := requireWorkspace(e)
			if err != nil {
				return err
			}

			t, err := e.Coordinator.Task(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(ui.RenderHeader(t.Title))
			for _, r := range t.Remarks {
				fmt.Printf("  [%s] %s: %s\n",
					r.CreatedAt.Local().Format("15:04"), r.AuthorID, r.Body)
			}
			fmt.Println(ui.RenderMuted("watching, ctrl-c to stop"))

			for r := range e.Coordinator.WatchRemarks(ctx, workspaceID, args[0]) {
				fmt.Printf("  [%s] %s: %s\n",
					r.CreatedAt.Local().Format("15:04"), r.AuthorID, r.Body)
			}
			return nil
		})
	},
}

// reportWrite prints the optimistic-write outcome: a remote failure is a
// warning, not a command failure, because the local write already landed.
func reportWrite(write func() (*types.Task, error)) error {
	task, err := write()
	if task == nil {
		return err
	}
	if err != nil {
		fmt.Println(ui.RenderWarn("Saved locally; server confirmation pending: " + err.Error()))
	} else {
		fmt.Println(ui.RenderPass("Updated"))
	}
	fmt.Printf("  %s  %s [%s]\n", task.ID, task.Title, task.Status)
	return nil
}

func printTaskRow(ctx context.Context, e *engine.Engine, t *types.Task) {
	badge := ""
	if _, state, err := e.Coordinator.TaskSyncState(ctx, t.ID); err == nil {
		badge = ui.SyncBadge(string(state))
	}
	due := ""
	if t.DueAt != nil {
		due = " due " + t.DueAt.Local().Format("Jan 2")
	}
	fmt.Printf("%s P%d %-12s %s  %s%s\n", badge, t.Priority, t.Status, t.ID, t.Title, ui.RenderMuted(due))
}

// parseDue turns natural language like "tomorrow 5pm" into a time.
func parseDue(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time, nil
}

func init() {
	taskAddCmd.Flags().String("description", "", "task description")
	taskAddCmd.Flags().String("assignee", "", "assignee employee id")
	taskAddCmd.Flags().Int("priority", 2, "priority 0 (highest) to 4")
	taskAddCmd.Flags().String("due", "", "due date, natural language accepted")

	taskListCmd.Flags().String("status", "", "filter by status")
	taskListCmd.Flags().String("assignee", "", "filter by assignee")
	taskListCmd.Flags().Int("limit", 0, "max rows")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskStatusCmd,
		taskDoneCmd, taskRemarkCmd, taskDeleteCmd, taskWatchCmd)
	rootCmd.AddCommand(taskCmd)
}
