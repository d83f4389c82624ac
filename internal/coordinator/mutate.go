package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

// Optimistic write path. Every mutation lands in the local store first,
// flagged Pending, so the UI reflects it immediately. The remote
// confirmation follows; on success the record flips to Synced, on failure
// it stays Pending and the gateway error is returned as-is. The local copy
// is never rolled back, the next authoritative pull settles it.

// CreateTask stores a new task locally and confirms it remotely.
func (c *Coordinator) CreateTask(ctx context.Context, task types.Task) (*types.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.LastModified = now

	if err := c.store.PutTask(ctx, &task, types.OriginLocal, types.SyncPending); err != nil {
		return nil, err
	}

	if err := c.gw.Create(ctx, task.WorkspaceID, types.TableTasks, task); err != nil {
		c.log.Warn().Err(err).Str("task", task.ID).Msg("remote create failed, task stays pending")
		return &task, err
	}

	if err := c.store.SetTaskSyncState(ctx, task.ID, types.SyncSynced); err != nil {
		return &task, fmt.Errorf("failed to mark task synced: %w", err)
	}
	return &task, nil
}

// UpdateTask applies mutate to the cached task and pushes the result. The
// task must belong to workspaceID.
func (c *Coordinator) UpdateTask(ctx context.Context, workspaceID, id string, mutate func(*types.Task)) (*types.Task, error) {
	task, err := c.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.WorkspaceID != workspaceID {
		return nil, store.ErrNotFound
	}

	mutate(task)
	task.ID = id
	task.WorkspaceID = workspaceID
	task.LastModified = time.Now().UTC()

	if err := c.store.PutTask(ctx, task, types.OriginLocal, types.SyncPending); err != nil {
		return nil, err
	}

	if err := c.gw.Update(ctx, workspaceID, types.TableTasks, task); err != nil {
		c.log.Warn().Err(err).Str("task", id).Msg("remote update failed, task stays pending")
		return task, err
	}

	if err := c.store.SetTaskSyncState(ctx, id, types.SyncSynced); err != nil {
		return task, fmt.Errorf("failed to mark task synced: %w", err)
	}
	return task, nil
}

// SetTaskStatus is the common status transition shortcut.
func (c *Coordinator) SetTaskStatus(ctx context.Context, workspaceID, id, status string) (*types.Task, error) {
	return c.UpdateTask(ctx, workspaceID, id, func(t *types.Task) {
		t.Status = status
	})
}

// AddRemark appends a remark to a task. Remarks ride inside the task
// record, so this is an ordinary task update.
func (c *Coordinator) AddRemark(ctx context.Context, workspaceID, taskID string, remark types.Remark) (*types.Task, error) {
	if remark.ID == "" {
		remark.ID = uuid.NewString()
	}
	if remark.CreatedAt.IsZero() {
		remark.CreatedAt = time.Now().UTC()
	}
	return c.UpdateTask(ctx, workspaceID, taskID, func(t *types.Task) {
		t.Remarks = append(t.Remarks, remark)
	})
}

// DeleteTask removes a task locally and remotely. The local delete is not
// restored on remote failure; the next pull re-creates the task if the
// server still has it.
func (c *Coordinator) DeleteTask(ctx context.Context, workspaceID, id string) error {
	if err := c.store.DeleteTask(ctx, workspaceID, id); err != nil {
		return err
	}
	if err := c.gw.Delete(ctx, workspaceID, types.TableTasks, id); err != nil {
		c.log.Warn().Err(err).Str("task", id).Msg("remote delete failed")
		return err
	}
	return nil
}

// MarkNotificationRead flips a notification's read flag locally, then
// confirms remotely with a read receipt.
func (c *Coordinator) MarkNotificationRead(ctx context.Context, workspaceID, id string) error {
	if err := c.store.SetNotificationRead(ctx, workspaceID, id, true); err != nil {
		return err
	}
	receipt := map[string]any{"id": id, "is_read": true}
	if err := c.gw.Update(ctx, workspaceID, types.TableNotifications, receipt); err != nil {
		c.log.Warn().Err(err).Str("notification", id).Msg("remote read receipt failed")
		return err
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification for the
// recipient, local first, then confirms each remotely. Remote failures
// are reported but never undo the local marks.
func (c *Coordinator) MarkAllNotificationsRead(ctx context.Context, workspaceID, recipientID string) (int, error) {
	ids, err := c.store.MarkAllNotificationsRead(ctx, workspaceID, recipientID)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for _, id := range ids {
		receipt := map[string]any{"id": id, "is_read": true}
		if err := c.gw.Update(ctx, workspaceID, types.TableNotifications, receipt); err != nil {
			c.log.Warn().Err(err).Str("notification", id).Msg("remote read receipt failed")
			lastErr = err
		}
	}
	return len(ids), lastErr
}

// Tasks reads the local task view. The cache answers even when the
// gateway is unreachable.
func (c *Coordinator) Tasks(ctx context.Context, workspaceID string, filter store.TaskFilter) ([]*types.Task, error) {
	return c.store.QueryTasks(ctx, workspaceID, filter)
}

// Task reads one task from the local view.
func (c *Coordinator) Task(ctx context.Context, id string) (*types.Task, error) {
	return c.store.GetTask(ctx, id)
}

// TaskSyncState reports a task's sync metadata for status displays.
func (c *Coordinator) TaskSyncState(ctx context.Context, id string) (types.Origin, types.SyncState, error) {
	return c.store.GetTaskMeta(ctx, id)
}

// Employees reads the local employee directory.
func (c *Coordinator) Employees(ctx context.Context, workspaceID string) ([]*types.Employee, error) {
	return c.store.QueryEmployees(ctx, workspaceID)
}

// Notifications reads the local notification feed.
func (c *Coordinator) Notifications(ctx context.Context, workspaceID string, filter store.NotificationFilter) ([]*types.Notification, error) {
	return c.store.QueryNotifications(ctx, workspaceID, filter)
}
