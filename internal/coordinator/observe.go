package coordinator

import (
	"context"

	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

// Live views. Each Observe method returns a channel that carries a fresh
// snapshot whenever the backing table changes, plus one snapshot up front.
// Snapshots are latest-wins: if the consumer is slow, intermediate
// snapshots are replaced, never queued. The channel closes when ctx ends.

// ObserveTasks streams task list snapshots for the workspace.
func (c *Coordinator) ObserveTasks(ctx context.Context, workspaceID string, filter store.TaskFilter) <-chan []*types.Task {
	out := make(chan []*types.Task, 1)
	load := func(ctx context.Context) ([]*types.Task, error) {
		return c.store.QueryTasks(ctx, workspaceID, filter)
	}
	go observe(ctx, c, workspaceID, types.TableTasks, load, out)
	return out
}

// ObserveEmployees streams employee directory snapshots.
func (c *Coordinator) ObserveEmployees(ctx context.Context, workspaceID string) <-chan []*types.Employee {
	out := make(chan []*types.Employee, 1)
	load := func(ctx context.Context) ([]*types.Employee, error) {
		return c.store.QueryEmployees(ctx, workspaceID)
	}
	go observe(ctx, c, workspaceID, types.TableEmployees, load, out)
	return out
}

// ObserveNotifications streams notification feed snapshots.
func (c *Coordinator) ObserveNotifications(ctx context.Context, workspaceID string, filter store.NotificationFilter) <-chan []*types.Notification {
	out := make(chan []*types.Notification, 1)
	load := func(ctx context.Context) ([]*types.Notification, error) {
		return c.store.QueryNotifications(ctx, workspaceID, filter)
	}
	go observe(ctx, c, workspaceID, types.TableNotifications, load, out)
	return out
}

// observe pumps snapshots of one table into out until ctx is done. The
// buffered out channel plus the drain-before-send below give latest-wins
// delivery without ever blocking on the consumer.
func observe[T any](ctx context.Context, c *Coordinator, workspaceID string, table types.Table, load func(context.Context) ([]T, error), out chan []T) {
	defer close(out)

	changes, stop := c.store.Watch(workspaceID, table)
	defer stop()

	send := func() {
		snapshot, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error().Err(err).
					Str("workspace", workspaceID).
					Str("table", string(table)).
					Msg("failed to load snapshot for observer")
			}
			return
		}
		select {
		case out <- snapshot:
		default:
			select {
			case <-out:
			default:
			}
			out <- snapshot
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			send()
		}
	}
}
