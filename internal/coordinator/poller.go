package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/types"
)

// WatchRemarks polls one task's remote record and streams remarks as they
// appear. Remarks travel inside the task record rather than on the change
// feed, so a short poll is the only way to surface a discussion live.
// Each fetched record is also routed into the local cache. The channel
// closes when ctx ends; fetch failures are logged and retried on the next
// tick.
func (c *Coordinator) WatchRemarks(ctx context.Context, workspaceID, taskID string) <-chan types.Remark {
	out := make(chan types.Remark, 16)

	go func() {
		defer close(out)

		seen := make(map[string]bool)

		// Seed from the local cache so only genuinely new remarks stream.
		if task, err := c.store.GetTask(ctx, taskID); err == nil {
			for _, r := range task.Remarks {
				seen[r.ID] = true
			}
		}

		ticker := time.NewTicker(c.cfg.RemarkPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			payload, err := c.gw.Fetch(ctx, workspaceID, types.TableTasks, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Debug().Err(err).Str("task", taskID).Msg("remark poll failed")
				continue
			}

			var task types.Task
			if err := json.Unmarshal(payload, &task); err != nil {
				c.log.Warn().Err(err).Str("task", taskID).Msg("remark poll returned bad record")
				continue
			}

			ev := gateway.ChangeEvent{
				Action:      gateway.ActionUpdate,
				Table:       types.TableTasks,
				WorkspaceID: workspaceID,
				EntityID:    taskID,
				Payload:     payload,
			}
			if err := c.router.Route(ctx, ev); err != nil {
				c.log.Warn().Err(err).Str("task", taskID).Msg("failed to cache polled task")
			}

			for _, r := range task.Remarks {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
