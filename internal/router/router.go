// Package router maps raw change-feed events onto the local store.
//
// Routing is idempotent by id: every insert/update is a whole-record upsert,
// so replaying an event already reflected in the store is a no-op in effect.
// Per-id ordering is preserved by construction - Run consumes one
// subscription's events sequentially and never reorders or drops them.
// Cross-id and cross-table ordering is unconstrained.
//
// The router never decides workspace applicability: it only sees events for
// subscriptions the coordinator holds open. Events for unknown tables are
// logged and skipped, never fatal.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

// Router applies normalized change events to the local store.
type Router struct {
	store *store.Store
	log   zerolog.Logger
}

// New creates a Router writing into the given store.
func New(st *store.Store, logger zerolog.Logger) *Router {
	return &Router{
		store: st,
		log:   logger.With().Str("component", "router").Logger(),
	}
}

// Run consumes events sequentially until the context is cancelled or the
// channel closes. Store failures are logged and the stream continues; the
// next snapshot pull reconciles anything missed.
func (r *Router) Run(ctx context.Context, events <-chan gateway.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.Route(ctx, ev); err != nil {
				r.log.Error().Err(err).
					Str("table", string(ev.Table)).
					Str("entity", ev.EntityID).
					Msg("failed to apply change event")
			}
		}
	}
}

// Route applies a single event to the store.
func (r *Router) Route(ctx context.Context, ev gateway.ChangeEvent) error {
	switch ev.Table {
	case types.TableTasks:
		return r.routeTask(ctx, ev)
	case types.TableEmployees:
		return r.routeEmployee(ctx, ev)
	case types.TableNotifications:
		return r.routeNotification(ctx, ev)
	default:
		r.log.Debug().Str("table", string(ev.Table)).Msg("skipping event for unrouted table")
		return nil
	}
}

func (r *Router) routeTask(ctx context.Context, ev gateway.ChangeEvent) error {
	switch ev.Action {
	case gateway.ActionInsert, gateway.ActionUpdate:
		var t types.Task
		if err := json.Unmarshal(ev.Payload, &t); err != nil {
			return fmt.Errorf("failed to decode task payload: %w", err)
		}
		return r.store.PutTask(ctx, &t, types.OriginRemote, types.SyncSynced)

	case gateway.ActionDelete:
		return r.store.DeleteTask(ctx, ev.WorkspaceID, ev.EntityID)

	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
}

func (r *Router) routeEmployee(ctx context.Context, ev gateway.ChangeEvent) error {
	switch ev.Action {
	case gateway.ActionInsert, gateway.ActionUpdate:
		var e types.Employee
		if err := json.Unmarshal(ev.Payload, &e); err != nil {
			return fmt.Errorf("failed to decode employee payload: %w", err)
		}
		return r.store.PutEmployee(ctx, &e, types.OriginRemote, types.SyncSynced)

	case gateway.ActionDelete:
		return r.store.DeleteEmployee(ctx, ev.WorkspaceID, ev.EntityID)

	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
}

func (r *Router) routeNotification(ctx context.Context, ev gateway.ChangeEvent) error {
	switch ev.Action {
	case gateway.ActionInsert:
		var n types.Notification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			return fmt.Errorf("failed to decode notification payload: %w", err)
		}
		return r.store.PutNotification(ctx, &n, types.OriginRemote, types.SyncSynced)

	case gateway.ActionUpdate:
		// Notifications are write-once from the server's perspective;
		// the read flag only ever flips locally.
		r.log.Debug().Str("entity", ev.EntityID).Msg("ignoring remote notification update")
		return nil

	case gateway.ActionDelete:
		return r.store.DeleteNotification(ctx, ev.WorkspaceID, ev.EntityID)

	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
}
