// Package coordinator reconciles the local cache with the remote source of
// truth and republishes live views to subscribers.
//
// Per (workspace, table) it runs a small state machine:
//
//	Idle -> Syncing -> Idle     success
//	Idle -> Syncing -> Error    failure, non-fatal, cache left intact
//
// Remote snapshots are authoritative: SyncNow overwrites any local copy with
// the same id (last-pull-wins). Optimistic local mutations write through the
// store immediately and confirm remotely afterwards; a failed confirmation
// leaves the local copy standing until the next authoritative pull.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/router"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

// syncedTables are the tables kept live per workspace. Settings are pulled
// with snapshots but have no change feed.
var syncedTables = []types.Table{
	types.TableTasks,
	types.TableEmployees,
	types.TableNotifications,
}

// Status is the per-scope sync state machine position.
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ScopeStatus is the observable state of one (workspace, table) scope. It
// feeds the passive "last sync failed" indicator: background failures are
// silent beyond this.
type ScopeStatus struct {
	Status   Status
	LastSync time.Time
	LastErr  error
}

// EventHandler receives change events after the router has applied them.
// The notification dispatcher hooks in here.
type EventHandler func(ctx context.Context, ev gateway.ChangeEvent)

// Config holds coordinator settings.
type Config struct {
	// RemarkPollInterval is the cadence of the remark poller (default 3s).
	RemarkPollInterval time.Duration
}

// Coordinator owns the active workspace's subscriptions, the snapshot
// pulls, and the live views.
type Coordinator struct {
	store  *store.Store
	gw     gateway.Gateway
	router *router.Router
	log    zerolog.Logger
	cfg    Config

	// onEvent is invoked after routing, for notifications-table events.
	onEvent EventHandler

	mu     sync.Mutex
	states map[scopeKey]*ScopeStatus
	active *scope
}

type scopeKey struct {
	workspaceID string
	table       types.Table
}

// scope is one workspace's live subscription set. Deactivation cancels the
// context and waits for every pump to acknowledge before returning, so a
// dying old-scope write can never land after a switch completes.
type scope struct {
	workspaceID string
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	subs        []*gateway.Subscription
}

// New creates a Coordinator. handler may be nil.
func New(st *store.Store, gw gateway.Gateway, rt *router.Router, cfg Config, handler EventHandler, logger zerolog.Logger) *Coordinator {
	if cfg.RemarkPollInterval <= 0 {
		cfg.RemarkPollInterval = 3 * time.Second
	}
	return &Coordinator{
		store:   st,
		gw:      gw,
		router:  rt,
		log:     logger.With().Str("component", "coordinator").Logger(),
		cfg:     cfg,
		onEvent: handler,
		states:  make(map[scopeKey]*ScopeStatus),
	}
}

// Status returns the state machine position for one scope.
func (c *Coordinator) Status(workspaceID string, table types.Table) ScopeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.states[scopeKey{workspaceID, table}]; ok {
		return *st
	}

	// A fresh process has no in-memory state yet; the persisted sync
	// timestamp still tells when this scope last pulled successfully.
	st := ScopeStatus{Status: StatusIdle}
	if raw, err := c.store.GetSetting(context.Background(), workspaceID, lastSyncKey(table)); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			st.LastSync = t
		}
	}
	return st
}

func lastSyncKey(table types.Table) string {
	return "last_sync." + string(table)
}

func (c *Coordinator) setStatus(workspaceID string, table types.Table, status Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := scopeKey{workspaceID, table}
	st, ok := c.states[key]
	if !ok {
		st = &ScopeStatus{}
		c.states[key] = st
	}
	st.Status = status
	st.LastErr = err
	if status == StatusIdle && err == nil {
		st.LastSync = time.Now()
	}
}

// ActiveWorkspace returns the currently subscribed workspace, if any.
func (c *Coordinator) ActiveWorkspace() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.workspaceID, true
}

// Activate subscribes the change feed for every synced table in the
// workspace and starts the router pumps. Any previously active workspace
// is deactivated first, and its teardown is acknowledged before the new
// subscriptions open.
func (c *Coordinator) Activate(ctx context.Context, workspaceID string) error {
	c.Deactivate()

	scopeCtx, cancel := context.WithCancel(context.Background())
	sc := &scope{workspaceID: workspaceID, ctx: scopeCtx, cancel: cancel}

	for _, table := range syncedTables {
		sub, err := c.gw.Subscribe(ctx, workspaceID, table)
		if err != nil {
			// Partial activation would leak scope; roll back what opened.
			for _, opened := range sc.subs {
				opened.Close()
			}
			cancel()
			return fmt.Errorf("failed to subscribe %s/%s: %w", workspaceID, table, err)
		}
		sc.subs = append(sc.subs, sub)
	}

	for _, sub := range sc.subs {
		sc.wg.Add(1)
		go c.pump(sc, sub)
	}

	c.mu.Lock()
	c.active = sc
	c.mu.Unlock()

	c.log.Info().Str("workspace", workspaceID).Msg("workspace activated")
	return nil
}

// Deactivate cancels the active scope, closes its subscriptions, and
// blocks until every pump has drained. Safe to call when nothing is
// active.
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	sc := c.active
	c.active = nil
	c.mu.Unlock()

	if sc == nil {
		return
	}

	sc.cancel()
	for _, sub := range sc.subs {
		sub.Close()
	}
	sc.wg.Wait()

	c.log.Info().Str("workspace", sc.workspaceID).Msg("workspace deactivated")
}

// pump feeds one subscription's events through the router, preserving the
// gateway's per-id emission order. Events that are not for this scope's
// workspace are discarded - the subscription teardown on switch already
// prevents them, this is the backstop.
func (c *Coordinator) pump(sc *scope, sub *gateway.Subscription) {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.ctx.Done():
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.WorkspaceID != sc.workspaceID {
				c.log.Warn().
					Str("event_workspace", ev.WorkspaceID).
					Str("scope", sc.workspaceID).
					Msg("discarding out-of-scope change event")
				continue
			}

			if err := c.router.Route(sc.ctx, ev); err != nil {
				c.log.Error().Err(err).
					Str("table", string(ev.Table)).
					Str("entity", ev.EntityID).
					Msg("failed to route change event")
				continue
			}

			if c.onEvent != nil && ev.Table == types.TableNotifications {
				c.onEvent(sc.ctx, ev)
			}
		}
	}
}

// SyncNow pulls the authoritative snapshot of every synced table in the
// workspace. Each pulled record replaces any local copy with the same id.
// On failure the scope moves to Error, the cache stays intact, and the
// error is returned for the caller's passive indicator; nothing is
// retried until the next explicit trigger.
func (c *Coordinator) SyncNow(ctx context.Context, workspaceID string) error {
	var errs []error
	for _, table := range syncedTables {
		if err := c.syncTable(ctx, workspaceID, table); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) syncTable(ctx context.Context, workspaceID string, table types.Table) error {
	c.setStatus(workspaceID, table, StatusSyncing, nil)

	records, err := c.gw.FetchAll(ctx, workspaceID, table)
	if err != nil {
		c.setStatus(workspaceID, table, StatusError, err)
		c.log.Warn().Err(err).
			Str("workspace", workspaceID).
			Str("table", string(table)).
			Msg("snapshot pull failed, cache left intact")
		return fmt.Errorf("failed to sync %s: %w", table, err)
	}

	applied := 0
	for _, record := range records {
		ev := gateway.ChangeEvent{
			Action:      gateway.ActionInsert,
			Table:       table,
			WorkspaceID: workspaceID,
			Payload:     record,
		}
		if err := c.router.Route(ctx, ev); err != nil {
			c.log.Warn().Err(err).
				Str("table", string(table)).
				Str("id", decodeID(record)).
				Msg("skipping bad snapshot record")
			continue
		}
		applied++
	}

	c.setStatus(workspaceID, table, StatusIdle, nil)
	if err := c.store.PutSetting(ctx, workspaceID,
		lastSyncKey(table), time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist sync timestamp")
	}
	c.log.Debug().
		Str("workspace", workspaceID).
		Str("table", string(table)).
		Int("records", applied).
		Msg("snapshot applied")
	return nil
}

// decodeID pulls the id out of a raw record for logging and delete paths.
func decodeID(payload json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &probe)
	return probe.ID
}
