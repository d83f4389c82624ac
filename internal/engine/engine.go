// Package engine assembles the sync stack: local store, remote gateway,
// change router, sync coordinator, session manager, and notification
// dispatcher. It owns startup order, the session-driven scope lifecycle,
// and shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/coordinator"
	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/router"
	"github.com/taskhive/taskhive/internal/session"
	"github.com/taskhive/taskhive/internal/store"
)

// Engine is the assembled offline-first sync engine.
type Engine struct {
	cfg config.Config
	log zerolog.Logger

	Store       *store.Store
	Gateway     gateway.Gateway
	Router      *router.Router
	Coordinator *coordinator.Coordinator
	Session     *session.Manager
	Dispatcher  *notify.Dispatcher

	client *gateway.Client // nil when running offline
}

// New builds the engine. A failed gateway dial does not fail construction:
// the engine comes up offline, cached data stays readable, writes queue as
// pending, and only a restart re-attempts the connection.
func New(ctx context.Context, cfg config.Config, alerter notify.Alerter, logger zerolog.Logger) (*Engine, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	var gw gateway.Gateway
	var client *gateway.Client
	var auth session.AuthProvider

	client, err = gateway.Dial(ctx, gateway.Config{
		URL:              cfg.ServerURL,
		ReconnectBackoff: cfg.ReconnectBackoff,
		EventBuffer:      cfg.EventBuffer,
		Token:            cfg.AuthToken,
		Logger:           logger,
	})
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.ServerURL).Msg("gateway unreachable, starting offline")
		gw = gateway.Offline{}
		auth = gateway.Offline{}
	} else {
		gw = client
		auth = client
	}

	sess := session.NewManager(cfg.SessionPath(), auth, logger)

	rules := notify.Rules(nil)
	if cfg.RulesFile != "" {
		rules, err = notify.LoadRules(cfg.RulesFile)
		if err != nil {
			if client != nil {
				client.Close()
			}
			st.Close()
			return nil, err
		}
	}

	if alerter == nil {
		alerter = notify.LogAlerter{Log: logger}
	}
	dispatcher := notify.NewDispatcher(st, alerter, notify.Config{
		Rules: rules,
		Recipient: func() string {
			id, err := sess.UserID()
			if err != nil {
				return ""
			}
			return id
		},
	}, logger)

	rt := router.New(st, logger)
	coord := coordinator.New(st, gw, rt, coordinator.Config{
		RemarkPollInterval: cfg.RemarkPollInterval,
	}, dispatcher.OnEvent, logger)

	return &Engine{
		cfg:         cfg,
		log:         logger.With().Str("component", "engine").Logger(),
		Store:       st,
		Gateway:     gw,
		Router:      rt,
		Coordinator: coord,
		Session:     sess,
		Dispatcher:  dispatcher,
		client:      client,
	}, nil
}

// Offline reports whether the engine started without a gateway connection.
func (e *Engine) Offline() bool { return e.client == nil }

// Run drives the engine until ctx is cancelled. It loads the session,
// watches the session file for cross-process changes, and reacts to
// session transitions by moving the coordinator's scope.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Session.Load(ctx); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := e.Session.WatchFile(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session watch failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		e.sessionLoop(ctx)
		return nil
	})

	// Cold start: the loaded session may already name an active workspace.
	if sess, err := e.Session.Current(); err == nil {
		e.applySession(ctx, sess)
	}

	err := g.Wait()
	e.Coordinator.Deactivate()
	return err
}

// sessionLoop reacts to session transitions for the life of the engine.
func (e *Engine) sessionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-e.Session.Events():
			switch ev.Kind {
			case session.EventLogin, session.EventSwitch:
				e.applySession(ctx, ev.Session)

			case session.EventLogout:
				e.Coordinator.Deactivate()
				if err := e.Store.WipeUserData(ctx); err != nil {
					e.log.Error().Err(err).Msg("failed to wipe local data on logout")
				}

			case session.EventLoaded:
				// Cold start handled in Run; nothing to do here.
			}
		}
	}
}

// applySession points the coordinator at the session's active workspace
// and pulls a fresh snapshot. Sessions without an approved active
// workspace deactivate instead.
func (e *Engine) applySession(ctx context.Context, sess session.Session) {
	if sess.Anonymous() || sess.ActiveWorkspaceID == "" || !sess.Approved {
		e.Coordinator.Deactivate()
		return
	}

	if err := e.Coordinator.Activate(ctx, sess.ActiveWorkspaceID); err != nil {
		e.log.Warn().Err(err).
			Str("workspace", sess.ActiveWorkspaceID).
			Msg("failed to open change feed, cached data only")
	}
	if err := e.Coordinator.SyncNow(ctx, sess.ActiveWorkspaceID); err != nil {
		e.log.Warn().Err(err).
			Str("workspace", sess.ActiveWorkspaceID).
			Msg("initial snapshot pull failed, cache left intact")
	}
}

// Close releases the engine's resources. Safe after a failed Run.
func (e *Engine) Close() error {
	e.Coordinator.Deactivate()

	var errs []error
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gateway close: %w", err))
		}
	}
	if err := e.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
