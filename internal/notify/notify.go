// Package notify turns incoming notification records into at-most-one
// device alert each. Delivery dedup survives restarts: the id of every
// alerted notification is written to a persisted ledger before the alert
// fires, so replays, reconnect re-deliveries, and snapshot overlaps never
// re-alert.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

// ChannelClass is the device-facing delivery class of an alert.
type ChannelClass string

const (
	ChannelUrgent  ChannelClass = "urgent"
	ChannelDefault ChannelClass = "default"
	ChannelInfo    ChannelClass = "info"
)

// Route decides how one notification type reaches the user.
type Route struct {
	Channel ChannelClass `yaml:"channel"`
	// Intent names the screen the alert should open, for the client shell.
	Intent string `yaml:"intent"`
}

// Alert is a fully resolved, ready-to-show alert.
type Alert struct {
	Notification types.Notification
	Route        Route
}

// Alerter presents an alert on the device. Implementations must not
// block; slow presentation backs up the change feed pump.
type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// Dispatcher routes notification change events to the device alerter,
// exactly once per notification id.
type Dispatcher struct {
	store   *store.Store
	alerter Alerter
	rules   Rules
	log     zerolog.Logger

	// recipient filters alerts to the signed-in user. Set by the engine
	// on login, cleared on logout.
	recipient func() string
}

// Config holds dispatcher settings.
type Config struct {
	// Rules overrides the default type-to-route table. Nil keeps defaults.
	Rules Rules
	// Recipient returns the current user id, or "" when signed out.
	Recipient func() string
}

// NewDispatcher creates a Dispatcher writing dedup state through st.
func NewDispatcher(st *store.Store, alerter Alerter, cfg Config, logger zerolog.Logger) *Dispatcher {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	recipient := cfg.Recipient
	if recipient == nil {
		recipient = func() string { return "" }
	}
	return &Dispatcher{
		store:     st,
		alerter:   alerter,
		rules:     rules,
		log:       logger.With().Str("component", "notify").Logger(),
		recipient: recipient,
	}
}

// OnEvent is the coordinator's post-routing hook. Only freshly inserted
// notification records addressed to the signed-in user can alert; updates
// never do, since notification content is write-once and an update is
// only a read-flag echo.
func (d *Dispatcher) OnEvent(ctx context.Context, ev gateway.ChangeEvent) {
	if ev.Table != types.TableNotifications || ev.Action != gateway.ActionInsert {
		return
	}

	var n types.Notification
	if err := json.Unmarshal(ev.Payload, &n); err != nil {
		d.log.Warn().Err(err).Str("entity", ev.EntityID).Msg("undecodable notification event")
		return
	}

	if err := d.Dispatch(ctx, n); err != nil {
		d.log.Error().Err(err).Str("notification", n.ID).Msg("dispatch failed")
	}
}

// Dispatch alerts for n unless it was alerted before or belongs to
// someone else. The ledger mark lands before the alert, trading a lost
// alert on a crash in between for a guarantee of no duplicates.
func (d *Dispatcher) Dispatch(ctx context.Context, n types.Notification) error {
	user := d.recipient()
	if user == "" || n.RecipientID != user {
		return nil
	}

	first, err := d.store.MarkAlertDispatched(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to record alert dispatch: %w", err)
	}
	if !first {
		d.log.Debug().Str("notification", n.ID).Msg("already alerted, skipping")
		return nil
	}

	route := d.rules.Resolve(n.Type)
	d.alerter.Alert(ctx, Alert{Notification: n, Route: route})
	d.log.Debug().
		Str("notification", n.ID).
		Str("type", string(n.Type)).
		Str("channel", string(route.Channel)).
		Msg("alert dispatched")
	return nil
}

// LogAlerter writes alerts to the log. It is the daemon's default sink
// and the seam where a platform push integration would plug in.
type LogAlerter struct {
	Log zerolog.Logger
}

func (a LogAlerter) Alert(_ context.Context, alert Alert) {
	a.Log.Info().
		Str("channel", string(alert.Route.Channel)).
		Str("intent", alert.Route.Intent).
		Str("type", string(alert.Notification.Type)).
		Str("title", alert.Notification.Title).
		Msg("notification alert")
}
