package notify

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *recordingAlerter) Alert(_ context.Context, alert Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

func setupDispatcher(t *testing.T, recipient string) (*Dispatcher, *recordingAlerter, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	alerter := &recordingAlerter{}
	d := NewDispatcher(s, alerter, Config{
		Recipient: func() string { return recipient },
	}, zerolog.Nop())
	return d, alerter, s
}

func notification(id, recipient string, typ types.NotificationType) types.Notification {
	return types.Notification{
		ID:          id,
		WorkspaceID: "ws-1",
		RecipientID: recipient,
		Title:       "notice",
		Type:        typ,
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_ExactlyOncePerID(t *testing.T) {
	d, alerter, _ := setupDispatcher(t, "u-1")
	ctx := context.Background()
	n := notification("n-1", "u-1", types.TypeTaskAssigned)

	// The feed replays the same notification many times: reconnects,
	// snapshot overlaps. One alert must come out.
	for i := 0; i < 5; i++ {
		if err := d.Dispatch(ctx, n); err != nil {
			t.Fatalf("Dispatch() round %d failed: %v", i, err)
		}
	}

	if got := alerter.count(); got != 1 {
		t.Errorf("alerts = %d, want exactly 1", got)
	}
}

func TestDispatch_DedupSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	alerter := &recordingAlerter{}
	d := NewDispatcher(s, alerter, Config{Recipient: func() string { return "u-1" }}, zerolog.Nop())
	if err := d.Dispatch(ctx, notification("n-1", "u-1", types.TypeTaskDue)); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	d2 := NewDispatcher(s, alerter, Config{Recipient: func() string { return "u-1" }}, zerolog.Nop())
	if err := d2.Dispatch(ctx, notification("n-1", "u-1", types.TypeTaskDue)); err != nil {
		t.Fatalf("Dispatch() after restart failed: %v", err)
	}

	if got := alerter.count(); got != 1 {
		t.Errorf("alerts across restart = %d, want 1", got)
	}
}

func TestDispatch_OtherRecipientIgnored(t *testing.T) {
	d, alerter, _ := setupDispatcher(t, "u-1")

	if err := d.Dispatch(context.Background(), notification("n-1", "u-2", types.TypeAnnouncement)); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if alerter.count() != 0 {
		t.Error("alerted for another recipient")
	}
}

func TestDispatch_SignedOutIgnored(t *testing.T) {
	d, alerter, _ := setupDispatcher(t, "")

	if err := d.Dispatch(context.Background(), notification("n-1", "u-1", types.TypeAnnouncement)); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if alerter.count() != 0 {
		t.Error("alerted while signed out")
	}
}

func TestOnEvent_OnlyNotificationInsertsAlert(t *testing.T) {
	d, alerter, _ := setupDispatcher(t, "u-1")
	ctx := context.Background()

	n := notification("n-1", "u-1", types.TypeRemarkAdded)
	payload, _ := json.Marshal(n)

	// Updates are read-flag echoes, never alerts.
	d.OnEvent(ctx, gateway.ChangeEvent{
		Action: gateway.ActionUpdate, Table: types.TableNotifications,
		WorkspaceID: "ws-1", EntityID: "n-1", Payload: payload,
	})
	if alerter.count() != 0 {
		t.Error("update event alerted")
	}

	d.OnEvent(ctx, gateway.ChangeEvent{
		Action: gateway.ActionInsert, Table: types.TableNotifications,
		WorkspaceID: "ws-1", EntityID: "n-1", Payload: payload,
	})
	if got := alerter.count(); got != 1 {
		t.Errorf("alerts after insert = %d, want 1", got)
	}
}

func TestRules_UnknownTypeRoutesToInfo(t *testing.T) {
	rules := DefaultRules()

	route := rules.Resolve(types.ParseNotificationType("launch_party"))
	if route.Channel != ChannelInfo {
		t.Errorf("unknown type channel = %s, want info", route.Channel)
	}

	route = rules.Resolve(types.TypeTaskDue)
	if route.Channel != ChannelUrgent {
		t.Errorf("task_due channel = %s, want urgent", route.Channel)
	}
}

func TestLoadRules_PartialOverrideLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "task_due:\n  channel: default\n  intent: task\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}

	if got := rules.Resolve(types.TypeTaskDue).Channel; got != ChannelDefault {
		t.Errorf("override ignored: task_due channel = %s", got)
	}
	// Types the file does not name keep their defaults.
	if got := rules.Resolve(types.TypeAnnouncement).Channel; got != ChannelInfo {
		t.Errorf("default lost: announcement channel = %s", got)
	}
}

func TestLoadRules_RejectsUnknownTypeAndChannel(t *testing.T) {
	dir := t.TempDir()

	badType := filepath.Join(dir, "badtype.yaml")
	os.WriteFile(badType, []byte("launch_party:\n  channel: info\n"), 0644)
	if _, err := LoadRules(badType); err == nil {
		t.Error("LoadRules() accepted an unknown notification type")
	}

	badChannel := filepath.Join(dir, "badchan.yaml")
	os.WriteFile(badChannel, []byte("task_due:\n  channel: loudspeaker\n"), 0644)
	if _, err := LoadRules(badChannel); err == nil {
		t.Error("LoadRules() accepted an invalid channel")
	}
}
