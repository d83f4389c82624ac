package router

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/gateway"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/types"
)

func setupRouter(t *testing.T) (*Router, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return New(s, zerolog.Nop()), s
}

func taskEvent(t *testing.T, action gateway.Action, task types.Task) gateway.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return gateway.ChangeEvent{
		Action:      action,
		Table:       types.TableTasks,
		WorkspaceID: task.WorkspaceID,
		EntityID:    task.ID,
		Payload:     payload,
	}
}

func sampleTask(title string) types.Task {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return types.Task{
		ID:           "t-1",
		WorkspaceID:  "ws-1",
		Title:        title,
		Status:       types.StatusOpen,
		Priority:     1,
		CreatedAt:    now,
		LastModified: now,
	}
}

func TestRoute_InsertThenUpdatesApplyInOrder(t *testing.T) {
	r, s := setupRouter(t)
	ctx := context.Background()

	for _, ev := range []gateway.ChangeEvent{
		taskEvent(t, gateway.ActionInsert, sampleTask("v1")),
		taskEvent(t, gateway.ActionUpdate, sampleTask("v2")),
		taskEvent(t, gateway.ActionUpdate, sampleTask("v3")),
	} {
		if err := r.Route(ctx, ev); err != nil {
			t.Fatalf("Route() failed: %v", err)
		}
	}

	got, err := s.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "v3" {
		t.Errorf("title = %q, want %q (last write wins)", got.Title, "v3")
	}
}

func TestRoute_ReplayedEventIsIdempotent(t *testing.T) {
	r, s := setupRouter(t)
	ctx := context.Background()

	ev := taskEvent(t, gateway.ActionInsert, sampleTask("same"))
	for i := 0; i < 3; i++ {
		if err := r.Route(ctx, ev); err != nil {
			t.Fatalf("Route() replay %d failed: %v", i, err)
		}
	}

	tasks, err := s.QueryTasks(ctx, "ws-1", store.TaskFilter{})
	if err != nil {
		t.Fatalf("QueryTasks() failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("got %d tasks after replay, want 1", len(tasks))
	}
}

func TestRoute_DeleteRemovesRecord(t *testing.T) {
	r, s := setupRouter(t)
	ctx := context.Background()

	if err := r.Route(ctx, taskEvent(t, gateway.ActionInsert, sampleTask("v1"))); err != nil {
		t.Fatalf("Route(insert) failed: %v", err)
	}
	del := gateway.ChangeEvent{
		Action:      gateway.ActionDelete,
		Table:       types.TableTasks,
		WorkspaceID: "ws-1",
		EntityID:    "t-1",
	}
	if err := r.Route(ctx, del); err != nil {
		t.Fatalf("Route(delete) failed: %v", err)
	}

	if _, err := s.GetTask(ctx, "t-1"); err != store.ErrNotFound {
		t.Errorf("task survived delete: %v", err)
	}

	// Deleting again must stay a no-op.
	if err := r.Route(ctx, del); err != nil {
		t.Errorf("Route(delete) replay failed: %v", err)
	}
}

func TestRoute_NotificationUpdateIgnored(t *testing.T) {
	r, s := setupRouter(t)
	ctx := context.Background()

	n := types.Notification{
		ID:          "n-1",
		WorkspaceID: "ws-1",
		RecipientID: "u-1",
		Title:       "original",
		Type:        types.TypeAnnouncement,
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, _ := json.Marshal(n)
	insert := gateway.ChangeEvent{
		Action: gateway.ActionInsert, Table: types.TableNotifications,
		WorkspaceID: "ws-1", EntityID: "n-1", Payload: payload,
	}
	if err := r.Route(ctx, insert); err != nil {
		t.Fatalf("Route(insert) failed: %v", err)
	}

	n.Title = "mutated"
	payload, _ = json.Marshal(n)
	update := gateway.ChangeEvent{
		Action: gateway.ActionUpdate, Table: types.TableNotifications,
		WorkspaceID: "ws-1", EntityID: "n-1", Payload: payload,
	}
	if err := r.Route(ctx, update); err != nil {
		t.Fatalf("Route(update) failed: %v", err)
	}

	got, err := s.GetNotification(ctx, "n-1")
	if err != nil {
		t.Fatalf("GetNotification() failed: %v", err)
	}
	if got.Title != "original" {
		t.Errorf("notification mutated by remote update: %q", got.Title)
	}
}

func TestRoute_UndecodablePayloadFails(t *testing.T) {
	r, _ := setupRouter(t)

	ev := gateway.ChangeEvent{
		Action:      gateway.ActionInsert,
		Table:       types.TableTasks,
		WorkspaceID: "ws-1",
		EntityID:    "t-1",
		Payload:     json.RawMessage(`{"id": 42}`),
	}
	if err := r.Route(context.Background(), ev); err == nil {
		t.Error("Route() accepted an undecodable payload")
	}
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	r, s := setupRouter(t)
	ctx := context.Background()

	events := make(chan gateway.ChangeEvent, 2)
	events <- taskEvent(t, gateway.ActionInsert, sampleTask("v1"))
	close(events)

	done := make(chan struct{})
	go func() {
		r.Run(ctx, events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after channel close")
	}

	if _, err := s.GetTask(ctx, "t-1"); err != nil {
		t.Errorf("event before close not applied: %v", err)
	}
}
