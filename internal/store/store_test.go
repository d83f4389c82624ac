package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func testTask(id, workspace string) *types.Task {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &types.Task{
		ID:           id,
		WorkspaceID:  workspace,
		Title:        "Test task " + id,
		Status:       types.StatusOpen,
		Priority:     2,
		CreatedAt:    now,
		LastModified: now,
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}
}

func TestPutTask_UpsertReplacesWholeRecord(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := testTask("t-1", "ws-1")
	if err := s.PutTask(ctx, task, types.OriginLocal, types.SyncPending); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}

	task.Title = "Renamed"
	task.Description = "with description"
	if err := s.PutTask(ctx, task, types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("second PutTask() failed: %v", err)
	}

	got, err := s.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "Renamed" || got.Description != "with description" {
		t.Errorf("upsert did not replace record: %+v", got)
	}

	origin, state, err := s.GetTaskMeta(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTaskMeta() failed: %v", err)
	}
	if origin != types.OriginRemote || state != types.SyncSynced {
		t.Errorf("meta = %s/%s, want remote/synced", origin, state)
	}
}

func TestPutTask_SameRecordTwiceIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := testTask("t-1", "ws-1")
	for i := 0; i < 2; i++ {
		if err := s.PutTask(ctx, task, types.OriginRemote, types.SyncSynced); err != nil {
			t.Fatalf("PutTask() round %d failed: %v", i, err)
		}
	}

	tasks, err := s.QueryTasks(ctx, "ws-1", TaskFilter{})
	if err != nil {
		t.Fatalf("QueryTasks() failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("got %d tasks, want 1", len(tasks))
	}
}

func TestPutTask_RemarksRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := testTask("t-1", "ws-1")
	task.Remarks = []types.Remark{
		{ID: "r-1", AuthorID: "u-1", Body: "first", CreatedAt: task.CreatedAt},
		{ID: "r-2", AuthorID: "u-2", Body: "second", CreatedAt: task.CreatedAt},
	}
	if err := s.PutTask(ctx, task, types.OriginLocal, types.SyncPending); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}

	got, err := s.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if len(got.Remarks) != 2 {
		t.Fatalf("got %d remarks, want 2", len(got.Remarks))
	}
	if got.Remarks[1].Body != "second" {
		t.Errorf("remark body = %q, want %q", got.Remarks[1].Body, "second")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetTask(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("GetTask() error = %v, want ErrNotFound", err)
	}
}

func TestQueryTasks_WorkspaceScoped(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutTask(ctx, testTask("t-1", "ws-1"), types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}
	if err := s.PutTask(ctx, testTask("t-2", "ws-2"), types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}

	tasks, err := s.QueryTasks(ctx, "ws-1", TaskFilter{})
	if err != nil {
		t.Fatalf("QueryTasks() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t-1" {
		t.Errorf("workspace scope leaked: %+v", tasks)
	}
}

func TestQueryTasks_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	open := testTask("t-1", "ws-1")
	done := testTask("t-2", "ws-1")
	done.Status = types.StatusDone
	done.AssigneeID = "u-9"
	for _, task := range []*types.Task{open, done} {
		if err := s.PutTask(ctx, task, types.OriginRemote, types.SyncSynced); err != nil {
			t.Fatalf("PutTask() failed: %v", err)
		}
	}

	tasks, err := s.QueryTasks(ctx, "ws-1", TaskFilter{Status: types.StatusDone})
	if err != nil {
		t.Fatalf("QueryTasks() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t-2" {
		t.Errorf("status filter: got %+v", tasks)
	}

	tasks, err = s.QueryTasks(ctx, "ws-1", TaskFilter{AssigneeID: "u-9"})
	if err != nil {
		t.Fatalf("QueryTasks() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t-2" {
		t.Errorf("assignee filter: got %+v", tasks)
	}
}

func TestSetTaskSyncState_PendingToSynced(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutTask(ctx, testTask("t-1", "ws-1"), types.OriginLocal, types.SyncPending); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}
	if err := s.SetTaskSyncState(ctx, "t-1", types.SyncSynced); err != nil {
		t.Fatalf("SetTaskSyncState() failed: %v", err)
	}

	_, state, err := s.GetTaskMeta(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTaskMeta() failed: %v", err)
	}
	if state != types.SyncSynced {
		t.Errorf("state = %s, want synced", state)
	}

	if err := s.SetTaskSyncState(ctx, "missing", types.SyncSynced); err != ErrNotFound {
		t.Errorf("SetTaskSyncState(missing) = %v, want ErrNotFound", err)
	}
}

func TestWatch_SignalsOnWrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ch, stop := s.Watch("ws-1", types.TableTasks)
	defer stop()

	if err := s.PutTask(ctx, testTask("t-1", "ws-1"), types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no watch signal after write")
	}
}

func TestWatch_OtherWorkspaceDoesNotSignal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ch, stop := s.Watch("ws-1", types.TableTasks)
	defer stop()

	if err := s.PutTask(ctx, testTask("t-1", "ws-2"), types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}

	select {
	case <-ch:
		t.Fatal("watch signalled for a different workspace")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkAlertDispatched_FirstWinsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	first, err := s.MarkAlertDispatched(ctx, "n-1")
	if err != nil {
		t.Fatalf("MarkAlertDispatched() failed: %v", err)
	}
	if !first {
		t.Error("first mark should report first = true")
	}

	again, err := s.MarkAlertDispatched(ctx, "n-1")
	if err != nil {
		t.Fatalf("second MarkAlertDispatched() failed: %v", err)
	}
	if again {
		t.Error("second mark should report first = false")
	}
	s.Close()

	// The ledger must survive a restart.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() after reopen failed: %v", err)
	}

	after, err := s.MarkAlertDispatched(ctx, "n-1")
	if err != nil {
		t.Fatalf("MarkAlertDispatched() after reopen failed: %v", err)
	}
	if after {
		t.Error("dispatch ledger did not survive reopen")
	}
}

func TestWipeUserData_ClearsEverything(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutTask(ctx, testTask("t-1", "ws-1"), types.OriginRemote, types.SyncSynced); err != nil {
		t.Fatalf("PutTask() failed: %v", err)
	}
	if _, err := s.MarkAlertDispatched(ctx, "n-1"); err != nil {
		t.Fatalf("MarkAlertDispatched() failed: %v", err)
	}

	if err := s.WipeUserData(ctx); err != nil {
		t.Fatalf("WipeUserData() failed: %v", err)
	}

	if _, err := s.GetTask(ctx, "t-1"); err != ErrNotFound {
		t.Errorf("task survived wipe: %v", err)
	}
	first, err := s.MarkAlertDispatched(ctx, "n-1")
	if err != nil {
		t.Fatalf("MarkAlertDispatched() after wipe failed: %v", err)
	}
	if !first {
		t.Error("dispatch ledger survived wipe")
	}
}
