package store

import (
	"context"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/types"
)

func testNotification(id, workspace, recipient string, at time.Time) *types.Notification {
	return &types.Notification{
		ID:           id,
		WorkspaceID:  workspace,
		RecipientID:  recipient,
		Title:        "notice " + id,
		Type:         types.TypeTaskAssigned,
		CreatedAt:    at,
		LastModified: at,
	}
}

func TestQueryNotifications_UnreadOnlyAndOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	older := testNotification("n-1", "ws-1", "u-1", base)
	newer := testNotification("n-2", "ws-1", "u-1", base.Add(time.Hour))
	read := testNotification("n-3", "ws-1", "u-1", base.Add(2*time.Hour))
	read.IsRead = true

	for _, n := range []*types.Notification{older, newer, read} {
		if err := s.PutNotification(ctx, n, types.OriginRemote, types.SyncSynced); err != nil {
			t.Fatalf("PutNotification() failed: %v", err)
		}
	}

	unread, err := s.QueryNotifications(ctx, "ws-1", NotificationFilter{
		RecipientID: "u-1",
		UnreadOnly:  true,
	})
	if err != nil {
		t.Fatalf("QueryNotifications() failed: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("got %d unread, want 2", len(unread))
	}
	if unread[0].ID != "n-2" {
		t.Errorf("order: first = %s, want n-2 (newest first)", unread[0].ID)
	}
}

func TestMarkAllNotificationsRead_ReturnsTouchedIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	mine := testNotification("n-1", "ws-1", "u-1", base)
	other := testNotification("n-2", "ws-1", "u-2", base)
	for _, n := range []*types.Notification{mine, other} {
		if err := s.PutNotification(ctx, n, types.OriginRemote, types.SyncSynced); err != nil {
			t.Fatalf("PutNotification() failed: %v", err)
		}
	}

	ids, err := s.MarkAllNotificationsRead(ctx, "ws-1", "u-1")
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "n-1" {
		t.Errorf("touched ids = %v, want [n-1]", ids)
	}

	got, err := s.GetNotification(ctx, "n-2")
	if err != nil {
		t.Fatalf("GetNotification() failed: %v", err)
	}
	if got.IsRead {
		t.Error("another recipient's notification was marked read")
	}
}
