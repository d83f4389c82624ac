package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/internal/types"
)

// PutNotification upserts a notification keyed by id.
func (s *Store) PutNotification(ctx context.Context, n *types.Notification, origin types.Origin, state types.SyncState) error {
	if err := n.Validate(); err != nil {
		return storeErr("put notification", fmt.Errorf("invalid notification: %w", err))
	}

	query := `
	INSERT INTO notifications (
		id, workspace_id, recipient_id, title, message, type, is_read,
		created_at, last_modified, origin, sync_state
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		recipient_id = excluded.recipient_id,
		title = excluded.title,
		message = excluded.message,
		type = excluded.type,
		is_read = excluded.is_read,
		created_at = excluded.created_at,
		last_modified = excluded.last_modified,
		origin = excluded.origin,
		sync_state = excluded.sync_state
	`

	_, err := s.conn.ExecContext(ctx, query,
		n.ID,
		n.WorkspaceID,
		n.RecipientID,
		n.Title,
		n.Message,
		string(n.Type),
		boolToInt(n.IsRead),
		formatTime(n.CreatedAt),
		formatTime(n.LastModified),
		string(origin),
		string(state),
	)
	if err != nil {
		return storeErr("put notification", err)
	}

	s.signal(n.WorkspaceID, types.TableNotifications)
	return nil
}

// GetNotification retrieves a single notification by id.
func (s *Store) GetNotification(ctx context.Context, id string) (*types.Notification, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, workspace_id, recipient_id, title, message, type, is_read,
	       created_at, last_modified
	FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get notification", err)
	}
	return n, nil
}

// NotificationFilter configures QueryNotifications.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// QueryNotifications lists notifications in one workspace, newest first.
func (s *Store) QueryNotifications(ctx context.Context, workspaceID string, filter NotificationFilter) ([]*types.Notification, error) {
	conditions := []string{"workspace_id = ?"}
	args := []any{workspaceID}

	if filter.RecipientID != "" {
		conditions = append(conditions, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = 0")
	}

	query := `
	SELECT id, workspace_id, recipient_id, title, message, type, is_read,
	       created_at, last_modified
	FROM notifications
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query notifications", err)
	}
	defer rows.Close()

	var notifications []*types.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, storeErr("query notifications", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query notifications", err)
	}

	return notifications, nil
}

// SetNotificationRead flips the read flag on one notification.
func (s *Store) SetNotificationRead(ctx context.Context, workspaceID, id string, read bool) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE notifications SET is_read = ? WHERE id = ?", boolToInt(read), id)
	if err != nil {
		return storeErr("set notification read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.signal(workspaceID, types.TableNotifications)
	return nil
}

// MarkAllNotificationsRead flips the read flag on every unread notification
// for the recipient in one workspace. Returns the ids it touched so the
// caller can confirm each one remotely.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, workspaceID, recipientID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id FROM notifications WHERE workspace_id = ? AND recipient_id = ? AND is_read = 0",
		workspaceID, recipientID)
	if err != nil {
		return nil, storeErr("mark all read", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storeErr("mark all read", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("mark all read", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.conn.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE workspace_id = ? AND recipient_id = ? AND is_read = 0",
		workspaceID, recipientID)
	if err != nil {
		return nil, storeErr("mark all read", err)
	}

	s.signal(workspaceID, types.TableNotifications)
	return ids, nil
}

// DeleteNotification removes a notification by id. Idempotent.
func (s *Store) DeleteNotification(ctx context.Context, workspaceID, id string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return storeErr("delete notification", err)
	}

	s.signal(workspaceID, types.TableNotifications)
	return nil
}

func scanNotification(scan func(...any) error) (*types.Notification, error) {
	var n types.Notification
	var typ string
	var isRead int
	var createdAt, lastModified string

	err := scan(
		&n.ID,
		&n.WorkspaceID,
		&n.RecipientID,
		&n.Title,
		&n.Message,
		&typ,
		&isRead,
		&createdAt,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	n.Type = types.ParseNotificationType(typ)
	n.IsRead = isRead != 0
	n.CreatedAt = parseTime(createdAt)
	n.LastModified = parseTime(lastModified)
	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
