package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/taskhive/taskhive/internal/types"
)

// PutSetting upserts a per-workspace setting value.
func (s *Store) PutSetting(ctx context.Context, workspaceID, key, value string) error {
	query := `
	INSERT INTO settings (workspace_id, key, value, last_modified)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(workspace_id, key) DO UPDATE SET
		value = excluded.value,
		last_modified = excluded.last_modified
	`

	_, err := s.conn.ExecContext(ctx, query,
		workspaceID, key, value, formatTime(time.Now()))
	if err != nil {
		return storeErr("put setting", err)
	}

	s.signal(workspaceID, types.TableSettings)
	return nil
}

// GetSetting retrieves a setting value. Returns ErrNotFound when unset.
func (s *Store) GetSetting(ctx context.Context, workspaceID, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE workspace_id = ? AND key = ?",
		workspaceID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storeErr("get setting", err)
	}
	return value, nil
}

// DeleteSetting removes a setting. Idempotent.
func (s *Store) DeleteSetting(ctx context.Context, workspaceID, key string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM settings WHERE workspace_id = ? AND key = ?", workspaceID, key)
	if err != nil {
		return storeErr("delete setting", err)
	}

	s.signal(workspaceID, types.TableSettings)
	return nil
}
