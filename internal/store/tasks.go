package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/internal/types"
)

// PutTask upserts a task as a whole-record replacement keyed by id.
// Origin and sync state are written alongside the entity fields.
func (s *Store) PutTask(ctx context.Context, t *types.Task, origin types.Origin, state types.SyncState) error {
	if err := t.Validate(); err != nil {
		return storeErr("put task", fmt.Errorf("invalid task: %w", err))
	}

	remarksJSON, err := json.Marshal(t.Remarks)
	if err != nil {
		return storeErr("put task", fmt.Errorf("failed to marshal remarks: %w", err))
	}

	query := `
	INSERT INTO tasks (
		id, workspace_id, title, description, status, priority,
		assignee_id, remarks, due_at, created_at, last_modified,
		origin, sync_state
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		title = excluded.title,
		description = excluded.description,
		status = excluded.status,
		priority = excluded.priority,
		assignee_id = excluded.assignee_id,
		remarks = excluded.remarks,
		due_at = excluded.due_at,
		created_at = excluded.created_at,
		last_modified = excluded.last_modified,
		origin = excluded.origin,
		sync_state = excluded.sync_state
	`

	_, err = s.conn.ExecContext(ctx, query,
		t.ID,
		t.WorkspaceID,
		t.Title,
		t.Description,
		t.Status,
		t.Priority,
		t.AssigneeID,
		string(remarksJSON),
		timeToNullString(t.DueAt),
		formatTime(t.CreatedAt),
		formatTime(t.LastModified),
		string(origin),
		string(state),
	)
	if err != nil {
		return storeErr("put task", err)
	}

	s.signal(t.WorkspaceID, types.TableTasks)
	return nil
}

// GetTask retrieves a single task by id. Returns ErrNotFound if not cached.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, workspace_id, title, description, status, priority,
	       assignee_id, remarks, due_at, created_at, last_modified
	FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return t, nil
}

// GetTaskMeta returns a task's sync metadata alongside the entity.
func (s *Store) GetTaskMeta(ctx context.Context, id string) (origin types.Origin, state types.SyncState, err error) {
	var o, st string
	err = s.conn.QueryRowContext(ctx,
		"SELECT origin, sync_state FROM tasks WHERE id = ?", id).Scan(&o, &st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", storeErr("get task meta", err)
	}
	return types.Origin(o), types.SyncState(st), nil
}

// SetTaskSyncState flips a task's sync metadata after a remote write
// confirms (Pending -> Synced). The entity fields are untouched.
func (s *Store) SetTaskSyncState(ctx context.Context, id string, state types.SyncState) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE tasks SET sync_state = ? WHERE id = ?", string(state), id)
	if err != nil {
		return storeErr("set task sync state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskFilter configures QueryTasks. The zero value matches everything in
// the workspace.
type TaskFilter struct {
	Status     string
	AssigneeID string
	Limit      int
}

// QueryTasks lists tasks scoped to one workspace, ordered by priority then
// creation time. The workspace scope is mandatory.
func (s *Store) QueryTasks(ctx context.Context, workspaceID string, filter TaskFilter) ([]*types.Task, error) {
	conditions := []string{"workspace_id = ?"}
	args := []any{workspaceID}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}

	query := `
	SELECT id, workspace_id, title, description, status, priority,
	       assignee_id, remarks, due_at, created_at, last_modified
	FROM tasks
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY priority ASC, created_at ASC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query tasks", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, storeErr("query tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query tasks", err)
	}

	return tasks, nil
}

// DeleteTask removes a task by id. Deleting an absent id is a no-op.
func (s *Store) DeleteTask(ctx context.Context, workspaceID, id string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return storeErr("delete task", err)
	}

	s.signal(workspaceID, types.TableTasks)
	return nil
}

// scanTask reads one task row from either a *sql.Row or *sql.Rows scan func.
func scanTask(scan func(...any) error) (*types.Task, error) {
	var t types.Task
	var remarksJSON string
	var createdAt, lastModified string
	var dueAt sql.NullString

	err := scan(
		&t.ID,
		&t.WorkspaceID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.AssigneeID,
		&remarksJSON,
		&dueAt,
		&createdAt,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	t.CreatedAt = parseTime(createdAt)
	t.LastModified = parseTime(lastModified)
	t.DueAt = nullStringToTime(dueAt)

	if remarksJSON != "" && remarksJSON != "null" {
		if err := json.Unmarshal([]byte(remarksJSON), &t.Remarks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal remarks: %w", err)
		}
	}

	return &t, nil
}
