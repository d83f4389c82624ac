package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskhive/taskhive/internal/types"
)

// PutEmployee upserts an employee as a whole-record replacement keyed by id.
func (s *Store) PutEmployee(ctx context.Context, e *types.Employee, origin types.Origin, state types.SyncState) error {
	if err := e.Validate(); err != nil {
		return storeErr("put employee", fmt.Errorf("invalid employee: %w", err))
	}

	query := `
	INSERT INTO employees (
		id, workspace_id, name, email, role, last_modified, origin, sync_state
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		name = excluded.name,
		email = excluded.email,
		role = excluded.role,
		last_modified = excluded.last_modified,
		origin = excluded.origin,
		sync_state = excluded.sync_state
	`

	_, err := s.conn.ExecContext(ctx, query,
		e.ID,
		e.WorkspaceID,
		e.Name,
		e.Email,
		e.Role,
		formatTime(e.LastModified),
		string(origin),
		string(state),
	)
	if err != nil {
		return storeErr("put employee", err)
	}

	s.signal(e.WorkspaceID, types.TableEmployees)
	return nil
}

// GetEmployee retrieves a single employee by id.
func (s *Store) GetEmployee(ctx context.Context, id string) (*types.Employee, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, workspace_id, name, email, role, last_modified
	FROM employees WHERE id = ?`, id)

	e, err := scanEmployee(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get employee", err)
	}
	return e, nil
}

// QueryEmployees lists the members of one workspace, ordered by name.
func (s *Store) QueryEmployees(ctx context.Context, workspaceID string) ([]*types.Employee, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, workspace_id, name, email, role, last_modified
	FROM employees
	WHERE workspace_id = ?
	ORDER BY name ASC`, workspaceID)
	if err != nil {
		return nil, storeErr("query employees", err)
	}
	defer rows.Close()

	var employees []*types.Employee
	for rows.Next() {
		e, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, storeErr("query employees", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query employees", err)
	}

	return employees, nil
}

// DeleteEmployee removes an employee by id. Idempotent.
func (s *Store) DeleteEmployee(ctx context.Context, workspaceID, id string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	if err != nil {
		return storeErr("delete employee", err)
	}

	s.signal(workspaceID, types.TableEmployees)
	return nil
}

func scanEmployee(scan func(...any) error) (*types.Employee, error) {
	var e types.Employee
	var lastModified string

	err := scan(
		&e.ID,
		&e.WorkspaceID,
		&e.Name,
		&e.Email,
		&e.Role,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	e.LastModified = parseTime(lastModified)
	return &e, nil
}
