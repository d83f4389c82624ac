// Package types defines the domain entities shared across the sync engine.
//
// Every entity is scoped to exactly one workspace. Cross-workspace queries
// are forbidden by construction: the store and coordinator APIs always take
// a workspace ID, and an entity never changes workspace after creation.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table identifies an entity table, both locally and on the remote backend.
type Table string

const (
	TableTasks         Table = "tasks"
	TableEmployees     Table = "employees"
	TableNotifications Table = "notifications"
	TableSettings      Table = "settings"
)

// Origin records which side of the sync boundary produced a local row.
type Origin string

const (
	// OriginLocal marks rows written by a user action on this device.
	OriginLocal Origin = "local"
	// OriginRemote marks rows written by the change feed or a snapshot pull.
	OriginRemote Origin = "remote"
)

// SyncState tracks a local row's relationship to the remote source of truth.
type SyncState string

const (
	// SyncPending means an optimistic local write has not been confirmed remotely.
	SyncPending SyncState = "pending"
	// SyncSynced means the row matches the last known remote state.
	SyncSynced SyncState = "synced"
	// SyncConflicted is reserved for a future versioned-merge policy.
	// Nothing sets it today; the engine is last-writer-wins.
	SyncConflicted SyncState = "conflicted"
)

// Remark is a free-form comment on a task.
type Remark struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Task statuses. The backend stores these as plain strings.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

// Task is a workspace-scoped work item.
//
// Remarks ride along inside the task record; there is no push channel for
// them, which is why the coordinator runs a short poll while a task is open.
type Task struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	AssigneeID  string `json:"assignee_id,omitempty"`

	Remarks []Remark `json:"remarks,omitempty"`

	DueAt        *time.Time `json:"due_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastModified time.Time  `json:"last_modified"`
}

// Validate checks required task fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Status == "" {
		return fmt.Errorf("status is required")
	}
	if t.Priority < 0 || t.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", t.Priority)
	}
	return nil
}

// Employee is a workspace member profile as the backend publishes it.
type Employee struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`

	LastModified time.Time `json:"last_modified"`
}

// Validate checks required employee fields.
func (e *Employee) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// NotificationType classifies a notification for alert routing.
//
// Raw strings from the wire are decoded exactly once, at the payload
// boundary; anything unrecognized becomes TypeUnknown rather than being
// coerced to a default at the call sites.
type NotificationType string

const (
	TypeTaskAssigned  NotificationType = "task_assigned"
	TypeTaskDue       NotificationType = "task_due"
	TypeRemarkAdded   NotificationType = "remark_added"
	TypeStatusChanged NotificationType = "status_changed"
	TypeJoinRequested NotificationType = "join_requested"
	TypeJoinApproved  NotificationType = "join_approved"
	TypeAnnouncement  NotificationType = "announcement"
	TypeUnknown       NotificationType = "unknown"
)

// KnownNotificationTypes lists every concrete type, TypeUnknown excluded.
// Routing tables must cover all of these plus TypeUnknown.
var KnownNotificationTypes = []NotificationType{
	TypeTaskAssigned,
	TypeTaskDue,
	TypeRemarkAdded,
	TypeStatusChanged,
	TypeJoinRequested,
	TypeJoinApproved,
	TypeAnnouncement,
}

// ParseNotificationType maps a raw wire string to a NotificationType,
// falling back to TypeUnknown for anything unrecognized.
func ParseNotificationType(raw string) NotificationType {
	t := NotificationType(raw)
	for _, known := range KnownNotificationTypes {
		if t == known {
			return t
		}
	}
	return TypeUnknown
}

// UnmarshalJSON decodes the type at the wire boundary, collapsing unknown
// values to TypeUnknown.
func (nt *NotificationType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*nt = ParseNotificationType(raw)
	return nil
}

// Notification is write-once from the server's perspective: remote updates
// never mutate it. Only the local user flips IsRead.
type Notification struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	RecipientID string `json:"recipient_id"`

	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`
	IsRead  bool             `json:"is_read"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Validate checks required notification fields.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if n.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	return nil
}

// MembershipStatus is the approval state of a workspace membership.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
)

// Membership links a user to a workspace. One user may hold many.
type Membership struct {
	UserID      string           `json:"user_id"`
	WorkspaceID string           `json:"workspace_id"`
	Status      MembershipStatus `json:"status"`
	Role        string           `json:"role"`
}

// Approved reports whether the membership grants access to workspace data.
func (m Membership) Approved() bool {
	return m.Status == MembershipApproved
}

// ConflictError is reserved for a future per-record versioning policy.
// The engine currently resolves every collision last-writer-wins, so
// nothing constructs this yet; it exists so callers can already branch
// on it with errors.As.
type ConflictError struct {
	Table Table
	ID    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting write for %s/%s", e.Table, e.ID)
}
