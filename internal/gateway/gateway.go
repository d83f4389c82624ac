// Package gateway is the stateless client abstraction over the remote
// backend: request/response pulls and writes, plus per-table change-feed
// subscriptions pushed over a single websocket.
//
// The wire protocol is JSON frames. Requests carry an id and a method;
// responses echo the id; change-feed pushes arrive as id-less frames with
// method "change" referencing a subscription.
//
// The gateway itself has no retry policy for pulls and writes - that is the
// sync coordinator's job. The change-feed stream is the exception: on any
// stream-level error the client redials after a backoff delay and re-issues
// every active subscription, resuming from current state. There is no gap
// filling; consumers reconcile via a snapshot pull.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskhive/taskhive/internal/types"
)

// Action tags a change-feed event.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent is one row-level change pushed by the backend. Events are
// ephemeral: consumed exactly once by the change router, never persisted.
//
// Payload is the full row for insert/update and empty for delete.
type ChangeEvent struct {
	Action      Action          `json:"action"`
	Table       types.Table     `json:"table"`
	WorkspaceID string          `json:"workspace_id"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"record,omitempty"`
}

// ErrorKind classifies a GatewayError for retry decisions.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuth
	KindDecode
	KindTimeout
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// GatewayError wraps any failure talking to the backend.
type GatewayError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func gwErr(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &GatewayError{Kind: kind, Op: op, Err: err}
}

// Gateway is the surface the sync coordinator consumes. Client implements
// it against a live backend; tests substitute fakes.
type Gateway interface {
	// FetchAll pulls the authoritative snapshot of one table in one
	// workspace. No retry policy of its own.
	FetchAll(ctx context.Context, workspaceID string, table types.Table) ([]json.RawMessage, error)

	// Fetch pulls a single row. Used by the remark poller.
	Fetch(ctx context.Context, workspaceID string, table types.Table, id string) (json.RawMessage, error)

	// Create, Update and Delete are the optimistic-write confirmations.
	Create(ctx context.Context, workspaceID string, table types.Table, record any) error
	Update(ctx context.Context, workspaceID string, table types.Table, record any) error
	Delete(ctx context.Context, workspaceID string, table types.Table, id string) error

	// Subscribe opens a change-feed subscription for one table in one
	// workspace. The subscription survives reconnects until Close.
	Subscribe(ctx context.Context, workspaceID string, table types.Table) (*Subscription, error)
}
