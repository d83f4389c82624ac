package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/taskhive/taskhive/internal/types"
)

// ErrOffline is the cause of every Offline gateway failure.
var ErrOffline = errors.New("gateway offline")

// Offline is the Gateway used when the initial dial fails. Local reads
// and cached views keep working; every remote operation reports a
// network failure, which leaves optimistic writes pending as usual.
type Offline struct{}

func (Offline) FetchAll(context.Context, string, types.Table) ([]json.RawMessage, error) {
	return nil, gwErr(KindNetwork, "fetch_all", ErrOffline)
}

func (Offline) Fetch(context.Context, string, types.Table, string) (json.RawMessage, error) {
	return nil, gwErr(KindNetwork, "fetch", ErrOffline)
}

func (Offline) Create(context.Context, string, types.Table, any) error {
	return gwErr(KindNetwork, "create", ErrOffline)
}

func (Offline) Update(context.Context, string, types.Table, any) error {
	return gwErr(KindNetwork, "update", ErrOffline)
}

func (Offline) Delete(context.Context, string, types.Table, string) error {
	return gwErr(KindNetwork, "delete", ErrOffline)
}

func (Offline) Subscribe(context.Context, string, types.Table) (*Subscription, error) {
	return nil, gwErr(KindNetwork, "subscribe", ErrOffline)
}

// Auth surface, so the session manager can hold an Offline gateway as its
// AuthProvider. Cached identity keeps working; fresh auth does not.

func (Offline) SignIn(context.Context, string, string) (string, error) {
	return "", gwErr(KindNetwork, "sign_in", ErrOffline)
}

func (Offline) SignUp(context.Context, string, string, string) (string, error) {
	return "", gwErr(KindNetwork, "sign_up", ErrOffline)
}

func (Offline) Memberships(context.Context, string) ([]types.Membership, error) {
	return nil, gwErr(KindNetwork, "memberships", ErrOffline)
}

func (Offline) RequestJoin(context.Context, string, string) error {
	return gwErr(KindNetwork, "request_join", ErrOffline)
}

func (Offline) ApproveMember(context.Context, string, string) error {
	return gwErr(KindNetwork, "approve_member", ErrOffline)
}

func (Offline) Leave(context.Context, string, string) error {
	return gwErr(KindNetwork, "leave", ErrOffline)
}
