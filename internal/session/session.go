// Package session owns the process-wide notion of "who is this client
// acting as, and in which workspace".
//
// Exactly one Session exists per process. It is loaded asynchronously from
// durable storage at startup and held in memory afterwards; every mutation
// goes through the Manager's API and is persisted immediately, so the
// persist-on-mutation invariant cannot be bypassed by direct field writes.
//
// Any dependent that needs "is a user logged in" must wait for the load to
// complete: reads before then fail with ErrSessionNotReady instead of
// returning a stale or zero value.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/types"
)

// ErrSessionNotReady is returned by session reads attempted before the
// startup load completes.
var ErrSessionNotReady = errors.New("session not ready")

// ErrNotLoggedIn is returned by operations that require an authenticated
// session.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the durable per-process identity record.
type Session struct {
	UserID            string `json:"user_id,omitempty"`
	Email             string `json:"email,omitempty"`
	ActiveWorkspaceID string `json:"active_workspace_id,omitempty"`
	Approved          bool   `json:"approved,omitempty"`
}

// Anonymous reports whether no user is logged in.
func (s Session) Anonymous() bool { return s.UserID == "" }

// AuthProvider is the external auth collaborator. The manager only reads
// identity and membership facts from it; it never mutates auth state
// directly.
type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (userID string, err error)
	SignUp(ctx context.Context, email, password, name string) (userID string, err error)
	Memberships(ctx context.Context, userID string) ([]types.Membership, error)
	RequestJoin(ctx context.Context, userID, workspaceID string) error
	ApproveMember(ctx context.Context, userID, workspaceID string) error
	Leave(ctx context.Context, userID, workspaceID string) error
}

// EventKind tags a session change notification.
type EventKind int

const (
	// EventLoaded fires once when the startup load completes.
	EventLoaded EventKind = iota
	// EventLogin fires after a successful login.
	EventLogin
	// EventSwitch fires after the active workspace changes.
	EventSwitch
	// EventLogout fires after the session resets to anonymous. The previous
	// session rides along so dependents can tear down its scope.
	EventLogout
)

// Event describes one session transition.
type Event struct {
	Kind     EventKind
	Session  Session
	Previous Session
}

// Manager is the single authority over the Session.
type Manager struct {
	path string
	auth AuthProvider
	log  zerolog.Logger

	mu          sync.RWMutex
	sess        Session
	memberships []types.Membership

	ready  chan struct{}
	events chan Event
}

// NewManager creates a Manager persisting to the given file path. Load
// must be called before any session read succeeds.
func NewManager(path string, auth AuthProvider, logger zerolog.Logger) *Manager {
	return &Manager{
		path:   path,
		auth:   auth,
		log:    logger.With().Str("component", "session").Logger(),
		ready:  make(chan struct{}),
		events: make(chan Event, 16),
	}
}

// Load reads the persisted session. A missing file is a clean anonymous
// start, not an error. Load completes the initializing phase exactly once.
func (m *Manager) Load(ctx context.Context) error {
	sess, err := readSessionFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	m.finishLoad()
	m.emit(Event{Kind: EventLoaded, Session: sess})

	m.log.Info().
		Bool("anonymous", sess.Anonymous()).
		Str("workspace", sess.ActiveWorkspaceID).
		Msg("session loaded")
	return nil
}

func (m *Manager) finishLoad() {
	select {
	case <-m.ready:
	default:
		close(m.ready)
	}
}

// Ready returns a channel closed once the startup load has completed.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// WaitReady blocks until the load completes or the context is cancelled.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initializing reports whether the startup load is still in progress.
func (m *Manager) Initializing() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

// Current returns a copy of the session, or ErrSessionNotReady before the
// load completes.
func (m *Manager) Current() (Session, error) {
	if m.Initializing() {
		return Session{}, ErrSessionNotReady
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess, nil
}

// UserID returns the logged-in user id. Fails with ErrSessionNotReady
// before load and ErrNotLoggedIn for anonymous sessions.
func (m *Manager) UserID() (string, error) {
	sess, err := m.Current()
	if err != nil {
		return "", err
	}
	if sess.Anonymous() {
		return "", ErrNotLoggedIn
	}
	return sess.UserID, nil
}

// ActiveWorkspace returns the active workspace id and its approval state.
func (m *Manager) ActiveWorkspace() (string, bool, error) {
	sess, err := m.Current()
	if err != nil {
		return "", false, err
	}
	return sess.ActiveWorkspaceID, sess.Approved, nil
}

// Events delivers session transitions to the engine. The channel is
// buffered; the manager never blocks on a slow consumer.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn().Int("kind", int(ev.Kind)).Msg("dropping session event, consumer too slow")
	}
}

// Login exchanges credentials through the auth collaborator, loads the
// user's memberships, and selects the first approved one as the active
// workspace (or none). The mutated session is persisted before Login
// returns. Errors pass through verbatim - the user is waiting on them.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	if err := m.WaitReady(ctx); err != nil {
		return Session{}, err
	}

	userID, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	memberships, err := m.auth.Memberships(ctx, userID)
	if err != nil {
		return Session{}, err
	}

	sess := Session{UserID: userID, Email: email}
	for _, mem := range memberships {
		if mem.Approved() {
			sess.ActiveWorkspaceID = mem.WorkspaceID
			sess.Approved = true
			break
		}
	}
	// No approved membership: leave the workspace empty but keep any
	// pending one visible through Memberships().

	m.mu.Lock()
	prev := m.sess
	m.sess = sess
	m.memberships = memberships
	m.mu.Unlock()

	if err := m.persist(sess); err != nil {
		return Session{}, err
	}

	m.emit(Event{Kind: EventLogin, Session: sess, Previous: prev})
	m.log.Info().Str("workspace", sess.ActiveWorkspaceID).Msg("logged in")
	return sess, nil
}

// SignUp registers a new account. The session does not change; the caller
// logs in separately.
func (m *Manager) SignUp(ctx context.Context, email, password, name string) (string, error) {
	return m.auth.SignUp(ctx, email, password, name)
}

// SwitchWorkspace atomically swaps the active workspace and its approval
// flag, persists, and notifies dependents. The engine tears down the old
// scope before the new one starts; no old-workspace event may land in the
// new scope after the switch completes.
func (m *Manager) SwitchWorkspace(ctx context.Context, workspaceID string, approved bool) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.sess.Anonymous() {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	prev := m.sess
	m.sess.ActiveWorkspaceID = workspaceID
	m.sess.Approved = approved
	sess := m.sess
	m.mu.Unlock()

	if err := m.persist(sess); err != nil {
		return err
	}

	m.emit(Event{Kind: EventSwitch, Session: sess, Previous: prev})
	m.log.Info().
		Str("from", prev.ActiveWorkspaceID).
		Str("to", workspaceID).
		Msg("switched workspace")
	return nil
}

// Logout resets the session to anonymous and persists the reset. It is the
// only operation permitted to trigger wiping the local store's per-user
// data; the engine performs the wipe on the EventLogout it receives here.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.sess
	m.sess = Session{}
	m.memberships = nil
	m.mu.Unlock()

	if err := m.persist(Session{}); err != nil {
		return err
	}

	m.emit(Event{Kind: EventLogout, Session: Session{}, Previous: prev})
	m.log.Info().Msg("logged out")
	return nil
}

// Memberships returns the cached membership list, refreshing from the auth
// collaborator when the cache is empty.
func (m *Manager) Memberships(ctx context.Context) ([]types.Membership, error) {
	userID, err := m.UserID()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	cached := m.memberships
	m.mu.RUnlock()
	if len(cached) > 0 {
		return cached, nil
	}

	memberships, err := m.auth.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.memberships = memberships
	m.mu.Unlock()
	return memberships, nil
}

// RequestJoin files a pending membership request for the logged-in user.
func (m *Manager) RequestJoin(ctx context.Context, workspaceID string) error {
	userID, err := m.UserID()
	if err != nil {
		return err
	}
	if err := m.auth.RequestJoin(ctx, userID, workspaceID); err != nil {
		return err
	}

	m.mu.Lock()
	m.memberships = nil // force refresh next read
	m.mu.Unlock()
	return nil
}

// ApproveMember approves another user's pending membership. The backend
// enforces that the caller is a workspace admin.
func (m *Manager) ApproveMember(ctx context.Context, userID, workspaceID string) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}
	return m.auth.ApproveMember(ctx, userID, workspaceID)
}

// LeaveWorkspace deletes the logged-in user's membership. If it was the
// active workspace, the session drops back to no active workspace.
func (m *Manager) LeaveWorkspace(ctx context.Context, workspaceID string) error {
	userID, err := m.UserID()
	if err != nil {
		return err
	}
	if err := m.auth.Leave(ctx, userID, workspaceID); err != nil {
		return err
	}

	m.mu.Lock()
	m.memberships = nil
	active := m.sess.ActiveWorkspaceID == workspaceID
	m.mu.Unlock()

	if active {
		return m.SwitchWorkspace(ctx, "", false)
	}
	return nil
}

// persist writes the session atomically (temp file + rename) so a crash
// mid-write never corrupts the stored session.
func (m *Manager) persist(sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

func readSessionFile(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	return sess, nil
}
