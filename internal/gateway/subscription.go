package gateway

import (
	"sync"

	"github.com/taskhive/taskhive/internal/types"
)

// Subscription is one live change-feed stream. Events arrive through a
// bounded buffer: when the consumer falls behind, the oldest buffered event
// is dropped and counted rather than stalling the websocket read loop. The
// consumer reconciles any loss on its next snapshot pull.
type Subscription struct {
	workspaceID string
	table       types.Table

	mu      sync.Mutex
	id      string // server-side subscription id; changes on resubscribe
	closed  bool
	dropped int64

	events chan ChangeEvent

	// closeHook is set by the client to send the unsubscribe request and
	// deregister; fakes leave it nil.
	closeHook func()
}

// NewSubscription builds a subscription with the given buffer size.
// Exported for fakes; production code gets subscriptions from
// Client.Subscribe.
func NewSubscription(workspaceID string, table types.Table, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = defaultEventBuffer
	}
	return &Subscription{
		workspaceID: workspaceID,
		table:       table,
		events:      make(chan ChangeEvent, bufSize),
	}
}

// WorkspaceID returns the workspace this subscription is scoped to.
func (s *Subscription) WorkspaceID() string { return s.workspaceID }

// Table returns the table this subscription is scoped to.
func (s *Subscription) Table() types.Table { return s.table }

// Events returns the stream of change events. The channel is closed when
// the subscription is closed.
func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

// Dropped reports how many events were discarded because the consumer fell
// behind the bounded buffer.
func (s *Subscription) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Emit delivers an event to the consumer, dropping the oldest buffered
// event on overflow. Reports whether the event was buffered (false once
// closed or when it had to be discarded outright).
func (s *Subscription) Emit(ev ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- ev:
		return true
	default:
	}

	// Buffer full: drop the oldest, then retry once.
	select {
	case <-s.events:
		s.dropped++
	default:
	}

	select {
	case s.events <- ev:
		return true
	default:
		s.dropped++
		return false
	}
}

// Close tears the subscription down and closes the event channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	hook := s.closeHook
	close(s.events)
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (s *Subscription) serverID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Subscription) setServerID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
