package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile observes the session file for writes made by another process
// (for example an account switch performed by a second client sharing the
// data dir) and reloads the session when the stored state diverges from
// the in-memory one. It blocks until the context is cancelled.
//
// The parent directory is watched rather than the file itself because
// persist() replaces the file by rename.
func (m *Manager) WatchFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create session watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("failed to watch session directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			m.reloadIfChanged()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Msg("session watcher error")
		}
	}
}

// reloadIfChanged re-reads the session file and, when another process left
// different state behind, adopts it and emits the matching event. Our own
// persist() writes land here too; those compare equal and are ignored.
func (m *Manager) reloadIfChanged() {
	stored, err := readSessionFile(m.path)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to re-read session file")
		return
	}

	m.mu.Lock()
	prev := m.sess
	if stored == prev {
		m.mu.Unlock()
		return
	}
	m.sess = stored
	m.memberships = nil
	m.mu.Unlock()

	m.log.Info().
		Str("workspace", stored.ActiveWorkspaceID).
		Msg("session changed externally, reloaded")

	switch {
	case stored.Anonymous() && !prev.Anonymous():
		m.emit(Event{Kind: EventLogout, Session: stored, Previous: prev})
	case !stored.Anonymous() && prev.Anonymous():
		m.emit(Event{Kind: EventLogin, Session: stored, Previous: prev})
	default:
		m.emit(Event{Kind: EventSwitch, Session: stored, Previous: prev})
	}
}
