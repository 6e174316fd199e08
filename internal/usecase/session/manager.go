package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
)

// Manager keeps the open sessions of a process.
type Manager struct {
	backend   Backend
	bookmarks Bookmarks
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session registry. bookmarks may be nil.
func NewManager(backend Backend, bookmarks Bookmarks, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend:   backend,
		bookmarks: bookmarks,
		opts:      opts,
		logger:    logger,
		sessions:  map[string]*Session{},
	}
}

// Open creates and activates a session. Reopening a live id closes the
// previous session first.
func (m *Manager) Open(ctx context.Context, id, repo, rawQuery string) (*Session, error) {
	s, err := Open(ctx, id, repo, rawQuery, m.backend, m.bookmarks, m.opts, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.sessions[s.ID()]
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	if err := s.Activate(ctx); err != nil {
		m.logger.Warn("session activation incomplete",
			zap.String("session_id", s.ID()), zap.Error(err))
	}
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// Close disposes one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll disposes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
