package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"claims-intake/internal/common/logger"
)

// Manager dials the voice agent and tracks live relay sessions.
type Manager struct {
	logger     logger.Logger
	inactivity time.Duration
	onEnd      EndCallback

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. onEnd is invoked once per session,
// after it ends, with the upstream conversation id and claim id.
func NewManager(log logger.Logger, inactivity time.Duration, onEnd EndCallback) *Manager {
	return &Manager{
		logger:     log,
		inactivity: inactivity,
		onEnd:      onEnd,
		sessions:   make(map[string]*Session),
	}
}

// Dial connects to the upstream voice agent at the given signed URL.
func (m *Manager) Dial(ctx context.Context, signedURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial voice agent: %w", err)
	}
	return conn, nil
}

// Start creates a relay session, registers it, and runs it to completion.
func (m *Manager) Start(client, upstream Conn, claimID string) *Session {
	var session *Session
	session = NewSession(m.logger, client, upstream, claimID, m.inactivity, func(conversationID, claimID, reason string) {
		m.remove(session.ID)
		if m.onEnd != nil {
			m.onEnd(conversationID, claimID, reason)
		}
	})

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session
}

// Get returns a live session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
