package session

import (
	"sync"
	"time"

	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// Manager holds one Session per channel key, created lazily on first
// contact. The map itself is guarded; the sessions inside are serialized by
// the engine's per-key workers, not by this lock.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	bot      string
}

func NewManager(botName string) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		bot:      botName,
	}
}

// GetOrCreate returns the channel's session, creating a fresh root session on
// first contact.
func (m *Manager) GetOrCreate(key, channel, chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := &Session{
		Key:            key,
		Channel:        channel,
		ChatID:         chatID,
		BotName:        m.bot,
		CurrentNode:    graph.None,
		UserVariables:  make(map[string]string),
		ActiveNLUModel: nlu.DefaultModelID,
		Created:        time.Now(),
		Updated:        time.Now(),
	}
	m.sessions[key] = s
	return s
}

// Peek returns the session without creating one.
func (m *Manager) Peek(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove drops the channel's session entirely. Called when a conversation
// terminates with nothing left to restore.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
