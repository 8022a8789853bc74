package infrastructure

import (
	"sync"
	"time"
)

// ChatSession tracks in-flight processing per Telegram chat so duplicate
// taps while a reply is being generated are dropped.
type ChatSession struct {
	ChatID       int64
	IsProcessing bool
	LastMessage  time.Time
	mu           sync.Mutex
}

// SessionManager holds chat sessions for the Telegram transport.
type SessionManager struct {
	sessions map[int64]*ChatSession
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*ChatSession),
	}
}

func (sm *SessionManager) GetOrCreateSession(chatID int64) *ChatSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[chatID]
	if !exists {
		session = &ChatSession{ChatID: chatID}
		sm.sessions[chatID] = session
	}
	return session
}

// IsAllowed reports whether the chat may start another request (debounce +
// one in flight at a time).
func (cs *ChatSession) IsAllowed() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.IsProcessing {
		return false
	}

	if time.Since(cs.LastMessage) < 500*time.Millisecond {
		return false
	}

	cs.LastMessage = time.Now()
	return true
}

func (cs *ChatSession) StartProcessing() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.IsProcessing = true
}

func (cs *ChatSession) FinishProcessing() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.IsProcessing = false
}
