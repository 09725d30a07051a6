package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionEntry struct {
	session      *ChatSession
	lastAccessed time.Time
}

// SessionCache keeps the most recently used chat sessions so concurrent
// requests on one conversation share its lock.
type SessionCache struct {
	lock     sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	maxSize  int
}

func NewSessionCache(maxSize int) *SessionCache {
	return &SessionCache{
		sessions: make(map[uuid.UUID]*sessionEntry, maxSize),
		maxSize:  max(maxSize, 1),
	}
}

func (cache *SessionCache) evictOldest() {
	oldestSessionID := uuid.Nil
	var oldestTime time.Time
	for id, entry := range cache.sessions {
		if oldestSessionID == uuid.Nil || entry.lastAccessed.Before(oldestTime) {
			oldestSessionID = id
			oldestTime = entry.lastAccessed
		}
	}

	if oldest, ok := cache.sessions[oldestSessionID]; ok {
		// Wait for any in-flight message on the evicted session.
		oldest.session.mu.Lock()
		delete(cache.sessions, oldestSessionID)
		oldest.session.mu.Unlock()
	}
}

func (cache *SessionCache) GetSession(sessionID uuid.UUID, create func() (*ChatSession, error)) (*ChatSession, error) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	if entry, ok := cache.sessions[sessionID]; ok {
		entry.lastAccessed = time.Now()
		return entry.session, nil
	}

	session, err := create()
	if err != nil {
		return nil, err
	}

	if len(cache.sessions) >= cache.maxSize {
		cache.evictOldest()
	}
	cache.sessions[sessionID] = &sessionEntry{session: session, lastAccessed: time.Now()}

	return session, nil
}

func (cache *SessionCache) Remove(sessionID uuid.UUID) {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	delete(cache.sessions, sessionID)
}

func (cache *SessionCache) Len() int {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	return len(cache.sessions)
}
