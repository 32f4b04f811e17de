package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

type memoryItem struct {
	payload   []byte
	expiresAt time.Time
}

type memorySession struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemorySessionRepository keeps sessions in process memory. A zero ttl disables expiry.
func NewMemorySessionRepository(ttl time.Duration) SessionRepository {
	return &memorySession{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (that *memorySession) CreateOrUpdate(_ context.Context, session *entity.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	item := memoryItem{payload: sessionJSON}
	if that.ttl > 0 {
		item.expiresAt = that.now().Add(that.ttl)
	}

	that.mu.Lock()
	that.items[sessionKey(session.ID)] = item
	that.mu.Unlock()

	return nil
}

func (that *memorySession) GetByID(_ context.Context, id string) (*entity.Session, error) {
	item, ok := that.get(sessionKey(id))
	if !ok {
		return nil, ErrSessionNotFound
	}

	var existingSession entity.Session
	if err := json.Unmarshal(item.payload, &existingSession); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &existingSession, nil
}

func (that *memorySession) DeleteByID(_ context.Context, id string) error {
	key := sessionKey(id)

	if _, ok := that.get(key); !ok {
		return ErrSessionNotFound
	}

	that.mu.Lock()
	delete(that.items, key)
	that.mu.Unlock()

	return nil
}

func (that *memorySession) get(key string) (memoryItem, bool) {
	that.mu.RLock()
	item, ok := that.items[key]
	that.mu.RUnlock()

	if !ok {
		return memoryItem{}, false
	}

	if !item.expiresAt.IsZero() && !that.now().Before(item.expiresAt) {
		that.mu.Lock()
		delete(that.items, key)
		that.mu.Unlock()

		return memoryItem{}, false
	}

	return item, true
}
