package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on
// restart.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Session).Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	ttl := cache.NoExpiration
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			m.c.Delete(s.ID)
			return nil
		}
	}
	m.c.Set(s.ID, s.Clone(), ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.c.Delete(id)
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, _ time.Time) (int, error) {
	before := m.c.ItemCount()
	m.c.DeleteExpired()
	return before - m.c.ItemCount(), nil
}

func (m *MemoryStore) Len() int { return m.c.ItemCount() }
