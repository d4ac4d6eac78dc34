package store

import (
	"context"
	"sync"
)

// MemoryStore is the in-process EntityStore used when no Redis is configured
// and in tests. Same latest-wins read semantics as RedisStore.
type MemoryStore struct {
	mu     sync.RWMutex
	scoped map[string]string // bot\x00channel\x00user\x00key -> value
	latest map[string]string // channel\x00key -> value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scoped: make(map[string]string),
		latest: make(map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, channel, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.latest[channel+"\x00"+key]
	return val, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, bot, channel, user, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoped[bot+"\x00"+channel+"\x00"+user+"\x00"+key] = value
	s.latest[channel+"\x00"+key] = value
	return nil
}
