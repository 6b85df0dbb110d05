package presence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 單一 process 使用的 presence，測試與本機開發用
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[int64]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conns: make(map[int64]map[string]struct{})}
}

func (s *MemoryStore) Register(ctx context.Context, userID int64, connID string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[userID] == nil {
		s.conns[userID] = make(map[string]struct{})
	}
	s.conns[userID][connID] = struct{}{}
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, userID int64, connID string) error {
	return s.Register(ctx, userID, connID)
}

func (s *MemoryStore) Unregister(ctx context.Context, userID int64, connID string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns[userID], connID)
	if len(s.conns[userID]) == 0 {
		delete(s.conns, userID)
	}
	return nil
}

func (s *MemoryStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0, nil
}

func (s *MemoryStore) Connections(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, 0, len(s.conns[userID]))
	for id := range s.conns[userID] {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
