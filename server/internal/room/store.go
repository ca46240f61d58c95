package room

import (
	"context"
	"sync"
)

// Store 直播间注册表
type Store interface {
	Get(ctx context.Context, id string) (*Room, error)
	Save(ctx context.Context, r *Room) error
	List(ctx context.Context) ([]*Room, error)
}

// InMemoryStore 基于内存的注册表。
// 注意：重启即丢；多实例部署时同一房间必须落在同一进程。
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Room
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]*Room)}
}

// Get 根据房间 ID 获取房间。
func (s *InMemoryStore) Get(_ context.Context, id string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Save 保存房间。
func (s *InMemoryStore) Save(_ context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[r.id] = r
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	return out, nil
}
