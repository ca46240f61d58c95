package timeline

import (
	"context"
	"sync"

	"livecast/server/internal/model"
)

// InMemoryStore 是一个基于内存的 Timeline 存储实现。
// 回放只需要文本，音频不进时间线。
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]model.StepRecord
	seq     map[string]int64
	steps   map[string]map[int]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]model.StepRecord),
		seq:     make(map[string]int64),
		steps:   make(map[string]map[int]int64),
	}
}

// Append 追加 step 记录，并为该房间分配单调递增 seq。
// 相同 Step 会直接返回已分配的 seq（幂等）。
func (s *InMemoryStore) Append(_ context.Context, roomID string, rec *model.StepRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seen, ok := s.steps[roomID]; ok {
		if seq, exists := seen[rec.Step]; exists {
			return seq, nil
		}
	}

	s.seq[roomID]++
	seq := s.seq[roomID]

	recCopy := *rec
	recCopy.Audio = nil
	s.records[roomID] = append(s.records[roomID], recCopy)

	if s.steps[roomID] == nil {
		s.steps[roomID] = make(map[int]int64)
	}
	s.steps[roomID][rec.Step] = seq
	return seq, nil
}

// List 返回某个房间的全部 step 记录（按 seq 顺序）。
// 返回切片副本，避免调用方修改内部数据。
func (s *InMemoryStore) List(_ context.Context, roomID string) ([]model.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[roomID]
	out := make([]model.StepRecord, len(records))
	copy(out, records)
	return out, nil
}

// Reset 清空房间记录；seq 不回退，保证跨轮次仍单调。
func (s *InMemoryStore) Reset(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, roomID)
	delete(s.steps, roomID)
	return nil
}
