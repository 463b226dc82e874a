// Package memory 提供进程内任务存储，进程退出后数据丢失.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/job"
)

// Store 内存任务存储.
type Store struct {
	mu      sync.RWMutex
	records map[job.Key]store.Record
	closed  bool
}

// New 创建内存任务存储.
func New() *Store {
	return &Store{records: make(map[job.Key]store.Record)}
}

// Create 保存新任务记录.
func (s *Store) Create(_ context.Context, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.records[rec.Key]; ok {
		return store.ErrExists
	}
	s.records[rec.Key] = *rec
	return nil
}

// Get 读取任务记录.
func (s *Store) Get(_ context.Context, key job.Key) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

// Delete 删除任务记录.
func (s *Store) Delete(_ context.Context, key job.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrClosed
	}
	_, ok := s.records[key]
	delete(s.records, key)
	return ok, nil
}

// Keys 列出全部任务键，按字典序排列.
func (s *Store) Keys(_ context.Context) ([]job.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	keys := make([]job.Key, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Close 关闭存储.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Put 直接写入或覆盖记录，用于预置测试数据.
func (s *Store) Put(rec store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
}
