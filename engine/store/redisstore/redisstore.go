// Package redisstore 提供基于 Redis Hash 的任务存储.
//
// 所有任务记录以 JSON 形式保存在同一个 Hash 中，field 为任务键.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/job"
)

// DefaultHashKey 默认 Hash 键名.
const DefaultHashKey = "jobhub:jobs"

// Store Redis 任务存储.
type Store struct {
	client redis.UniversalClient
	key    string
	owned  bool
}

// Option 存储配置选项.
type Option func(*Store)

// WithHashKey 设置保存任务记录的 Hash 键名.
func WithHashKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithOwnedClient 关闭存储时同时关闭 Redis 客户端.
func WithOwnedClient() Option {
	return func(s *Store) {
		s.owned = true
	}
}

// New 创建 Redis 任务存储，并通过 PING 校验连接.
func New(ctx context.Context, client redis.UniversalClient, opts ...Option) (*Store, error) {
	s := &Store{client: client, key: DefaultHashKey}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: ping failed: %w", err)
	}
	return s, nil
}

// Create 保存新任务记录.
func (s *Store) Create(ctx context.Context, rec *store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.key, string(rec.Key), data).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrExists
	}
	return nil
}

// Get 读取任务记录.
func (s *Store) Get(ctx context.Context, key job.Key) (*store.Record, error) {
	data, err := s.client.HGet(ctx, s.key, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(key, data)
}

func decodeRecord(key job.Key, data []byte) (*store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: redisstore: decode %s: %v", store.ErrCorrupt, key, err)
	}
	return &rec, nil
}

// Delete 删除任务记录.
func (s *Store) Delete(ctx context.Context, key job.Key) (bool, error) {
	n, err := s.client.HDel(ctx, s.key, string(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys 列出全部任务键.
func (s *Store) Keys(ctx context.Context) ([]job.Key, error) {
	names, err := s.client.HKeys(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]job.Key, len(names))
	for i, n := range names {
		keys[i] = job.Key(n)
	}
	return keys, nil
}

// Ping 检查 Redis 连接.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭存储.
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
