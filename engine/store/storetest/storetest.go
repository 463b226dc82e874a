// Package storetest 提供任务存储实现的通用一致性测试.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/job"
)

// Record 构造测试用任务记录.
func Record(key job.Key) *store.Record {
	desc := job.Descriptor{
		ProducerVersion:  "1.4.0",
		Settings:         json.RawMessage(`{"service_key":"reports","uri":"/daily"}`),
		ScheduleType:     job.ScheduleCron,
		ScheduleSettings: json.RawMessage(`{"expression":"0 2 * * *"}`),
	}
	return &store.Record{
		Key:        key,
		Type:       "webrequest",
		Descriptor: desc,
		Hash:       desc.ContentHash(),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

// Run 对给定存储执行一致性测试，newStore 每次返回一个空存储.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		rec := Record("daily-report")
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, "daily-report")
		require.NoError(t, err)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, rec.Hash, got.Hash)
		assert.Equal(t, rec.Descriptor.ProducerVersion, got.Descriptor.ProducerVersion)
		assert.Equal(t, rec.Descriptor.ScheduleType, got.Descriptor.ScheduleType)
		assert.JSONEq(t, string(rec.Descriptor.Settings), string(got.Descriptor.Settings))
		assert.Equal(t, rec.Descriptor.ContentHash(), got.Descriptor.ContentHash())
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create duplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Record("dup")))
		assert.ErrorIs(t, s.Create(ctx, Record("dup")), store.ErrExists)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Record("gone")))

		deleted, err := s.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.Get(ctx, "gone")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("keys", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []job.Key{"b", "a", "c"} {
			require.NoError(t, s.Create(ctx, Record(k)))
		}
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []job.Key{"a", "b", "c"}, keys)
	})
}
