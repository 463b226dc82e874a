package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tsukikage7/jobhub/database"
	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/engine/store/storetest"
	"github.com/Tsukikage7/jobhub/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&database.Config{
		Driver:   database.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "jobs.db"),
		LogLevel: "silent",
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestStore_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(openSQLite(t), WithTable("test_jobs"))
		require.NoError(t, err)
		return s
	})
}

func TestStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	s, err := New(db, WithTable("test_jobs"))
	require.NoError(t, err)

	require.NoError(t, db.Table("test_jobs").Create(&jobRecord{
		JobKey:           "broken",
		JobType:          "webrequest",
		ProducerVersion:  "1.4.0",
		Settings:         []byte(`{"service_key":`),
		ScheduleType:     "cron",
		ScheduleSettings: []byte(`{"expression":"0 2 * * *"}`),
		Hash:             "x",
		CreatedAt:        time.Now(),
	}).Error)

	require.NoError(t, s.Ping(ctx))

	_, err = s.Get(ctx, "broken")
	assert.ErrorIs(t, err, store.ErrCorrupt)

	eng := engine.New(engine.WithStore(s))
	require.NoError(t, eng.RegisterJobType("webrequest", func(context.Context, engine.ExecutionContext) error { return nil }))

	exists, err := eng.CheckJobExists(ctx, "broken")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = eng.GetJobDetail(ctx, "broken")
	assert.ErrorIs(t, err, engine.ErrCorruptJob)
	assert.True(t, engine.IsUnloadable(err))

	deleted, err := eng.DeleteJob(ctx, "broken")
	require.NoError(t, err)
	assert.True(t, deleted)
}
