// Package gormstore 提供基于 GORM 的持久化任务存储，支持 MySQL、PostgreSQL 与 SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/job"
)

// jobRecord 任务表模型.
type jobRecord struct {
	JobKey           string    `gorm:"column:job_key;primaryKey;size:255"`
	JobType          string    `gorm:"column:job_type;size:64;not null"`
	ProducerVersion  string    `gorm:"column:producer_version;size:64"`
	Settings         []byte    `gorm:"column:settings"`
	ScheduleType     string    `gorm:"column:schedule_type;size:32;not null"`
	ScheduleSettings []byte    `gorm:"column:schedule_settings"`
	Hash             string    `gorm:"column:hash;size:64;not null"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// Store GORM 任务存储.
type Store struct {
	db    *gorm.DB
	table string
}

// Option 存储配置选项.
type Option func(*Store)

// WithTable 设置表名，默认 "jobhub_jobs".
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = name
	}
}

// New 创建 GORM 任务存储并迁移表结构.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, table: "jobhub_jobs"}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.db.Table(s.table).AutoMigrate(&jobRecord{}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Create 保存新任务记录.
func (s *Store) Create(ctx context.Context, rec *store.Record) error {
	row := toRow(rec)
	result := s.tx(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrExists
	}
	return nil
}

// Get 读取任务记录.
func (s *Store) Get(ctx context.Context, key job.Key) (*store.Record, error) {
	var row jobRecord
	err := s.tx(ctx).Where("job_key = ?", string(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !validJSON(row.Settings) || !validJSON(row.ScheduleSettings) {
		return nil, fmt.Errorf("%w: gormstore: invalid settings for %s", store.ErrCorrupt, key)
	}
	return fromRow(&row), nil
}

// Delete 删除任务记录.
func (s *Store) Delete(ctx context.Context, key job.Key) (bool, error) {
	result := s.tx(ctx).Where("job_key = ?", string(key)).Delete(&jobRecord{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Keys 列出全部任务键.
func (s *Store) Keys(ctx context.Context) ([]job.Key, error) {
	var names []string
	if err := s.tx(ctx).Order("job_key").Pluck("job_key", &names).Error; err != nil {
		return nil, err
	}
	keys := make([]job.Key, len(names))
	for i, n := range names {
		keys[i] = job.Key(n)
	}
	return keys, nil
}

// Ping 检查数据库连接.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 存储不持有连接，由调用方关闭 *gorm.DB.
func (s *Store) Close() error {
	return nil
}

func validJSON(b []byte) bool {
	return len(b) == 0 || json.Valid(b)
}

func toRow(rec *store.Record) jobRecord {
	return jobRecord{
		JobKey:           string(rec.Key),
		JobType:          rec.Type,
		ProducerVersion:  rec.Descriptor.ProducerVersion,
		Settings:         rec.Descriptor.Settings,
		ScheduleType:     string(rec.Descriptor.ScheduleType),
		ScheduleSettings: rec.Descriptor.ScheduleSettings,
		Hash:             rec.Hash,
		CreatedAt:        rec.CreatedAt,
	}
}

func fromRow(row *jobRecord) *store.Record {
	return &store.Record{
		Key:  job.Key(row.JobKey),
		Type: row.JobType,
		Descriptor: job.Descriptor{
			ProducerVersion:  row.ProducerVersion,
			Settings:         row.Settings,
			ScheduleType:     job.ScheduleType(row.ScheduleType),
			ScheduleSettings: row.ScheduleSettings,
		},
		Hash:      row.Hash,
		CreatedAt: row.CreatedAt,
	}
}
