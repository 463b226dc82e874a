package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tsukikage7/jobhub/logger"
)

// DatabaseTestSuite 数据库测试套件.
type DatabaseTestSuite struct {
	suite.Suite
	logger logger.Logger
	logs   *observer.ObservedLogs
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}

func (s *DatabaseTestSuite) SetupTest() {
	core, logs := observer.New(zapcore.DebugLevel)
	s.logger = logger.FromZap(zap.New(core))
	s.logs = logs
}

func (s *DatabaseTestSuite) TestDefaultConfig() {
	cfg := DefaultConfig()

	s.Equal(200*time.Millisecond, cfg.SlowThreshold)
	s.Equal("warn", cfg.LogLevel)
	s.Equal(20, cfg.Pool.MaxOpen)
	s.Equal(5, cfg.Pool.MaxIdle)
	s.Equal(time.Hour, cfg.Pool.MaxLifetime)
}

func (s *DatabaseTestSuite) TestOpen_InvalidConfig() {
	tests := []struct {
		name    string
		config  *Config
		log     logger.Logger
		wantErr error
	}{
		{"nil config", nil, s.logger, ErrNilConfig},
		{"nil logger", &Config{Driver: DriverSQLite, DSN: "x"}, nil, ErrNilLogger},
		{"empty driver", &Config{DSN: "x"}, s.logger, ErrEmptyDriver},
		{"empty dsn", &Config{Driver: DriverMySQL}, s.logger, ErrEmptyDSN},
		{"unsupported driver", &Config{Driver: "oracle", DSN: "x"}, s.logger, ErrUnsupportedDriver},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			db, err := Open(tt.config, tt.log)
			s.Nil(db)
			s.ErrorIs(err, tt.wantErr)
		})
	}
}

func (s *DatabaseTestSuite) TestOpen_SQLite() {
	dsn := filepath.Join(s.T().TempDir(), "jobhub.db")
	db, err := Open(&Config{Driver: DriverSQLite, DSN: dsn, LogLevel: "info"}, s.logger)
	s.Require().NoError(err)
	defer Close(db)

	var one int
	s.Require().NoError(db.Raw("SELECT 1").Scan(&one).Error)
	s.Equal(1, one)
}

func (s *DatabaseTestSuite) TestLoggerAdapter_Trace() {
	adapter := newGORMLoggerAdapter(s.logger, 10*time.Millisecond, "info")
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(ctx, time.Now(), sql, errors.New("boom"))
	adapter.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	adapter.Trace(ctx, time.Now(), sql, nil)

	entries := s.logs.All()
	s.Require().Len(entries, 3)
	s.Equal(zapcore.ErrorLevel, entries[0].Level)
	s.Equal(zapcore.WarnLevel, entries[1].Level)
	s.Equal(zapcore.DebugLevel, entries[2].Level)

	silent := adapter.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("ignored"))
	s.Len(s.logs.All(), 3)
}
