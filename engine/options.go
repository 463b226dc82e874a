package engine

import (
	"time"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/logger"
)

// Option 引擎配置选项.
type Option func(*options)

// options 引擎内部配置.
type options struct {
	logger   logger.Logger
	store    store.Store
	location *time.Location
	clock    func() time.Time
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		location: time.Local,
		clock:    time.Now,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithStore 设置任务存储.
//
// 默认使用内存存储.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithLocation 设置引擎时区，cron 表达式未指定时区时使用.
//
// 默认: time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// WithClock 设置时钟，用于计算尚未启动时的下次触发时间.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}
