package coordinator

import (
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/lock"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
)

// DefaultJobType 新建任务使用的默认任务类型.
const DefaultJobType = "webrequest"

// Option 协调器配置选项.
type Option func(*options)

// options 协调器内部配置.
type options struct {
	logger      logger.Logger
	version     string
	jobType     string
	locks       *lock.Provider
	metrics     *metrics.Collector
	onScheduled func(key job.Key, result Result)
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		jobType: DefaultJobType,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithVersion 设置协调器期望的 SDK 版本，必填.
//
// 描述符的 ProducerVersion 必须与之严格相等.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithJobType 设置新建任务的任务类型.
//
// 默认: webrequest
func WithJobType(name string) Option {
	return func(o *options) {
		o.jobType = name
	}
}

// WithLockProvider 设置按键锁提供者.
//
// 默认每个协调器创建独立的提供者.
func WithLockProvider(p *lock.Provider) Option {
	return func(o *options) {
		o.locks = p
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithOnScheduled 设置任务创建或更新后的回调，参数包含下次触发时间.
func WithOnScheduled(fn func(key job.Key, result Result)) Option {
	return func(o *options) {
		o.onScheduled = fn
	}
}
