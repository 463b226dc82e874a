package registrar

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
)

// DefaultMaxDelay 重试间隔上限.
const DefaultMaxDelay = 5 * time.Minute

// Option 注册器配置选项.
type Option func(*options)

// options 注册器内部配置.
type options struct {
	logger   logger.Logger
	metrics  *metrics.Collector
	enabled  bool
	version  string
	maxDelay time.Duration
	backOff  backoff.BackOff
	settings job.WebRequestSettings
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		enabled:  true,
		maxDelay: DefaultMaxDelay,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithEnabled 设置是否注册任务，禁用时 Start 只记录一条调试日志.
func WithEnabled(enabled bool) Option {
	return func(o *options) {
		o.enabled = enabled
	}
}

// WithVersion 设置注册方 SDK 版本，写入描述符的 ProducerVersion.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithMaxDelay 设置重试间隔上限.
//
// 默认: 5 分钟
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxDelay = d
		}
	}
}

// WithBackOff 替换默认的指数退避策略.
func WithBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.backOff = b
	}
}

// WithWebRequest 设置触发时回调的服务与路径.
func WithWebRequest(serviceKey, uri string) Option {
	return func(o *options) {
		o.settings.ServiceKey = serviceKey
		o.settings.URI = uri
	}
}

// WithParameters 设置回调请求的查询参数.
func WithParameters(params map[string]string) Option {
	return func(o *options) {
		o.settings.Parameters = params
	}
}

// WithTimeout 设置回调请求超时.
//
// 默认: 2 分钟
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.settings.Timeout = job.Duration(d)
	}
}
