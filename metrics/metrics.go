// Package metrics 提供任务协调相关的 Prometheus 指标收集.
//
// Collector 的所有记录方法对 nil 接收者安全，未配置指标时可直接传 nil.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("metrics: config is nil")
	// ErrRegisterMetric 注册指标失败.
	ErrRegisterMetric = errors.New("metrics: failed to register metric")
)

// Collector Prometheus 指标收集器.
type Collector struct {
	config *Config

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 协调器指标
	scheduleTotal    *prometheus.CounterVec
	deleteTotal      *prometheus.CounterVec
	invalidatedTotal prometheus.Counter
	ready            prometheus.Gauge

	// 注册方指标
	registrationAttempts *prometheus.CounterVec

	// 执行指标
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New 创建指标收集器.
func New(cfg *Config) (*Collector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "jobhub"
	}

	// 独立注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &Collector{config: cfg, registry: registry}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.scheduleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "schedule_total",
			Help:      "ScheduleJob calls by outcome",
		},
		[]string{"outcome"},
	)
	c.deleteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "delete_total",
			Help:      "DeleteJob calls by result",
		},
		[]string{"result"},
	)
	c.invalidatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "invalidated_jobs_total",
			Help:      "Jobs removed by the startup invalidation sweep",
		},
	)
	c.ready = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "ready",
			Help:      "1 once the invalidation sweep has completed",
		},
	)

	c.registrationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "attempts_total",
			Help:      "Job registration attempts by job and result",
		},
		[]string{"job", "result"},
	)

	c.executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "firings_total",
			Help:      "Job firings by job and result",
		},
		[]string{"job", "result"},
	)
	c.executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Job body duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	collectors := []prometheus.Collector{
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.scheduleTotal,
		c.deleteTotal,
		c.invalidatedTotal,
		c.ready,
		c.registrationAttempts,
		c.executionsTotal,
		c.executionDuration,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// MustNew 创建指标收集器，失败时 panic.
func MustNew(cfg *Config) *Collector {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// RecordHTTPRequest 记录 HTTP 请求指标.
func (c *Collector) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSchedule 记录一次 ScheduleJob 调用结果.
//
// outcome 取值: created, updated, unchanged, rejected, error.
func (c *Collector) RecordSchedule(outcome string) {
	if c == nil {
		return
	}
	c.scheduleTotal.WithLabelValues(outcome).Inc()
}

// RecordDelete 记录一次 DeleteJob 调用结果.
func (c *Collector) RecordDelete(result string) {
	if c == nil {
		return
	}
	c.deleteTotal.WithLabelValues(result).Inc()
}

// RecordInvalidated 记录一个被启动清理移除的任务.
func (c *Collector) RecordInvalidated() {
	if c == nil {
		return
	}
	c.invalidatedTotal.Inc()
}

// SetReady 设置协调器就绪状态.
func (c *Collector) SetReady(ready bool) {
	if c == nil {
		return
	}
	if ready {
		c.ready.Set(1)
		return
	}
	c.ready.Set(0)
}

// RecordRegistration 记录一次注册尝试.
//
// result 取值: success, warn, error.
func (c *Collector) RecordRegistration(job, result string) {
	if c == nil {
		return
	}
	c.registrationAttempts.WithLabelValues(job, result).Inc()
}

// RecordExecution 记录一次任务触发执行.
func (c *Collector) RecordExecution(job, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.executionsTotal.WithLabelValues(job, result).Inc()
	c.executionDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Handler 返回 metrics 的 HTTP 处理器.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Path 返回 metrics 路径.
func (c *Collector) Path() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}

// Gatherer 返回收集器使用的注册表.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}
