// Package execution 将任务体包装为触发引擎可执行的 JobFunc.
//
// 每次触发建立独立的关联作用域，解码可执行设置后运行任务体，
// 任务体的错误与 panic 只记录日志，不会传递给触发引擎.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/recovery"
	"github.com/Tsukikage7/jobhub/tracing"
)

// tracerName 执行 span 使用的 tracer 名称.
const tracerName = "github.com/Tsukikage7/jobhub/execution"

// Body 任务体，settings 为解码后的可执行设置.
type Body[T any] func(ctx context.Context, settings T) error

// Option 包装器配置选项.
type Option func(*options)

type options struct {
	logger  logger.Logger
	version string
	metrics *metrics.Collector
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithVersion 设置协调器 SDK 版本，用于日志.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// Wrap 将任务体包装为 engine.JobFunc，返回的函数总是返回 nil.
func Wrap[T any](body Body[T], opts ...Option) engine.JobFunc {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}

	return func(ctx context.Context, ec engine.ExecutionContext) error {
		ctx, span := tracing.StartSpan(ctx, tracerName, "job "+string(ec.Key),
			trace.WithAttributes(
				attribute.String("job.key", string(ec.Key)),
				attribute.String("job.type", ec.Type),
				attribute.String("job.producer_version", ec.Descriptor.ProducerVersion),
			),
		)
		defer span.End()
		ctx = correlate(ctx)

		log := o.logger.WithContext(ctx).With(
			logger.String("jobId", string(ec.Key)),
			logger.String("version", o.version),
			logger.String("producerVersion", ec.Descriptor.ProducerVersion),
		)
		log.With(logger.Time("fireTime", ec.FireTime)).Debug("[Execution] 任务开始执行")

		start := time.Now()
		err := run(ctx, body, ec.Descriptor)
		elapsed := time.Since(start)

		if err != nil {
			tracing.SetSpanError(ctx, err)
			o.metrics.RecordExecution(string(ec.Key), "failure", elapsed)
			log = log.With(logger.Err(err), logger.Duration("elapsed", elapsed))
			var pe *recovery.PanicError
			if errors.As(err, &pe) {
				log = log.With(logger.String("stack", string(pe.Stack)))
			}
			log.Error("[Execution] 任务执行失败")
			return nil
		}

		o.metrics.RecordExecution(string(ec.Key), "success", elapsed)
		log.With(logger.Duration("elapsed", elapsed)).Info("[Execution] 任务执行完成")
		return nil
	}
}

// run 解码设置并执行任务体，panic 转换为错误.
func run[T any](ctx context.Context, body Body[T], desc job.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovery.NewPanicError(r)
		}
	}()

	settings, err := job.DecodeSettings[T](desc.Settings)
	if err != nil {
		return err
	}
	return body(ctx, settings)
}

// correlate 为本次执行写入关联 ID，未配置 TracerProvider 时使用随机 UUID.
func correlate(ctx context.Context) context.Context {
	if tracing.TraceID(ctx) != "" {
		return tracing.WithLogContext(ctx)
	}
	return logger.ContextWithTraceID(ctx, uuid.NewString())
}
