// Package registrar 实现任务所属服务一侧的自注册.
//
// Registrar 在启动后持续向协调器提交任务描述符，失败时按指数退避无限重试，
// 直到注册成功或被停止.
package registrar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Tsukikage7/jobhub/coordinator"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// 预定义错误.
var (
	ErrEmptyJobID       = errors.New("registrar: job id is empty")
	ErrNilScheduler     = errors.New("registrar: scheduler is nil")
	ErrNilSettings      = errors.New("registrar: schedule settings provider is nil")
	ErrVersionRequired  = errors.New("registrar: version is required")
	ErrInvalidSchedule  = errors.New("registrar: invalid schedule type")
	ErrAlreadyStarted   = errors.New("registrar: already started")
	ErrMissingWebTarget = errors.New("registrar: web request service key and uri are required")
)

// baseDelay 首次重试间隔，之后每次翻倍.
const baseDelay = 2 * time.Second

// Scheduler 协调器写接口，由 HTTP 客户端或进程内协调器实现.
type Scheduler interface {
	ScheduleJob(ctx context.Context, id string, desc *job.Descriptor) (coordinator.Result, error)
}

// Registrar 单个任务的注册器.
//
// 类型参数 S 为调度设置类型，如 job.CronSchedule.
type Registrar[S any] struct {
	id           string
	scheduleType job.ScheduleType
	settings     func() S
	scheduler    Scheduler
	opts         *options
	log          logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	result coordinator.Result
}

// New 创建注册器.
//
// settings 在每次尝试时调用，返回当前的调度设置.
func New[S any](id string, scheduleType job.ScheduleType, settings func() S, scheduler Scheduler, opts ...Option) (*Registrar[S], error) {
	if id == "" {
		return nil, ErrEmptyJobID
	}
	if !scheduleType.Valid() {
		return nil, ErrInvalidSchedule
	}
	if settings == nil {
		return nil, ErrNilSettings
	}
	if scheduler == nil {
		return nil, ErrNilScheduler
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.version == "" {
		return nil, ErrVersionRequired
	}
	if o.settings.ServiceKey == "" || o.settings.URI == "" {
		return nil, ErrMissingWebTarget
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}

	return &Registrar[S]{
		id:           id,
		scheduleType: scheduleType,
		settings:     settings,
		scheduler:    scheduler,
		opts:         o,
		log:          o.logger.With(logger.String("jobId", id), logger.String("version", o.version)),
	}, nil
}

// ID 返回任务标识.
func (r *Registrar[S]) ID() string {
	return r.id
}

// Descriptor 构建当前的任务描述符.
func (r *Registrar[S]) Descriptor() (*job.Descriptor, error) {
	desc, err := job.NewDescriptor(r.opts.version, r.opts.settings, r.scheduleType, r.settings())
	if err != nil {
		return nil, err
	}
	return &desc, nil
}

// Start 启动后台注册循环并立即返回.
//
// 未启用时只记录调试日志.
func (r *Registrar[S]) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return ErrAlreadyStarted
	}
	r.done = make(chan struct{})

	if !r.opts.enabled {
		r.log.Debug("[Registrar] 任务注册已禁用")
		close(r.done)
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.run(loopCtx)
	return nil
}

// Stop 取消注册循环并等待其退出.
func (r *Registrar[S]) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 返回注册循环结束信号，未启动时返回 nil.
func (r *Registrar[S]) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Result 返回最近一次成功注册的结果.
func (r *Registrar[S]) Result() coordinator.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Registrar[S]) run(ctx context.Context) {
	defer close(r.done)

	result, err := backoff.Retry(ctx, func() (coordinator.Result, error) {
		desc, err := r.Descriptor()
		if err != nil {
			return coordinator.Result{}, err
		}
		return r.scheduler.ScheduleJob(ctx, r.id, desc)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(r.notify),
	)
	if err != nil {
		r.log.With(logger.Err(err)).Debug("[Registrar] 注册循环已停止")
		return
	}

	r.mu.Lock()
	r.result = result
	r.mu.Unlock()

	r.opts.metrics.RecordRegistration(r.id, "success")
	log := r.log.With(logger.String("outcome", string(result.Outcome)))
	if !result.NextFireTime.IsZero() {
		log = log.With(logger.Time("nextFireTime", result.NextFireTime))
	}
	log.Info("[Registrar] 任务注册成功")
}

// notify 按错误类型选择日志级别，重试本身不受影响.
func (r *Registrar[S]) notify(err error, next time.Duration) {
	log := r.log.With(logger.Err(err), logger.Duration("nextTry", next))
	if isExpected(err) {
		r.opts.metrics.RecordRegistration(r.id, "warn")
		log.Warn("[Registrar] 任务注册失败，稍后重试")
		return
	}
	r.opts.metrics.RecordRegistration(r.id, "error")
	log.Error("[Registrar] 任务注册失败，稍后重试")
}

func (r *Registrar[S]) newBackOff() backoff.BackOff {
	if r.opts.backOff != nil {
		return r.opts.backOff
	}
	return NewBackOff(r.opts.maxDelay)
}

// NewBackOff 返回间隔为 2^n 秒（n 从 1 开始）且不超过 maxDelay 的退避策略.
func NewBackOff(maxDelay time.Duration) backoff.BackOff {
	initial := min(baseDelay, maxDelay)
	return &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
}

// isExpected 判断是否为通信、取消或校验类失败.
func isExpected(err error) bool {
	return response.IsCommunication(err) ||
		response.IsCanceled(err) ||
		response.IsValidation(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
