// Package coordinator 实现任务注册协调器.
//
// 协调器接收注册方提交的任务描述符，按任务键串行化写操作，
// 通过内容哈希保证重复注册幂等，并在启动时清理版本不兼容的任务.
// 清理完成前所有写操作阻塞在就绪闸门上.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/lock"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// 预定义错误.
var (
	// ErrNilEngine 触发引擎为空.
	ErrNilEngine = errors.New("coordinator: engine is required")

	// ErrVersionRequired 未配置 SDK 版本.
	ErrVersionRequired = errors.New("coordinator: version is required")
)

// Outcome ScheduleJob 的执行结果.
type Outcome string

// ScheduleJob 结果取值.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Result ScheduleJob 返回值.
type Result struct {
	Outcome      Outcome   `json:"outcome"`
	NextFireTime time.Time `json:"next_fire_time,omitzero"`
}

// Service 任务注册协调器.
type Service struct {
	opts   *options
	engine engine.Engine
	locks  *lock.Provider
	log    logger.Logger

	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
	stopOnce  sync.Once
}

// New 创建协调器.
func New(eng engine.Engine, opts ...Option) (*Service, error) {
	if eng == nil {
		return nil, ErrNilEngine
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.version == "" {
		return nil, ErrVersionRequired
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.locks == nil {
		o.locks = lock.NewProvider()
	}

	return &Service{
		opts:    o,
		engine:  eng,
		locks:   o.locks,
		log:     o.logger,
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Version 返回协调器期望的 SDK 版本.
func (s *Service) Version() string {
	return s.opts.version
}

// ScheduleJob 创建或更新任务.
//
// 版本不匹配或描述符格式错误返回校验错误且不修改任何状态.
// 已存在且内容哈希相同的任务不做修改.
func (s *Service) ScheduleJob(ctx context.Context, id string, desc *job.Descriptor) (Result, error) {
	if id == "" {
		s.opts.metrics.RecordSchedule("rejected")
		return Result{}, response.NewErrorWithMessage(response.CodeMissingParam, "job id is required")
	}
	if desc == nil {
		s.opts.metrics.RecordSchedule("rejected")
		return Result{}, response.NewErrorWithMessage(response.CodeMissingParam, "job descriptor is required")
	}
	if desc.ProducerVersion != s.opts.version {
		s.opts.metrics.RecordSchedule("rejected")
		s.log.With(
			logger.String("jobId", id),
			logger.String("producerVersion", desc.ProducerVersion),
			logger.String("version", s.opts.version),
		).Warn("[Coordinator] 注册方 SDK 版本不匹配")
		return Result{}, response.NewErrorWithMessage(response.CodeVersionMismatch, "Invalid SDK version")
	}
	if err := desc.Validate(); err != nil {
		s.opts.metrics.RecordSchedule("rejected")
		return Result{}, response.WrapWithMessage(response.CodeValidationFailed, err.Error(), err)
	}

	if err := s.WaitReady(ctx); err != nil {
		return Result{}, err
	}

	key := job.Key(id)
	h, err := s.acquire(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer h.Release()

	result, err := s.scheduleLocked(ctx, key, desc)
	if err != nil {
		s.opts.metrics.RecordSchedule("error")
		return Result{}, err
	}
	s.opts.metrics.RecordSchedule(string(result.Outcome))
	if result.Outcome != OutcomeUnchanged && s.opts.onScheduled != nil {
		s.opts.onScheduled(key, result)
	}
	return result, nil
}

func (s *Service) scheduleLocked(ctx context.Context, key job.Key, desc *job.Descriptor) (Result, error) {
	log := s.log.WithContext(ctx).With(logger.String("jobId", string(key)))
	hash := desc.ContentHash()
	outcome := OutcomeCreated

	exists, err := s.engine.CheckJobExists(ctx, key)
	if err != nil {
		return Result{}, engineError(err)
	}
	if exists {
		existing, err := s.engine.GetJobDetail(ctx, key)
		switch {
		case engine.IsUnloadable(err):
			log.With(logger.Err(err)).Debug("[Coordinator] 任务无法加载，将被替换")
		case err != nil:
			return Result{}, engineError(err)
		case existing.Descriptor.ContentHash() == hash:
			log.Debug("[Coordinator] 任务已是最新")
			return s.ensureTrigger(ctx, key, log)
		default:
			log.Debug("[Coordinator] 任务将被更新")
		}

		if _, err := s.engine.DeleteJob(ctx, key); err != nil {
			return Result{}, engineError(err)
		}
		log.Info("[Coordinator] 任务已删除")
		outcome = OutcomeUpdated
	}

	if err := s.engine.CreateJob(ctx, &engine.StoredJob{
		Key:        key,
		Type:       s.opts.jobType,
		Descriptor: *desc,
		Hash:       hash,
	}); err != nil {
		return Result{}, engineError(err)
	}
	log.Info("[Coordinator] 任务已创建")

	next, err := s.engine.CreateTrigger(ctx, key)
	if err != nil {
		// 回滚任务记录，使注册方重试时重新创建.
		if _, delErr := s.engine.DeleteJob(context.WithoutCancel(ctx), key); delErr != nil {
			log.With(logger.Err(delErr)).Error("[Coordinator] 触发器创建失败后无法回滚任务")
		}
		return Result{}, engineError(err)
	}
	log.With(logger.Time("nextFireTime", next)).Info("[Coordinator] 任务已调度")

	return Result{Outcome: outcome, NextFireTime: next}, nil
}

// ensureTrigger 为内容未变的任务补建缺失的触发器.
func (s *Service) ensureTrigger(ctx context.Context, key job.Key, log logger.Logger) (Result, error) {
	state, err := s.engine.GetTriggerState(ctx, key)
	if err != nil {
		return Result{}, engineError(err)
	}
	if state != engine.StateNone {
		return Result{Outcome: OutcomeUnchanged}, nil
	}

	next, err := s.engine.CreateTrigger(ctx, key)
	if err != nil {
		return Result{}, engineError(err)
	}
	log.With(logger.Time("nextFireTime", next)).Warn("[Coordinator] 任务缺少触发器，已重新创建")
	return Result{Outcome: OutcomeUnchanged, NextFireTime: next}, nil
}

// DeleteJob 删除任务，任务不存在时返回 NotFound 错误.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	if id == "" {
		return response.NewErrorWithMessage(response.CodeMissingParam, "job id is required")
	}
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	key := job.Key(id)
	h, err := s.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer h.Release()

	exists, err := s.engine.CheckJobExists(ctx, key)
	if err != nil {
		s.opts.metrics.RecordDelete("error")
		return engineError(err)
	}
	if !exists {
		s.opts.metrics.RecordDelete("not_found")
		return response.NewErrorWithMessage(response.CodeJobNotFound, fmt.Sprintf("job %s not found", id))
	}
	if _, err := s.engine.DeleteJob(ctx, key); err != nil {
		s.opts.metrics.RecordDelete("error")
		return engineError(err)
	}

	s.opts.metrics.RecordDelete("deleted")
	s.log.WithContext(ctx).With(logger.String("jobId", id)).Info("[Coordinator] 任务已删除")
	return nil
}

// Start 执行启动清理，打开就绪闸门并启动触发引擎.
//
// 清理被取消时闸门保持关闭并返回错误.
func (s *Service) Start(ctx context.Context) error {
	if err := s.invalidateJobs(ctx); err != nil {
		return err
	}
	s.openGate()

	if err := s.engine.Start(ctx); err != nil {
		return engineError(err)
	}
	s.log.With(logger.String("version", s.opts.version)).Info("[Coordinator] 协调器已启动")
	return nil
}

// Stop 停止触发引擎并关闭锁提供者.
//
// 仍在等待闸门的调用者收到服务不可用错误.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopped) })

	err := s.engine.Shutdown(ctx)
	_ = s.locks.Close()
	if err != nil {
		return engineError(err)
	}
	s.log.Info("[Coordinator] 协调器已停止")
	return nil
}

// Ready 返回启动清理是否已完成.
func (s *Service) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady 阻塞直到启动清理完成、ctx 取消或协调器停止.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}

	select {
	case <-s.ready:
		return nil
	case <-s.stopped:
		return response.NewErrorWithMessage(response.CodeServiceUnavailable, "coordinator is stopped")
	case <-ctx.Done():
		return canceledError(ctx.Err())
	}
}

func (s *Service) openGate() {
	s.readyOnce.Do(func() {
		close(s.ready)
		s.opts.metrics.SetReady(true)
	})
}

func (s *Service) acquire(ctx context.Context, key job.Key) (*lock.Handle, error) {
	h, err := s.locks.Acquire(ctx, string(key))
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, lock.ErrProviderClosed):
		return nil, response.WrapWithMessage(response.CodeServiceUnavailable, "coordinator is stopped", err)
	default:
		return nil, canceledError(err)
	}
}

func engineError(err error) error {
	return response.Wrap(response.CodeEngineError, err)
}

func canceledError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return response.Wrap(response.CodeTimeout, err)
	}
	return response.Wrap(response.CodeCanceled, err)
}
