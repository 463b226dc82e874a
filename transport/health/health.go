// Package health 提供协调器与注册方服务的存活、就绪检查.
//
// 检查器并发执行并共享一个超时，结果按 DOWN > UNKNOWN > UP 聚合.
// 检查器 panic 时结果记为 DOWN，不影响其他检查器.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/recovery"
)

// Status 健康状态.
type Status string

const (
	// StatusUp 服务健康.
	StatusUp Status = "UP"
	// StatusDown 服务不健康.
	StatusDown Status = "DOWN"
	// StatusUnknown 状态未知，如周期检查尚未完成.
	StatusUnknown Status = "UNKNOWN"
)

// severity 聚合时的优先级.
func (s Status) severity() int {
	switch s {
	case StatusDown:
		return 2
	case StatusUnknown:
		return 1
	default:
		return 0
	}
}

// CheckResult 单个检查器的结果，Elapsed 由管理器填写.
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Elapsed string         `json:"elapsed,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response 一次存活或就绪检查的汇总.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Elapsed   string                 `json:"elapsed"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker 健康检查器.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (c funcChecker) Name() string                          { return c.name }
func (c funcChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// Func 将函数包装为检查器.
func Func(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

// probe 存活或就绪探针.
type probe struct {
	kind     string
	checkers []Checker
	last     Status
}

// Health 健康检查管理器.
type Health struct {
	timeout time.Duration
	log     logger.Logger

	mu        sync.Mutex
	liveness  probe
	readiness probe
}

// Option 配置选项.
type Option func(*Health)

// WithTimeout 设置单次检查的总超时.
func WithTimeout(d time.Duration) Option {
	return func(h *Health) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger 设置日志，探针状态变化时记录.
func WithLogger(log logger.Logger) Option {
	return func(h *Health) {
		h.log = log
	}
}

// WithLivenessChecker 添加存活检查器.
func WithLivenessChecker(checkers ...Checker) Option {
	return func(h *Health) {
		h.liveness.checkers = append(h.liveness.checkers, checkers...)
	}
}

// WithReadinessChecker 添加就绪检查器.
func WithReadinessChecker(checkers ...Checker) Option {
	return func(h *Health) {
		h.readiness.checkers = append(h.readiness.checkers, checkers...)
	}
}

// New 创建健康检查管理器.
func New(opts ...Option) *Health {
	h := &Health{
		timeout:   5 * time.Second,
		liveness:  probe{kind: "liveness", last: StatusUp},
		readiness: probe{kind: "readiness", last: StatusUp},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	return h
}

// Liveness 执行存活检查，未注册检查器时返回 UP.
func (h *Health) Liveness(ctx context.Context) Response {
	return h.run(ctx, &h.liveness)
}

// Readiness 执行就绪检查，未注册检查器时返回 UP.
func (h *Health) Readiness(ctx context.Context) Response {
	return h.run(ctx, &h.readiness)
}

func (h *Health) run(ctx context.Context, p *probe) Response {
	start := time.Now()
	resp := Response{Status: StatusUp, Timestamp: start}

	if len(p.checkers) > 0 {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		results := make([]CheckResult, len(p.checkers))
		var g errgroup.Group
		for i, c := range p.checkers {
			g.Go(func() error {
				results[i] = runChecker(checkCtx, c)
				return nil
			})
		}
		_ = g.Wait()

		resp.Checks = make(map[string]CheckResult, len(results))
		for i, r := range results {
			resp.Checks[p.checkers[i].Name()] = r
			if r.Status.severity() > resp.Status.severity() {
				resp.Status = r.Status
			}
		}
	}
	resp.Elapsed = time.Since(start).String()

	h.observe(p, resp)
	return resp
}

func runChecker(ctx context.Context, c Checker) (result CheckResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusDown, Message: recovery.NewPanicError(r).Error()}
		}
		result.Elapsed = time.Since(start).String()
	}()
	return c.Check(ctx)
}

// observe 记录探针状态变化.
func (h *Health) observe(p *probe, resp Response) {
	h.mu.Lock()
	prev := p.last
	p.last = resp.Status
	h.mu.Unlock()
	if prev == resp.Status {
		return
	}

	log := h.log.With(
		logger.String("probe", p.kind),
		logger.String("from", string(prev)),
		logger.String("to", string(resp.Status)),
	)
	if resp.Status == StatusUp {
		log.Info("[Health] 探针状态已恢复")
		return
	}
	for name, r := range resp.Checks {
		if r.Status != StatusUp {
			log = log.With(logger.String(name, r.Message))
		}
	}
	log.Warn("[Health] 探针状态变化")
}
