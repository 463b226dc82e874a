package health

import (
	"context"
	"sync"
	"time"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
)

// Pinger 实现了 Ping 方法的存储连接.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker 通用 Ping 检查器，用于任务存储的数据库或 Redis 连接.
type PingChecker struct {
	name   string
	kind   string
	pinger Pinger
}

// NewPingChecker 创建 Ping 检查器，kind 写入结果详情，如 database、redis.
func NewPingChecker(name, kind string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, kind: kind, pinger: pinger}
}

// Name 返回检查器名称.
func (c *PingChecker) Name() string {
	return c.name
}

// Check 执行 Ping 检查.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	details := map[string]any{"type": c.kind}
	if err := c.pinger.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDown, Message: err.Error(), Details: details}
	}
	return CheckResult{Status: StatusUp, Details: details}
}

// Readier 暴露就绪状态的组件，如协调器.
type Readier interface {
	Ready() bool
}

// ReadyChecker 组件就绪前返回 DOWN.
type ReadyChecker struct {
	name    string
	readier Readier
}

// NewReadyChecker 创建就绪检查器.
func NewReadyChecker(name string, r Readier) *ReadyChecker {
	return &ReadyChecker{name: name, readier: r}
}

// Name 返回检查器名称.
func (c *ReadyChecker) Name() string {
	return c.name
}

// Check 执行就绪检查.
func (c *ReadyChecker) Check(_ context.Context) CheckResult {
	if c.readier.Ready() {
		return CheckResult{Status: StatusUp}
	}
	return CheckResult{Status: StatusDown, Message: "invalidation sweep has not completed"}
}

// TriggerSource 可枚举触发器状态的触发引擎.
type TriggerSource interface {
	GetTriggerKeys(ctx context.Context) ([]job.Key, error)
	GetTriggerState(ctx context.Context, key job.Key) (engine.TriggerState, error)
}

// DefaultTriggerCheckInterval 触发器状态检查的默认间隔.
const DefaultTriggerCheckInterval = time.Minute

// TriggerStateChecker 周期性检查触发器状态，任一触发器处于 Error 状态即报告 DOWN.
//
// Check 返回最近一次周期检查的缓存结果，首次检查完成前为 UNKNOWN.
type TriggerStateChecker struct {
	source   TriggerSource
	interval time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	last   CheckResult
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTriggerStateChecker 创建触发器状态检查器.
func NewTriggerStateChecker(source TriggerSource, interval time.Duration, log logger.Logger) *TriggerStateChecker {
	if interval <= 0 {
		interval = DefaultTriggerCheckInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TriggerStateChecker{
		source:   source,
		interval: interval,
		log:      log,
		last:     CheckResult{Status: StatusUnknown, Message: "not checked yet"},
	}
}

// Name 返回检查器名称.
func (c *TriggerStateChecker) Name() string {
	return "SchedulerTriggersState"
}

// Check 返回缓存的检查结果.
func (c *TriggerStateChecker) Check(_ context.Context) CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Refresh 立即执行一次检查并更新缓存.
func (c *TriggerStateChecker) Refresh(ctx context.Context) CheckResult {
	result := c.evaluate(ctx)
	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	return result
}

// Start 启动周期检查.
func (c *TriggerStateChecker) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, c.done)
	return nil
}

// Stop 停止周期检查.
func (c *TriggerStateChecker) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TriggerStateChecker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

func (c *TriggerStateChecker) evaluate(ctx context.Context) CheckResult {
	keys, err := c.source.GetTriggerKeys(ctx)
	if err != nil {
		return CheckResult{Status: StatusDown, Message: err.Error()}
	}

	for _, key := range keys {
		state, err := c.source.GetTriggerState(ctx, key)
		if err != nil {
			return CheckResult{Status: StatusDown, Message: err.Error()}
		}
		if state == engine.StateError {
			c.log.With(logger.String("jobId", string(key))).Error("[Health] 任务触发器处于错误状态")
			return CheckResult{
				Status:  StatusDown,
				Message: "job trigger is in an error state",
				Details: map[string]any{"jobId": string(key)},
			}
		}
	}
	return CheckResult{Status: StatusUp, Details: map[string]any{"triggers": len(keys)}}
}
