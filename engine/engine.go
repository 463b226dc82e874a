// Package engine 定义触发引擎适配契约，并提供基于 robfig/cron 的进程内实现.
//
// 协调器只依赖 Engine 接口；CronEngine 负责持久化任务记录、
// 根据描述符计算触发计划并在触发时调用已注册的任务类型.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/job"
)

// 预定义错误.
var (
	// ErrJobNotFound 任务不存在.
	ErrJobNotFound = errors.New("engine: job not found")

	// ErrJobExists 任务已存在.
	ErrJobExists = errors.New("engine: job already exists")

	// ErrUnsupportedJobType 任务类型未注册，无法加载任务详情.
	ErrUnsupportedJobType = errors.New("engine: unsupported job type")

	// ErrCorruptJob 任务记录无法解码.
	ErrCorruptJob = errors.New("engine: corrupt job record")

	// ErrTriggerNotFound 触发器不存在.
	ErrTriggerNotFound = errors.New("engine: trigger not found")

	// ErrTriggerBlocked 触发器对应的任务正在执行.
	ErrTriggerBlocked = errors.New("engine: trigger is blocked by a running execution")

	// ErrEngineClosed 引擎已关闭.
	ErrEngineClosed = errors.New("engine: engine is closed")

	// ErrInvalidJobType 注册的任务类型名称或函数为空.
	ErrInvalidJobType = errors.New("engine: job type name and func are required")
)

// TriggerState 触发器状态.
type TriggerState string

// 触发器状态取值.
const (
	StateNone     TriggerState = "none"
	StateNormal   TriggerState = "normal"
	StatePaused   TriggerState = "paused"
	StateError    TriggerState = "error"
	StateComplete TriggerState = "complete"
	StateBlocked  TriggerState = "blocked"
)

// IsUnloadable 判断任务是否因类型不受支持或记录损坏而无法加载.
func IsUnloadable(err error) bool {
	return errors.Is(err, ErrUnsupportedJobType) || errors.Is(err, ErrCorruptJob)
}

// StoredJob 引擎中保存的任务.
type StoredJob = store.Record

// Trigger 触发器快照.
type Trigger struct {
	Key          job.Key      `json:"key"`
	State        TriggerState `json:"state"`
	NextFireTime time.Time    `json:"next_fire_time"`
	PrevFireTime time.Time    `json:"prev_fire_time"`
}

// ExecutionContext 单次触发的执行上下文.
type ExecutionContext struct {
	Key        job.Key
	Type       string
	Descriptor job.Descriptor
	FireTime   time.Time
}

// JobFunc 任务类型的执行函数.
//
// 返回错误或 panic 会使触发器进入 Error 状态.
type JobFunc func(ctx context.Context, ec ExecutionContext) error

// Engine 触发引擎适配契约.
type Engine interface {
	// CheckJobExists 检查任务是否存在.
	CheckJobExists(ctx context.Context, key job.Key) (bool, error)

	// GetJobDetail 读取任务详情.
	//
	// 任务不存在返回 ErrJobNotFound，任务类型未注册返回 ErrUnsupportedJobType.
	GetJobDetail(ctx context.Context, key job.Key) (*StoredJob, error)

	// CreateJob 保存任务，已存在时返回 ErrJobExists.
	CreateJob(ctx context.Context, j *StoredJob) error

	// DeleteJob 删除任务及其触发器，返回任务是否存在.
	DeleteJob(ctx context.Context, key job.Key) (bool, error)

	// CreateTrigger 根据任务描述符创建触发器，返回首次触发时间.
	//
	// 调度已无后续触发时返回零值时间.
	CreateTrigger(ctx context.Context, key job.Key) (time.Time, error)

	// GetJobKeys 列出全部任务键.
	GetJobKeys(ctx context.Context) ([]job.Key, error)

	// GetTriggerKeys 列出全部触发器键.
	GetTriggerKeys(ctx context.Context) ([]job.Key, error)

	// GetTriggerState 返回触发器状态，不存在时返回 StateNone.
	GetTriggerState(ctx context.Context, key job.Key) (TriggerState, error)

	// Start 启动引擎，开始按计划触发任务.
	Start(ctx context.Context) error

	// Shutdown 停止触发并等待正在执行的任务结束.
	Shutdown(ctx context.Context) error
}
