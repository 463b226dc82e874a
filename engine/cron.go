package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/engine/store/memory"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/recovery"
)

// trigger 单个任务的触发器.
type trigger struct {
	key      job.Key
	entryID  cron.EntryID
	schedule cron.Schedule
	state    TriggerState
	prev     time.Time
	next     time.Time
}

// CronEngine 基于 Cron 的触发引擎.
type CronEngine struct {
	opts  *options
	cron  *cron.Cron
	store store.Store

	mu       sync.RWMutex
	types    map[string]JobFunc
	triggers map[job.Key]*trigger
	running  bool
	closed   bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup // 跟踪正在执行的任务
}

var _ Engine = (*CronEngine)(nil)

// New 创建 Cron 触发引擎.
func New(opts ...Option) *CronEngine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.store == nil {
		o.store = memory.New()
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	return &CronEngine{
		opts: o,
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cronLogger{o.logger}),
		),
		store:     o.store,
		types:     make(map[string]JobFunc),
		triggers:  make(map[job.Key]*trigger),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
}

// RegisterJobType 注册任务类型.
//
// 同名类型重复注册时覆盖.
func (e *CronEngine) RegisterJobType(name string, fn JobFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidJobType
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types[name] = fn
	e.logDebugf("任务类型已注册: %s", name)
	return nil
}

// CheckJobExists 检查任务是否存在，无法解码的记录同样视为存在.
func (e *CronEngine) CheckJobExists(ctx context.Context, key job.Key) (bool, error) {
	_, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil && !errors.Is(err, store.ErrCorrupt) {
		return false, err
	}
	return true, nil
}

// GetJobDetail 读取任务详情.
func (e *CronEngine) GetJobDetail(ctx context.Context, key job.Key) (*StoredJob, error) {
	rec, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, key)
	}
	if errors.Is(err, store.ErrCorrupt) {
		return nil, fmt.Errorf("%w: %w", ErrCorruptJob, err)
	}
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	_, ok := e.types[rec.Type]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (job %s)", ErrUnsupportedJobType, rec.Type, key)
	}
	return rec, nil
}

// CreateJob 保存任务.
func (e *CronEngine) CreateJob(ctx context.Context, j *StoredJob) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if j.Hash == "" {
		j.Hash = j.Descriptor.ContentHash()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = e.now()
	}
	err := e.store.Create(ctx, j)
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("%w: %s", ErrJobExists, j.Key)
	}
	return err
}

// DeleteJob 删除任务及其触发器.
func (e *CronEngine) DeleteJob(ctx context.Context, key job.Key) (bool, error) {
	e.mu.Lock()
	e.removeTriggerLocked(key)
	e.mu.Unlock()

	return e.store.Delete(ctx, key)
}

// CreateTrigger 根据任务描述符创建触发器，已存在的触发器被替换.
func (e *CronEngine) CreateTrigger(ctx context.Context, key job.Key) (time.Time, error) {
	rec, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, key)
	}
	if errors.Is(err, store.ErrCorrupt) {
		return time.Time{}, fmt.Errorf("%w: %w", ErrCorruptJob, err)
	}
	if err != nil {
		return time.Time{}, err
	}

	schedule, err := rec.Descriptor.Schedule()
	if err != nil {
		return time.Time{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return time.Time{}, ErrEngineClosed
	}
	e.removeTriggerLocked(key)
	t := e.addTriggerLocked(key, schedule)
	return t.next, nil
}

// GetJobKeys 列出全部任务键.
func (e *CronEngine) GetJobKeys(ctx context.Context) ([]job.Key, error) {
	return e.store.Keys(ctx)
}

// GetTriggerKeys 列出全部触发器键，按字典序排列.
func (e *CronEngine) GetTriggerKeys(_ context.Context) ([]job.Key, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]job.Key, 0, len(e.triggers))
	for k := range e.triggers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// GetTriggerState 返回触发器状态.
func (e *CronEngine) GetTriggerState(_ context.Context, key job.Key) (TriggerState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.triggers[key]
	if !ok {
		return StateNone, nil
	}
	return t.state, nil
}

// GetTrigger 返回触发器快照.
func (e *CronEngine) GetTrigger(_ context.Context, key job.Key) (Trigger, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.triggers[key]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	return Trigger{Key: key, State: t.state, NextFireTime: t.next, PrevFireTime: t.prev}, nil
}

// PauseTrigger 暂停触发器，暂停期间的计划触发被跳过.
func (e *CronEngine) PauseTrigger(_ context.Context, key job.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.triggers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	if t.state == StateNormal || t.state == StateBlocked {
		t.state = StatePaused
		e.logDebugf("触发器已暂停: %s", key)
	}
	return nil
}

// ResumeTrigger 恢复暂停或出错的触发器.
func (e *CronEngine) ResumeTrigger(_ context.Context, key job.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.triggers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	if t.state == StatePaused || t.state == StateError {
		t.state = StateNormal
		t.next = t.schedule.Next(e.now())
		e.logDebugf("触发器已恢复: %s", key)
	}
	return nil
}

// TriggerJob 立即同步执行一次任务，不影响计划触发时间.
func (e *CronEngine) TriggerJob(_ context.Context, key job.Key) error {
	return e.fire(key, false)
}

// Start 为存储中尚无触发器的任务重建触发器并启动 cron.
func (e *CronEngine) Start(ctx context.Context) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return nil
	}

	for _, key := range keys {
		if _, ok := e.triggers[key]; ok {
			continue
		}
		rec, err := e.store.Get(ctx, key)
		if err != nil {
			e.logWarnf("加载任务失败: %s [error:%v]", key, err)
			continue
		}
		schedule, err := rec.Descriptor.Schedule()
		if err != nil {
			e.logWarnf("任务调度设置无效: %s [error:%v]", key, err)
			continue
		}
		e.addTriggerLocked(key, schedule)
	}

	e.cron.Start()
	e.running = true
	e.logDebugf("引擎已启动 [triggers:%d]", len(e.triggers))
	return nil
}

// Running 检查是否运行中.
func (e *CronEngine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Shutdown 停止触发并等待正在执行的任务结束.
func (e *CronEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	cronCtx := e.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		e.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
		e.logDebugf("引擎已停止")
	case <-ctx.Done():
		e.logWarnf("等待任务完成超时")
		waitErr = ctx.Err()
	}
	e.runCancel()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	return errors.Join(waitErr, e.store.Close())
}

// addTriggerLocked 注册触发器，调用方需持有写锁.
func (e *CronEngine) addTriggerLocked(key job.Key, schedule cron.Schedule) *trigger {
	t := &trigger{
		key:      key,
		schedule: schedule,
		state:    StateNormal,
		next:     schedule.Next(e.now()),
	}
	if t.next.IsZero() {
		t.state = StateComplete
	} else {
		t.entryID = e.cron.Schedule(schedule, cron.FuncJob(func() {
			_ = e.fire(key, true)
		}))
	}
	e.triggers[key] = t
	return t
}

// removeTriggerLocked 移除触发器，调用方需持有写锁.
func (e *CronEngine) removeTriggerLocked(key job.Key) {
	t, ok := e.triggers[key]
	if !ok {
		return
	}
	if t.entryID != 0 {
		e.cron.Remove(t.entryID)
	}
	delete(e.triggers, key)
}

// fire 执行一次触发.
//
// 计划触发遵循触发器状态，手动触发只要求任务未在执行中.
func (e *CronEngine) fire(key job.Key, scheduled bool) error {
	fireTime := e.now()

	e.mu.Lock()
	t, ok := e.triggers[key]
	if !ok || e.closed {
		e.mu.Unlock()
		if e.isClosed() {
			return ErrEngineClosed
		}
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	if t.state == StateBlocked {
		e.mu.Unlock()
		e.logDebugf("任务仍在执行，跳过本次触发: %s", key)
		return ErrTriggerBlocked
	}
	if scheduled {
		if t.state != StateNormal {
			e.mu.Unlock()
			return nil
		}
		t.prev = fireTime
		t.next = t.schedule.Next(fireTime)
	}
	prevState := t.state
	t.state = StateBlocked
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	err := e.execute(key, fireTime)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.triggers[key] != t {
		return err
	}
	switch {
	case err != nil:
		t.state = StateError
	case t.state != StateBlocked:
		// 执行期间被暂停
	case t.next.IsZero():
		t.state = StateComplete
		if t.entryID != 0 {
			e.cron.Remove(t.entryID)
			t.entryID = 0
		}
	case scheduled:
		t.state = StateNormal
	default:
		t.state = prevState
	}
	return err
}

// execute 加载任务并调用任务类型函数，panic 转换为错误.
func (e *CronEngine) execute(key job.Key, fireTime time.Time) (err error) {
	rec, err := e.GetJobDetail(e.runCtx, key)
	if err != nil {
		e.logErrorf("加载任务失败: %s [error:%v]", key, err)
		return err
	}

	e.mu.RLock()
	fn := e.types[rec.Type]
	e.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: job %s: %w", key, recovery.NewPanicError(r))
			e.logErrorf("任务执行 panic: %s [panic:%v]", key, r)
		}
	}()

	err = fn(e.runCtx, ExecutionContext{
		Key:        key,
		Type:       rec.Type,
		Descriptor: rec.Descriptor,
		FireTime:   fireTime,
	})
	if err != nil {
		e.logErrorf("任务执行失败，触发器进入错误状态: %s [error:%v]", key, err)
	}
	return err
}

func (e *CronEngine) now() time.Time {
	return e.opts.clock().In(e.opts.location)
}

func (e *CronEngine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// 日志辅助方法.

func (e *CronEngine) logDebugf(format string, args ...any) {
	e.opts.logger.Debugf("[Engine] "+format, args...)
}

func (e *CronEngine) logWarnf(format string, args ...any) {
	e.opts.logger.Warnf("[Engine] "+format, args...)
}

func (e *CronEngine) logErrorf(format string, args ...any) {
	e.opts.logger.Errorf("[Engine] "+format, args...)
}

// cronLogger 将 cron 内部日志输出到 logger.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugf("[Engine] cron %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorf("[Engine] cron %s %v [error:%v]", msg, keysAndValues, err)
}
