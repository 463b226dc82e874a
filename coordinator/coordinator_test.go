package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/engine/store/memory"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/transport/response"
)

const testVersion = "1.4.0"

// faultyEngine 在真实引擎之上注入故障与钩子.
type faultyEngine struct {
	*engine.CronEngine

	mu          sync.Mutex
	detailHook  func(key job.Key) error
	createHook  func(key job.Key) error
	triggerHook func(key job.Key) error
}

func (f *faultyEngine) GetJobDetail(ctx context.Context, key job.Key) (*engine.StoredJob, error) {
	f.mu.Lock()
	hook := f.detailHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return nil, err
		}
	}
	return f.CronEngine.GetJobDetail(ctx, key)
}

func (f *faultyEngine) CreateJob(ctx context.Context, j *engine.StoredJob) error {
	f.mu.Lock()
	hook := f.createHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(j.Key); err != nil {
			return err
		}
	}
	return f.CronEngine.CreateJob(ctx, j)
}

func (f *faultyEngine) CreateTrigger(ctx context.Context, key job.Key) (time.Time, error) {
	f.mu.Lock()
	hook := f.triggerHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return time.Time{}, err
		}
	}
	return f.CronEngine.CreateTrigger(ctx, key)
}

// corruptStore 将标记的任务记录报告为无法解码.
type corruptStore struct {
	*memory.Store

	mu      sync.Mutex
	corrupt map[job.Key]bool
}

func (c *corruptStore) markCorrupt(key job.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt[key] = true
}

func (c *corruptStore) Get(ctx context.Context, key job.Key) (*store.Record, error) {
	c.mu.Lock()
	bad := c.corrupt[key]
	c.mu.Unlock()
	if bad {
		if _, err := c.Store.Get(ctx, key); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: decode %s: unexpected end of JSON input", store.ErrCorrupt, key)
	}
	return c.Store.Get(ctx, key)
}

func (c *corruptStore) Create(ctx context.Context, rec *store.Record) error {
	c.mu.Lock()
	delete(c.corrupt, rec.Key)
	c.mu.Unlock()
	return c.Store.Create(ctx, rec)
}

// CoordinatorTestSuite 协调器测试套件.
type CoordinatorTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *corruptStore
	engine  *faultyEngine
	metrics *metrics.Collector
	svc     *Service
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &corruptStore{Store: memory.New(), corrupt: make(map[job.Key]bool)}
	now := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)

	cron := engine.New(
		engine.WithStore(s.store),
		engine.WithLocation(time.UTC),
		engine.WithClock(func() time.Time { return now }),
	)
	s.Require().NoError(cron.RegisterJobType(DefaultJobType, func(context.Context, engine.ExecutionContext) error {
		return nil
	}))
	s.engine = &faultyEngine{CronEngine: cron}
	s.metrics = metrics.MustNew(&metrics.Config{Namespace: "coordinator_test"})

	svc, err := New(s.engine, WithVersion(testVersion), WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *CoordinatorTestSuite) TearDownTest() {
	_ = s.svc.Stop(context.Background())
}

func (s *CoordinatorTestSuite) descriptor(version, expression string) *job.Descriptor {
	return &job.Descriptor{
		ProducerVersion:  version,
		Settings:         json.RawMessage(`{"service_key":"reports","uri":"/daily"}`),
		ScheduleType:     job.ScheduleCron,
		ScheduleSettings: json.RawMessage(`{"expression":"` + expression + `","location":"UTC"}`),
	}
}

func (s *CoordinatorTestSuite) dailyReport() *job.Descriptor {
	return s.descriptor(testVersion, "0 2 * * *")
}

func (s *CoordinatorTestSuite) put(key job.Key, typ, version string) {
	d := s.descriptor(version, "0 2 * * *")
	s.store.Put(store.Record{Key: key, Type: typ, Descriptor: *d, Hash: d.ContentHash()})
}

func (s *CoordinatorTestSuite) start() {
	s.Require().NoError(s.svc.Start(s.ctx))
}

func (s *CoordinatorTestSuite) keys() []job.Key {
	keys, err := s.store.Keys(s.ctx)
	s.Require().NoError(err)
	return keys
}

func (s *CoordinatorTestSuite) TestNew_Validation() {
	_, err := New(nil, WithVersion(testVersion))
	s.ErrorIs(err, ErrNilEngine)

	_, err = New(s.engine)
	s.ErrorIs(err, ErrVersionRequired)
}

func (s *CoordinatorTestSuite) TestScheduleJob_DailyReport() {
	s.start()

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
	s.True(result.NextFireTime.Equal(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)))

	state, err := s.engine.GetTriggerState(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(engine.StateNormal, state)

	detail, err := s.engine.GetJobDetail(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(DefaultJobType, detail.Type)
	s.Equal(testVersion, detail.Descriptor.ProducerVersion)
}

func (s *CoordinatorTestSuite) TestScheduleJob_Idempotent() {
	s.start()

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	first, err := s.engine.GetJobDetail(s.ctx, "daily-report")
	s.Require().NoError(err)

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeUnchanged, result.Outcome)

	second, err := s.engine.GetJobDetail(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.True(first.CreatedAt.Equal(second.CreatedAt))
	s.Equal(first.Hash, second.Hash)

	s.Equal(1.0, s.counter("schedule_total", "created"))
	s.Equal(1.0, s.counter("schedule_total", "unchanged"))
}

func (s *CoordinatorTestSuite) TestScheduleJob_FormattingDoesNotChangeHash() {
	s.start()

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)

	reformatted := s.dailyReport()
	reformatted.Settings = json.RawMessage(`{ "uri": "/daily", "service_key": "reports" }`)
	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", reformatted)
	s.Require().NoError(err)
	s.Equal(OutcomeUnchanged, result.Outcome)
}

func (s *CoordinatorTestSuite) TestScheduleJob_UpdateReplaces() {
	s.start()

	var scheduled []Result
	s.svc.opts.onScheduled = func(_ job.Key, r Result) { scheduled = append(scheduled, r) }

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.descriptor(testVersion, "30 3 * * *"))
	s.Require().NoError(err)
	s.Equal(OutcomeUpdated, result.Outcome)
	s.True(result.NextFireTime.Equal(time.Date(2026, 3, 1, 3, 30, 0, 0, time.UTC)))

	trigger, err := s.engine.GetTrigger(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.True(trigger.NextFireTime.Equal(result.NextFireTime))
	s.Len(scheduled, 2)
	s.Equal([]job.Key{"daily-report"}, s.keys())
}

func (s *CoordinatorTestSuite) TestScheduleJob_VersionMismatch() {
	s.start()

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.descriptor("1.3.0", "0 2 * * *"))
	s.Require().Error(err)
	s.True(response.ExtractCode(err).Is(response.CodeVersionMismatch))
	s.Equal("Invalid SDK version", response.ExtractMessage(err))
	s.True(response.IsValidation(err))
	s.Empty(s.keys())
}

func (s *CoordinatorTestSuite) TestScheduleJob_VersionMismatchBeforeReady() {
	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	_, err := s.svc.ScheduleJob(ctx, "daily-report", s.descriptor("", "0 2 * * *"))
	s.True(response.ExtractCode(err).Is(response.CodeVersionMismatch))
}

func (s *CoordinatorTestSuite) TestScheduleJob_MalformedDescriptor() {
	s.start()

	desc := s.dailyReport()
	desc.ScheduleSettings = json.RawMessage(`{"expression":"not a cron"}`)
	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", desc)
	s.True(response.ExtractCode(err).Is(response.CodeValidationFailed))

	desc = s.dailyReport()
	desc.ScheduleType = "weekly"
	_, err = s.svc.ScheduleJob(s.ctx, "daily-report", desc)
	s.True(response.ExtractCode(err).Is(response.CodeValidationFailed))

	_, err = s.svc.ScheduleJob(s.ctx, "", s.dailyReport())
	s.True(response.ExtractCode(err).Is(response.CodeMissingParam))

	_, err = s.svc.ScheduleJob(s.ctx, "daily-report", nil)
	s.True(response.ExtractCode(err).Is(response.CodeMissingParam))

	s.Empty(s.keys())
}

func (s *CoordinatorTestSuite) TestScheduleJob_ReplacesUnsupportedType() {
	s.start()
	s.put("daily-report", "legacy", testVersion)

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeUpdated, result.Outcome)

	detail, err := s.engine.GetJobDetail(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(DefaultJobType, detail.Type)
}

func (s *CoordinatorTestSuite) TestScheduleJob_BlocksUntilReady() {
	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	_, err := s.svc.ScheduleJob(ctx, "daily-report", s.dailyReport())
	s.True(response.ExtractCode(err).Is(response.CodeTimeout))
	s.Empty(s.keys())

	done := make(chan error, 1)
	go func() {
		_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
		done <- err
	}()

	select {
	case <-done:
		s.FailNow("ScheduleJob returned before the coordinator was ready")
	case <-time.After(50 * time.Millisecond):
	}

	s.start()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.FailNow("ScheduleJob did not resume after Start")
	}
}

func (s *CoordinatorTestSuite) TestWaitReady_StopReleasesWaiters() {
	done := make(chan error, 1)
	go func() { done <- s.svc.DeleteJob(s.ctx, "daily-report") }()

	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(s.svc.Stop(s.ctx))

	select {
	case err := <-done:
		s.True(response.ExtractCode(err).Is(response.CodeServiceUnavailable))
	case <-time.After(time.Second):
		s.FailNow("waiter was not released by Stop")
	}
}

func (s *CoordinatorTestSuite) TestStart_InvalidatesStaleJobs() {
	s.put("current", DefaultJobType, testVersion)
	s.put("empty-version", DefaultJobType, "")
	s.put("old-version", DefaultJobType, "1.3.0")
	s.put("unsupported", "legacy", testVersion)

	s.False(s.svc.Ready())
	s.start()
	s.True(s.svc.Ready())

	s.Equal([]job.Key{"current"}, s.keys())
	s.Equal(3.0, s.counter("invalidated_jobs_total", ""))

	triggers, err := s.engine.GetTriggerKeys(s.ctx)
	s.Require().NoError(err)
	s.Equal([]job.Key{"current"}, triggers)
}

func (s *CoordinatorTestSuite) TestStart_InvalidatesCorruptRecord() {
	s.put("current", DefaultJobType, testVersion)
	s.put("corrupt", DefaultJobType, testVersion)
	s.store.markCorrupt("corrupt")

	s.start()
	s.Equal([]job.Key{"current"}, s.keys())

	result, err := s.svc.ScheduleJob(s.ctx, "corrupt", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
}

func (s *CoordinatorTestSuite) TestScheduleJob_ReplacesCorruptRecord() {
	s.start()
	s.put("daily-report", DefaultJobType, testVersion)
	s.store.markCorrupt("daily-report")

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeUpdated, result.Outcome)

	detail, err := s.engine.GetJobDetail(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(testVersion, detail.Descriptor.ProducerVersion)
}

func (s *CoordinatorTestSuite) TestStart_PerJobIsolation() {
	s.put("a-old", DefaultJobType, "1.3.0")
	s.put("b-broken", DefaultJobType, "1.3.0")
	s.put("c-old", DefaultJobType, "1.3.0")

	s.engine.detailHook = func(key job.Key) error {
		if key == "b-broken" {
			return errors.New("storage hiccup")
		}
		return nil
	}

	s.start()
	s.True(s.svc.Ready())
	s.Equal([]job.Key{"b-broken"}, s.keys())
}

func (s *CoordinatorTestSuite) TestStart_Canceled() {
	s.put("a-old", DefaultJobType, "1.3.0")
	s.put("b-old", DefaultJobType, "1.3.0")

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.svc.Start(ctx)
	s.True(response.IsCanceled(err))
	s.False(s.svc.Ready())
	s.Len(s.keys(), 2)
	s.False(s.engine.Running())
}

func (s *CoordinatorTestSuite) TestStart_CanceledMidSweep() {
	s.put("a-old", DefaultJobType, "1.3.0")
	s.put("b-old", DefaultJobType, "1.3.0")
	s.put("c-old", DefaultJobType, "1.3.0")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.engine.detailHook = func(key job.Key) error {
		if key == "a-old" {
			cancel()
		}
		return nil
	}

	err := s.svc.Start(ctx)
	s.True(response.IsCanceled(err))
	s.False(s.svc.Ready())
	s.Equal([]job.Key{"b-old", "c-old"}, s.keys())
}

func (s *CoordinatorTestSuite) TestScheduleJob_SameKeyIsSerialized() {
	s.start()

	var inFlight, maxInFlight atomic.Int32
	s.engine.createHook = func(job.Key) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			expr := "0 2 * * *"
			if i%2 == 1 {
				expr = "0 3 * * *"
			}
			_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.descriptor(testVersion, expr))
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(int32(1), maxInFlight.Load())
	s.Equal([]job.Key{"daily-report"}, s.keys())
}

func (s *CoordinatorTestSuite) TestScheduleJob_EngineErrorReleasesLock() {
	s.start()

	var failed atomic.Bool
	s.engine.createHook = func(job.Key) error {
		if failed.CompareAndSwap(false, true) {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.True(response.ExtractCode(err).Is(response.CodeEngineError))
	s.NotContains(response.ExtractMessage(err), "disk full")

	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	result, err := s.svc.ScheduleJob(ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
	s.Equal(1.0, s.counter("schedule_total", "error"))
}

func (s *CoordinatorTestSuite) TestScheduleJob_TriggerErrorSurfaces() {
	s.start()
	var calls atomic.Int32
	s.engine.triggerHook = func(job.Key) error {
		if calls.Add(1) == 1 {
			return errors.New("transient store error")
		}
		return nil
	}

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.True(response.ExtractCode(err).Is(response.CodeEngineError))
	s.Empty(s.keys())

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)

	state, err := s.engine.GetTriggerState(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(engine.StateNormal, state)
}

func (s *CoordinatorTestSuite) TestScheduleJob_UnchangedReinstallsMissingTrigger() {
	s.start()
	s.put("daily-report", DefaultJobType, testVersion)

	state, err := s.engine.GetTriggerState(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(engine.StateNone, state)

	result, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)
	s.Equal(OutcomeUnchanged, result.Outcome)
	s.False(result.NextFireTime.IsZero())

	state, err = s.engine.GetTriggerState(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.Equal(engine.StateNormal, state)
}

func (s *CoordinatorTestSuite) TestDeleteJob() {
	s.start()

	err := s.svc.DeleteJob(s.ctx, "daily-report")
	s.True(response.ExtractCode(err).Is(response.CodeJobNotFound))
	s.True(response.IsNotFound(err))

	_, err = s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteJob(s.ctx, "daily-report"))
	s.Empty(s.keys())

	exists, err := s.engine.CheckJobExists(s.ctx, "daily-report")
	s.Require().NoError(err)
	s.False(exists)

	err = s.svc.DeleteJob(s.ctx, "")
	s.True(response.ExtractCode(err).Is(response.CodeMissingParam))
}

func (s *CoordinatorTestSuite) TestStop_RejectsWrites() {
	s.start()
	s.Require().NoError(s.svc.Stop(s.ctx))

	_, err := s.svc.ScheduleJob(s.ctx, "daily-report", s.dailyReport())
	s.Require().Error(err)
	s.True(response.ExtractCode(err).Is(response.CodeServiceUnavailable))
}

// counter 从注册表读取指标值，labelValue 为空时匹配无标签指标.
func (s *CoordinatorTestSuite) counter(name, labelValue string) float64 {
	families, err := s.metrics.Gatherer().Gather()
	s.Require().NoError(err)
	for _, mf := range families {
		if mf.GetName() != "coordinator_test_coordinator_"+name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue != "" && (len(m.GetLabel()) == 0 || m.GetLabel()[0].GetValue() != labelValue) {
				continue
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestResult_JSON(t *testing.T) {
	b, err := json.Marshal(Result{Outcome: OutcomeUnchanged})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"unchanged"}`, string(b))
}
