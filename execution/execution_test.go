package execution

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
)

func executionContext(settings string) engine.ExecutionContext {
	return engine.ExecutionContext{
		Key:  "daily-report",
		Type: "webrequest",
		Descriptor: job.Descriptor{
			ProducerVersion:  "1.4.0",
			Settings:         json.RawMessage(settings),
			ScheduleType:     job.ScheduleCron,
			ScheduleSettings: json.RawMessage(`{"expression":"0 2 * * *"}`),
		},
		FireTime: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
	}
}

func observed() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func TestWrap_Success(t *testing.T) {
	log, logs := observed()
	collector := metrics.MustNew(&metrics.Config{Namespace: "execution_test"})

	var got job.WebRequestSettings
	fn := Wrap(func(ctx context.Context, s job.WebRequestSettings) error {
		got = s
		assert.NotEmpty(t, logger.TraceIDFromContext(ctx))
		return nil
	}, WithLogger(log), WithVersion("1.5.0"), WithMetrics(collector))

	err := fn(context.Background(), executionContext(`{"service_key":"reports","uri":"/daily"}`))
	require.NoError(t, err)
	assert.Equal(t, "reports", got.ServiceKey)

	started := logs.FilterMessage("[Execution] 任务开始执行").All()
	require.Len(t, started, 1)
	assert.Equal(t, zapcore.DebugLevel, started[0].Level)
	fields := started[0].ContextMap()
	assert.Equal(t, "1.5.0", fields["version"])
	assert.Equal(t, "1.4.0", fields["producerVersion"])

	done := logs.FilterMessage("[Execution] 任务执行完成").All()
	require.Len(t, done, 1)
	assert.Equal(t, zapcore.InfoLevel, done[0].Level)
	assert.Equal(t, "daily-report", done[0].ContextMap()["jobId"])
}

func TestWrap_FailureIsContained(t *testing.T) {
	log, logs := observed()
	fn := Wrap(func(context.Context, job.WebRequestSettings) error {
		return errors.New("report service returned 500")
	}, WithLogger(log))

	assert.NoError(t, fn(context.Background(), executionContext(`{"service_key":"reports","uri":"/daily"}`)))

	failed := logs.FilterMessage("[Execution] 任务执行失败").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Contains(t, failed[0].ContextMap()["error"], "500")
}

func TestWrap_PanicIsContained(t *testing.T) {
	log, logs := observed()
	fn := Wrap(func(context.Context, job.WebRequestSettings) error {
		panic("nil map")
	}, WithLogger(log))

	assert.NotPanics(t, func() {
		assert.NoError(t, fn(context.Background(), executionContext(`{"service_key":"reports","uri":"/daily"}`)))
	})
	failed := logs.FilterMessage("[Execution] 任务执行失败").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "panic: nil map", failed[0].ContextMap()["error"])
	assert.Contains(t, failed[0].ContextMap()["stack"], "TestWrap_PanicIsContained")
}

func TestWrap_UndecodableSettings(t *testing.T) {
	log, logs := observed()
	called := false
	fn := Wrap(func(context.Context, job.WebRequestSettings) error {
		called = true
		return nil
	}, WithLogger(log))

	assert.NoError(t, fn(context.Background(), executionContext(`["not","an","object"]`)))
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("[Execution] 任务执行失败").Len())
}

func TestWrap_FreshCorrelationPerFiring(t *testing.T) {
	var ids []string
	fn := Wrap(func(ctx context.Context, _ job.WebRequestSettings) error {
		ids = append(ids, logger.TraceIDFromContext(ctx))
		return nil
	})

	ec := executionContext(`{"service_key":"reports","uri":"/daily"}`)
	require.NoError(t, fn(context.Background(), ec))
	require.NoError(t, fn(context.Background(), ec))

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestWrap_UsesSpanWhenTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	var traceID string
	fn := Wrap(func(ctx context.Context, _ job.WebRequestSettings) error {
		traceID = logger.TraceIDFromContext(ctx)
		return errors.New("boom")
	})
	require.NoError(t, fn(context.Background(), executionContext(`{"service_key":"reports","uri":"/daily"}`)))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "job daily-report", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Len(t, spans[0].Events(), 1)
}

func TestWrap_FailingFiringsKeepTriggerNormal(t *testing.T) {
	ctx := context.Background()
	eng := engine.New(engine.WithLocation(time.UTC))
	defer func() { _ = eng.Shutdown(ctx) }()

	var calls atomic.Int32
	require.NoError(t, eng.RegisterJobType("webrequest", Wrap(func(context.Context, job.WebRequestSettings) error {
		if calls.Add(1)%2 == 0 {
			panic("report renderer crashed")
		}
		return errors.New("report service returned 500")
	})))

	require.NoError(t, eng.CreateJob(ctx, &engine.StoredJob{
		Key:  "cache-refresh",
		Type: "webrequest",
		Descriptor: job.Descriptor{
			ProducerVersion:  "1.4.0",
			Settings:         json.RawMessage(`{"service_key":"reports","uri":"/cache"}`),
			ScheduleType:     job.ScheduleInterval,
			ScheduleSettings: json.RawMessage(`{"every":"1s"}`),
		},
	}))
	_, err := eng.CreateTrigger(ctx, "cache-refresh")
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		state, err := eng.GetTriggerState(ctx, "cache-refresh")
		return err == nil && state == engine.StateNormal
	}, time.Second, 10*time.Millisecond)

	trigger, err := eng.GetTrigger(ctx, "cache-refresh")
	require.NoError(t, err)
	assert.False(t, trigger.PrevFireTime.IsZero())
}
