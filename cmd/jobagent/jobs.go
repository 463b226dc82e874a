package main

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Tsukikage7/jobhub/app"
	"github.com/Tsukikage7/jobhub/config"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/registrar"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// 任务回调路径.
const (
	dailyReportPath  = "/jobs/daily-report"
	cacheRefreshPath = "/jobs/cache-refresh"
)

// jobs 本服务拥有的任务.
type jobs struct {
	log       logger.Logger
	reports   atomic.Int64
	refreshes atomic.Int64
}

func newJobs(log logger.Logger) *jobs {
	return &jobs{log: log}
}

// registrars 返回静态注册器列表.
func (j *jobs) registrars(cfg *config.Agent, scheduler registrar.Scheduler, collector *metrics.Collector, log logger.Logger) ([]app.Startable, error) {
	common := func(id, uri string) []registrar.Option {
		return []registrar.Option{
			registrar.WithVersion(version),
			registrar.WithWebRequest(cfg.ServiceKey, uri),
			registrar.WithLogger(log),
			registrar.WithMetrics(collector),
			registrar.WithMaxDelay(cfg.Registrar.MaxDelay),
			registrar.WithEnabled(cfg.Registrar.Enabled(id)),
		}
	}

	daily, err := registrar.New("daily-report", job.ScheduleCron,
		func() job.CronSchedule {
			return job.CronSchedule{Expression: "0 2 * * *", Location: "UTC"}
		},
		scheduler,
		append(common("daily-report", dailyReportPath),
			registrar.WithParameters(map[string]string{"format": "pdf"}),
			registrar.WithTimeout(10*time.Minute),
		)...,
	)
	if err != nil {
		return nil, err
	}

	refresh, err := registrar.New("cache-refresh", job.ScheduleInterval,
		func() job.IntervalSchedule {
			return job.IntervalSchedule{Every: job.Duration(15 * time.Minute)}
		},
		scheduler,
		common("cache-refresh", cacheRefreshPath)...,
	)
	if err != nil {
		return nil, err
	}

	return []app.Startable{daily, refresh}, nil
}

// routes 注册任务回调端点.
func (j *jobs) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+dailyReportPath, j.dailyReport)
	mux.HandleFunc("POST "+cacheRefreshPath, j.cacheRefresh)
	return mux
}

func (j *jobs) dailyReport(w http.ResponseWriter, r *http.Request) {
	n := j.reports.Add(1)
	j.log.WithContext(r.Context()).With(
		logger.String("format", r.URL.Query().Get("format")),
		logger.Int64("run", n),
	).Info("[JobAgent] 生成日报")
	_ = response.WriteSuccess(w, map[string]int64{"run": n})
}

func (j *jobs) cacheRefresh(w http.ResponseWriter, r *http.Request) {
	n := j.refreshes.Add(1)
	j.log.WithContext(r.Context()).With(logger.Int64("run", n)).Info("[JobAgent] 刷新缓存")
	_ = response.WriteSuccess(w, map[string]int64{"run": n})
}
