// Command jobagent 是一个示例任务所属服务.
//
// 服务启动时通过注册器向协调器注册自身的周期任务，
// 并暴露协调器触发任务时回调的 HTTP 端点.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Tsukikage7/jobhub/app"
	"github.com/Tsukikage7/jobhub/config"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/http/client"
	"github.com/Tsukikage7/jobhub/transport/http/server"
)

// version 注册方使用的 SDK 版本，需与协调器一致.
var version = "1.4.0"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config file")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "jobagent:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.LoadAgent(cfgPath)
	if err != nil {
		return err
	}

	if cfg.Logger.ServiceName == "" {
		cfg.Logger.ServiceName = cfg.Name
	}
	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := []app.Option{
		app.Name(cfg.Name),
		app.Version(version),
		app.Logger(log),
		app.GracefulTimeout(cfg.GracefulTimeout),
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.NewTracer(&cfg.Tracing, cfg.Name, version)
		if err != nil {
			return err
		}
		opts = append(opts, app.RegisterCleanup("tracer", tp.Shutdown, 10))
	}

	collector, err := metrics.New(&cfg.Metrics)
	if err != nil {
		return err
	}

	scheduler, err := client.New(cfg.Scheduler.URL,
		client.WithName(cfg.Name),
		client.WithLogger(log),
		client.WithTimeout(cfg.Scheduler.Timeout),
	)
	if err != nil {
		return err
	}

	jobs := newJobs(log)
	registrars, err := jobs.registrars(cfg, scheduler, collector, log)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithConfig(cfg.Server),
		server.WithLogger(log),
		server.WithMetrics(collector),
	}
	if cfg.Tracing.Enabled {
		srvOpts = append(srvOpts, server.WithTrace(cfg.Name))
	}
	srv := server.New(jobs.routes(), srvOpts...)

	return app.New(opts...).
		Use(srv).
		Add(registrars...).
		Run()
}
