// Command jobhub 运行任务注册协调服务.
//
// 协调器接收任务所属服务提交的任务描述符，持久化到配置的任务存储，
// 并在触发时通过 web 请求回调任务所属服务.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/Tsukikage7/jobhub/app"
	"github.com/Tsukikage7/jobhub/config"
	"github.com/Tsukikage7/jobhub/coordinator"
	"github.com/Tsukikage7/jobhub/database"
	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/engine/store"
	"github.com/Tsukikage7/jobhub/engine/store/gormstore"
	"github.com/Tsukikage7/jobhub/engine/store/memory"
	"github.com/Tsukikage7/jobhub/engine/store/redisstore"
	"github.com/Tsukikage7/jobhub/execution"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/health"
	"github.com/Tsukikage7/jobhub/transport/http/server"
	"github.com/Tsukikage7/jobhub/webjob"
)

// version 协调器与注册方共享的 SDK 版本，构建时通过 -ldflags "-X main.version=..." 注入.
var version = "1.4.0"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config file")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "jobhub:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.LoadCoordinator(cfgPath)
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

	st, cleanup, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if cleanup != nil {
		opts = append(opts, app.RegisterCleanup("store", cleanup, 20))
	}

	loc, err := cfg.Engine.TimeLocation()
	if err != nil {
		return err
	}
	eng := engine.New(
		engine.WithStore(st),
		engine.WithLocation(loc),
		engine.WithLogger(log),
	)

	runner := webjob.New(webjob.StaticResolver(cfg.Services), webjob.WithLogger(log))
	if err := eng.RegisterJobType(webjob.JobType, execution.Wrap(runner.Run,
		execution.WithLogger(log),
		execution.WithVersion(version),
		execution.WithMetrics(collector),
	)); err != nil {
		return err
	}

	svc, err := coordinator.New(eng,
		coordinator.WithVersion(version),
		coordinator.WithJobType(webjob.JobType),
		coordinator.WithLogger(log),
		coordinator.WithMetrics(collector),
		coordinator.WithOnScheduled(func(key job.Key, result coordinator.Result) {
			log.With(
				logger.String("jobId", string(key)),
				logger.String("outcome", string(result.Outcome)),
				logger.Time("nextFireTime", result.NextFireTime),
			).Info("[JobHub] 任务下次触发时间")
		}),
	)
	if err != nil {
		return err
	}

	triggers := health.NewTriggerStateChecker(eng, cfg.Engine.TriggerCheckInterval, log)
	readiness := []health.Checker{health.NewReadyChecker("coordinator", svc), triggers}
	if p, ok := st.(health.Pinger); ok {
		readiness = append(readiness, health.NewPingChecker("jobs-store", cfg.Store.Type, p))
	}

	mux := http.NewServeMux()
	server.NewAPI(svc, log).RegisterRoutes(mux)
	srvOpts := []server.Option{
		server.WithConfig(cfg.Server),
		server.WithLogger(log),
		server.WithMetrics(collector),
		server.WithReadinessChecker(readiness...),
	}
	if cfg.Tracing.Enabled {
		srvOpts = append(srvOpts, server.WithTrace(cfg.Name))
	}
	srv := server.New(mux, srvOpts...)

	return app.New(opts...).
		Use(srv).
		Add(svc, triggers).
		Run()
}

// openStore 按配置创建任务存储.
//
// 存储本身由引擎 Shutdown 关闭，返回的清理函数只释放存储之外的连接，可能为 nil.
func openStore(cfg *config.Coordinator, log logger.Logger) (store.Store, app.CleanupFunc, error) {
	switch cfg.Store.Type {
	case config.StoreDatabase:
		db, err := database.Open(&cfg.Store.Database, log)
		if err != nil {
			return nil, nil, err
		}
		st, err := gormstore.New(db)
		if err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
		return st, func(context.Context) error { return database.Close(db) }, nil
	case config.StoreRedis:
		st, err := redisstore.Open(context.Background(), &cfg.Store.Redis, log)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	default:
		log.Warn("[JobHub] 使用内存任务存储，重启后任务将丢失")
		return memory.New(), nil, nil
	}
}
