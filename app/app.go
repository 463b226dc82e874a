// Package app 提供应用程序生命周期管理.
//
// Application 先在后台启动服务器，再按注册顺序依次启动组件；
// 收到信号或主动停止后先停止服务器，再按逆序停止组件并执行清理任务.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"sync"
	"syscall"

	"github.com/Tsukikage7/jobhub/logger"
)

// ErrRunning 应用正在运行.
var ErrRunning = errors.New("app: 应用正在运行")

// Startable 可启动的组件.
//
// Start 应在组件就绪后返回，长期运行的工作由组件自行放入后台.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Server 服务器接口，Start 阻塞直到服务器退出.
type Server interface {
	Startable
	Name() string
	Addr() string
}

// Application 应用程序，管理服务器与组件的生命周期.
type Application struct {
	opts       *options
	servers    []Server
	components []Startable
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
}

// New 创建应用程序.
func New(opts ...Option) *Application {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("app: logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册服务器.
func (a *Application) Use(servers ...Server) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, servers...)
	return a
}

// Add 注册组件，组件按注册顺序启动、逆序停止.
func (a *Application) Add(components ...Startable) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components = append(a.components, components...)
	return a
}

// Run 运行应用程序，阻塞直到收到信号、主动停止或服务器异常退出.
func (a *Application) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	a.mu.Unlock()

	a.opts.logger.With(
		logger.String("name", a.opts.name),
		logger.String("version", a.opts.version),
	).Info("[App] starting")

	serverErr := a.startServers()

	started, err := a.startComponents()
	if err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] component start failed")
		return errors.Join(err, a.shutdown(started))
	}

	return a.waitForShutdown(serverErr, started)
}

// Stop 主动停止应用程序.
func (a *Application) Stop() {
	a.cancel()
}

// Context 获取应用上下文，应用停止时取消.
func (a *Application) Context() context.Context {
	return a.ctx
}

// Name 获取应用名称.
func (a *Application) Name() string {
	return a.opts.name
}

// Version 获取应用版本.
func (a *Application) Version() string {
	return a.opts.version
}

func (a *Application) startServers() <-chan error {
	errCh := make(chan error, len(a.servers))
	if len(a.servers) == 0 {
		a.opts.logger.Warn("[App] no servers registered")
		return errCh
	}

	for _, srv := range a.servers {
		go func(s Server) {
			a.opts.logger.With(
				logger.String("server", s.Name()),
				logger.String("addr", s.Addr()),
			).Info("[App] starting server")
			if err := s.Start(a.ctx); err != nil {
				errCh <- fmt.Errorf("server %s: %w", s.Name(), err)
			}
		}(srv)
	}
	return errCh
}

// startComponents 依次启动组件，返回已成功启动的组件.
func (a *Application) startComponents() ([]Startable, error) {
	started := make([]Startable, 0, len(a.components))
	for _, c := range a.components {
		if err := c.Start(a.ctx); err != nil {
			return started, err
		}
		started = append(started, c)
	}
	return started, nil
}

func (a *Application) waitForShutdown(serverErr <-chan error, started []Startable) error {
	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.opts.logger.With(logger.String("signal", sig.String())).Info("[App] received signal")
	case <-a.ctx.Done():
		a.opts.logger.Info("[App] context cancelled")
	case runErr = <-serverErr:
		a.opts.logger.With(logger.Err(runErr)).Error("[App] server exited")
	}

	return errors.Join(runErr, a.shutdown(started))
}

func (a *Application) shutdown(started []Startable) error {
	a.cancel()
	a.opts.logger.With(
		logger.Duration("timeout", a.opts.gracefulTimeout),
	).Info("[App] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	a.stopServers(shutdownCtx)

	var errs []error
	for _, c := range slices.Backward(started) {
		if err := c.Stop(shutdownCtx); err != nil {
			a.opts.logger.With(logger.Err(err)).Error("[App] component stop failed")
			errs = append(errs, err)
		}
	}

	a.runCleanups(shutdownCtx)

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.opts.logger.Info("[App] stopped")
	return errors.Join(errs...)
}

func (a *Application) stopServers(ctx context.Context) {
	var wg sync.WaitGroup
	for _, srv := range a.servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			a.opts.logger.With(logger.String("server", s.Name())).Info("[App] stopping server")
			if err := s.Stop(ctx); err != nil {
				a.opts.logger.With(
					logger.String("server", s.Name()),
					logger.Err(err),
				).Error("[App] server stop failed")
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.opts.logger.Info("[App] all servers stopped")
	case <-ctx.Done():
		a.opts.logger.Warn("[App] shutdown timeout")
	}
}

func (a *Application) runCleanups(ctx context.Context) {
	if len(a.opts.cleanups) == 0 {
		return
	}

	cleanups := make([]Cleanup, len(a.opts.cleanups))
	copy(cleanups, a.opts.cleanups)
	sort.SliceStable(cleanups, func(i, j int) bool {
		return cleanups[i].Priority < cleanups[j].Priority
	})

	for _, c := range cleanups {
		if err := c.Fn(ctx); err != nil {
			a.opts.logger.With(
				logger.String("cleanup", c.Name),
				logger.Err(err),
			).Error("[App] cleanup failed")
		} else {
			a.opts.logger.With(logger.String("cleanup", c.Name)).Debug("[App] cleanup done")
		}
	}
}
