// Package server 提供 HTTP 服务器实现.
//
// 服务器在调用方提供的 ServeMux 上注册健康检查和指标端点，
// 并按 追踪 → 指标 → panic 恢复 的顺序包装 handler.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/recovery"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/health"
)

// Config HTTP 服务器配置.
type Config struct {
	Name         string        `json:"name" toml:"name" yaml:"name" mapstructure:"name"`
	Addr         string        `json:"addr" toml:"addr" yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" toml:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" toml:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" toml:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Server HTTP 服务器.
type Server struct {
	opts    *options
	handler http.Handler
	health  *health.Health

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New 创建 HTTP 服务器，如果未设置 logger 会 panic.
func New(mux *http.ServeMux, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("http server: 必须设置 logger")
	}

	healthOpts := []health.Option{health.WithTimeout(o.healthTimeout), health.WithLogger(o.logger)}
	healthOpts = append(healthOpts, o.healthOptions...)
	h := health.New(healthOpts...)
	health.NewHTTPHandler(h).RegisterRoutes(mux)

	if o.metrics != nil {
		mux.Handle("GET "+o.metrics.Path(), o.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = recovery.HTTPMiddleware(recovery.WithLogger(o.logger))(handler)
	handler = metrics.HTTPMiddleware(o.metrics)(handler)
	if o.tracerName != "" {
		handler = tracing.HTTPMiddleware(o.tracerName)(handler)
	}

	return &Server{
		opts:    o,
		handler: handler,
		health:  h,
	}
}

// Start 启动 HTTP 服务器，阻塞直到服务器退出或 ctx 取消.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.readTimeout,
		WriteTimeout: s.opts.writeTimeout,
		IdleTimeout:  s.opts.idleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.opts.logger.Infof("[%s] 服务器启动 [addr:%s]", s.opts.name, ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	return nil
}

// Stop 停止 HTTP 服务器.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.opts.logger.Infof("[%s] 服务器停止中", s.opts.name)
	return srv.Shutdown(ctx)
}

// Name 返回服务器名称.
func (s *Server) Name() string {
	return s.opts.name
}

// Addr 返回服务器地址，启动后返回实际监听地址.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.addr
}

// Handler 返回包装后的 HTTP Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health 返回健康检查管理器.
func (s *Server) Health() *health.Health {
	return s.health
}
