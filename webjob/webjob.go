// Package webjob 实现默认任务体：触发时调用任务所属服务的 HTTP 端点.
package webjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// JobType 在触发引擎中注册的任务类型名称.
const JobType = "webrequest"

// 预定义错误.
var (
	ErrUnknownService = errors.New("webjob: unknown service key")
	ErrEmptyURI       = errors.New("webjob: uri is empty")
)

// Resolver 将服务标识解析为基础地址.
type Resolver interface {
	Resolve(serviceKey string) (string, error)
}

// StaticResolver 基于配置的静态服务表.
type StaticResolver map[string]string

// Resolve 实现 Resolver.
func (m StaticResolver) Resolve(serviceKey string) (string, error) {
	base, ok := m[serviceKey]
	if !ok || base == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, serviceKey)
	}
	return strings.TrimRight(base, "/"), nil
}

// Runner 执行 web 请求任务.
type Runner struct {
	resolver   Resolver
	httpClient *http.Client
	log        logger.Logger
}

// Option Runner 配置选项.
type Option func(*Runner)

// WithHTTPClient 设置 HTTP 客户端.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		r.httpClient = c
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// New 创建 Runner.
func New(resolver Resolver, opts ...Option) *Runner {
	r := &Runner{resolver: resolver}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		// 超时由每个任务的设置控制
		r.httpClient = cleanhttp.DefaultPooledClient()
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	return r
}

// Run 向服务发送 POST 请求，非 2xx 响应视为失败.
func (r *Runner) Run(ctx context.Context, s job.WebRequestSettings) error {
	target, err := r.target(s)
	if err != nil {
		return response.WrapWithMessage(response.CodeInvalidParam, err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.EffectiveTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, http.NoBody)
	if err != nil {
		return response.WrapWithMessage(response.CodeInvalidParam, err.Error(), err)
	}
	tracing.InjectHTTPHeaders(ctx, req)

	r.log.WithContext(ctx).With(logger.String("url", target)).Debug("[WebJob] 调用服务端点")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return response.Wrap(response.CodeTimeout, err)
		}
		return response.Wrap(response.CodeServiceUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response.NewErrorWithMessage(response.CodeUpstreamError,
			fmt.Sprintf("%s %s returned %d", http.MethodPost, target, resp.StatusCode))
	}
	return nil
}

// target 拼接请求地址与查询参数.
func (r *Runner) target(s job.WebRequestSettings) (string, error) {
	if s.URI == "" {
		return "", ErrEmptyURI
	}
	base, err := r.resolver.Resolve(s.ServiceKey)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(base + "/" + strings.TrimLeft(s.URI, "/"))
	if err != nil {
		return "", err
	}
	if len(s.Parameters) > 0 {
		q := u.Query()
		for k, v := range s.Parameters {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
