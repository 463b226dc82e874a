// Package client 提供访问任务协调器 HTTP API 的客户端.
//
// 客户端将失败映射为业务错误：网络与 5xx 网关类失败为通信错误，
// 4xx 校验失败为校验错误，其余按响应信封中的错误码还原.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/Tsukikage7/jobhub/coordinator"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// JobsPath 任务 API 路径前缀.
const JobsPath = "/api/v1/scheduler/jobs/"

// Client 协调器 HTTP 客户端.
type Client struct {
	httpClient *http.Client
	opts       *options
	baseURL    string
}

// New 创建客户端，baseURL 形如 http://jobhub:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}

	transport := o.transport
	if transport == nil {
		transport = cleanhttp.DefaultPooledTransport()
	}

	o.logger.With(
		logger.String("name", o.name),
		logger.String("baseURL", baseURL),
	).Debug("[HTTP] 协调器客户端初始化成功")

	return &Client{
		httpClient: &http.Client{Timeout: o.timeout, Transport: transport},
		opts:       o,
		baseURL:    baseURL,
	}, nil
}

// BaseURL 返回协调器地址.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ScheduleJob 提交任务描述符.
func (c *Client) ScheduleJob(ctx context.Context, id string, desc *job.Descriptor) (coordinator.Result, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var result coordinator.Result
	err = c.call(ctx, http.MethodPut, JobsPath+url.PathEscape(id), bytes.NewReader(body), &result)
	return result, err
}

// DeleteJob 删除任务.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, JobsPath+url.PathEscape(id), nil, nil)
}

// Do 执行 HTTP 请求.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.opts.headers {
		req.Header.Set(key, value)
	}
	tracing.InjectHTTPHeaders(ctx, req)

	return c.httpClient.Do(req)
}

func (c *Client) call(ctx context.Context, method, path string, body io.Reader, out any) error {
	start := time.Now()
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response.Wrap(response.CodeUpstreamError, err)
	}

	c.opts.logger.WithContext(ctx).With(
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("latency", time.Since(start)),
	).Debug("[HTTP] 协调器请求完成")

	return decodeEnvelope(resp.StatusCode, raw, out)
}

// envelope 响应信封，Code 为空表示响应体不是信封.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope 解析响应信封.
//
// 非 2xx 响应一定返回错误，信封携带失败码时优先使用，否则按 HTTP 状态码映射.
// 2xx 响应缺少信封视为上游错误.
func decodeEnvelope(status int, raw []byte, out any) error {
	statusCode := response.FromHTTPStatus(status)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && env.Code == nil {
		decodeErr = errors.New("missing envelope code")
	}

	if !statusCode.Is(response.CodeSuccess) {
		if decodeErr == nil && *env.Code != response.CodeSuccess.Num {
			return response.Response[any]{Code: *env.Code, Message: env.Message}.Err(statusCode)
		}
		return response.NewErrorWithMessage(statusCode, http.StatusText(status))
	}

	if decodeErr != nil {
		return response.WrapWithMessage(response.CodeUpstreamError, "malformed response body",
			fmt.Errorf("%w: %v", ErrDecodeResponse, decodeErr))
	}
	if *env.Code != response.CodeSuccess.Num {
		return response.Response[any]{Code: *env.Code, Message: env.Message}.Err(response.CodeUpstreamError)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return response.Wrap(response.CodeUpstreamError, fmt.Errorf("%w: %v", ErrDecodeResponse, err))
	}
	return nil
}

// transportError 将请求发送失败映射为取消或通信错误.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return response.Wrap(response.CodeTimeout, err)
		}
		return response.Wrap(response.CodeCanceled, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return response.Wrap(response.CodeTimeout, err)
	}
	return response.Wrap(response.CodeServiceUnavailable, err)
}

// Option 配置选项函数.
type Option func(*options)

// options 客户端配置.
type options struct {
	name      string
	logger    logger.Logger
	timeout   time.Duration
	headers   map[string]string
	transport http.RoundTripper
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		name:    "Scheduler-Client",
		timeout: 30 * time.Second,
		headers: make(map[string]string),
	}
}

// WithName 设置客户端名称（用于日志）.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger 设置日志实例.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTimeout 设置单次请求超时.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHeader 添加默认请求头.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// WithTransport 设置自定义 Transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}
