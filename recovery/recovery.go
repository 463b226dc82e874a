// Package recovery 提供 panic 恢复.
//
// HTTPMiddleware 用于 API 服务器，PanicError 用于任务执行包装器记录任务体的 panic.
package recovery

import (
	"fmt"
	"runtime"

	"github.com/Tsukikage7/jobhub/logger"
)

// Handler 自定义 panic 处理函数，req 为 *http.Request.
type Handler func(req any, p any, stack []byte) error

// Options 配置选项.
type Options struct {
	// Logger 日志记录器，必需.
	Logger logger.Logger
	// Handler 自定义 panic 处理函数.
	Handler Handler
	// StackSize 堆栈大小，默认 64KB.
	StackSize int
}

// Option 配置函数.
type Option func(*Options)

// WithLogger 设置日志记录器.
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithHandler 设置自定义 panic 处理函数.
func WithHandler(h Handler) Option {
	return func(o *Options) {
		o.Handler = h
	}
}

// WithStackSize 设置堆栈大小.
func WithStackSize(size int) Option {
	return func(o *Options) {
		o.StackSize = size
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{StackSize: 64 * 1024}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CaptureStack 捕获当前 goroutine 的堆栈.
func CaptureStack(size int) []byte {
	if size <= 0 {
		size = 64 * 1024
	}
	stack := make([]byte, size)
	n := runtime.Stack(stack, false)
	return stack[:n]
}

// PanicError 表示被恢复的 panic.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError 根据 panic 值创建错误并捕获堆栈.
func NewPanicError(p any) *PanicError {
	return &PanicError{Value: p, Stack: CaptureStack(0)}
}

// Error 实现 error 接口.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 返回原始错误（如果 panic 值是 error）.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
