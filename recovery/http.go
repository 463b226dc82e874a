package recovery

import (
	"net/http"

	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// HTTPMiddleware 返回 HTTP panic 恢复中间件.
//
// panic 被记录后以 CodeInternal 响应信封返回 500.
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)
	if o.Logger == nil {
		panic("recovery: logger is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				stack := CaptureStack(o.StackSize)

				o.Logger.WithContext(r.Context()).With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(stack)),
				).Error("[Recovery] HTTP 处理器 panic 已恢复")

				if o.Handler != nil {
					_ = o.Handler(r, p, stack)
				}
				_ = response.WriteError(w, response.NewError(response.CodeInternal))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
