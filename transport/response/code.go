package response

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code 业务错误码.
type Code struct {
	Num        int        // 数字错误码
	Message    string     // 默认错误消息
	HTTPStatus int        // 对应的 HTTP 状态码
	GRPCCode   codes.Code // 对应的 gRPC 状态码
}

// Error 实现 error 接口.
func (c Code) Error() string {
	return c.Message
}

// WithMessage 创建带自定义消息的错误码副本.
func (c Code) WithMessage(msg string) Code {
	c.Message = msg
	return c
}

// Is 判断是否为指定错误码.
func (c Code) Is(target Code) bool {
	return c.Num == target.Num
}

// 预定义错误码.
//
// 错误码规范：
//   - 0: 成功
//   - 1xxxx: 通用错误
//   - 3xxxx: 请求参数错误，对应 ValidationError
//   - 4xxxx: 资源错误，对应 NotFoundError
//   - 5xxxx: 服务器内部错误，含调度引擎错误
//   - 6xxxx: 外部服务错误，对应 CommunicationError
var (
	// 成功
	CodeSuccess = Code{0, "成功", http.StatusOK, codes.OK}

	// 通用错误 1xxxx
	CodeUnknown  = Code{10000, "未知错误", http.StatusInternalServerError, codes.Unknown}
	CodeCanceled = Code{10001, "请求已取消", http.StatusRequestTimeout, codes.Canceled}
	CodeTimeout  = Code{10002, "请求超时", http.StatusGatewayTimeout, codes.DeadlineExceeded}

	// 请求参数错误 3xxxx
	CodeInvalidParam     = Code{30001, "参数无效", http.StatusBadRequest, codes.InvalidArgument}
	CodeMissingParam     = Code{30002, "缺少必需参数", http.StatusBadRequest, codes.InvalidArgument}
	CodeValidationFailed = Code{30003, "参数验证失败", http.StatusBadRequest, codes.InvalidArgument}
	CodeVersionMismatch  = Code{30004, "SDK 版本无效", http.StatusBadRequest, codes.FailedPrecondition}

	// 资源错误 4xxxx
	CodeNotFound    = Code{40001, "资源不存在", http.StatusNotFound, codes.NotFound}
	CodeJobNotFound = Code{40005, "任务不存在", http.StatusNotFound, codes.NotFound}

	// 服务器内部错误 5xxxx
	CodeInternal       = Code{50001, "服务器内部错误", http.StatusInternalServerError, codes.Internal}
	CodeNotImplemented = Code{50002, "功能未实现", http.StatusNotImplemented, codes.Unimplemented}
	CodeDatabaseError  = Code{50003, "数据库错误", http.StatusInternalServerError, codes.Internal}
	CodeEngineError    = Code{50004, "调度引擎错误", http.StatusInternalServerError, codes.Internal}

	// 外部服务错误 6xxxx
	CodeServiceUnavailable = Code{60001, "服务不可用", http.StatusServiceUnavailable, codes.Unavailable}
	CodeUpstreamError      = Code{60002, "上游服务错误", http.StatusBadGateway, codes.Unavailable}
)

var knownCodes = []Code{
	CodeSuccess,
	CodeUnknown, CodeCanceled, CodeTimeout,
	CodeInvalidParam, CodeMissingParam, CodeValidationFailed, CodeVersionMismatch,
	CodeNotFound, CodeJobNotFound,
	CodeInternal, CodeNotImplemented, CodeDatabaseError, CodeEngineError,
	CodeServiceUnavailable, CodeUpstreamError,
}

// NewCode 创建自定义错误码.
func NewCode(num int, message string, httpStatus int, grpcCode codes.Code) Code {
	return Code{
		Num:        num,
		Message:    message,
		HTTPStatus: httpStatus,
		GRPCCode:   grpcCode,
	}
}

// LookupCode 按数字错误码查找预定义错误码.
//
// 客户端解析响应信封时使用，未知错误码返回 false.
func LookupCode(num int) (Code, bool) {
	for _, c := range knownCodes {
		if c.Num == num {
			return c, true
		}
	}
	return Code{}, false
}

// FromHTTPStatus 根据 HTTP 状态码映射到业务错误码.
func FromHTTPStatus(status int) Code {
	switch {
	case status >= 200 && status < 300:
		return CodeSuccess
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusRequestTimeout:
		return CodeCanceled
	case status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	case status == http.StatusBadGateway:
		return CodeUpstreamError
	case status >= 400 && status < 500:
		return CodeInvalidParam
	default:
		return CodeInternal
	}
}
