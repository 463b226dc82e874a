package response

import (
	"errors"
	"fmt"
)

// 注意：ExtractMessage 对内部错误（5xxxx、6xxxx）会隐藏详细信息。
// 如需完整错误信息（用于日志），请使用 ExtractMessageUnsafe。

// BusinessError 业务错误.
//
// 实现 error 接口，在协调器、客户端与 HTTP 层之间传递错误分类.
type BusinessError struct {
	Code    Code   // 错误码
	Message string // 自定义错误消息（可选）
	Cause   error  // 原始错误（可选）
}

// Error 实现 error 接口.
func (e *BusinessError) Error() string {
	msg := e.GetMessage()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap 返回原始错误.
func (e *BusinessError) Unwrap() error {
	return e.Cause
}

// GetMessage 获取错误消息.
func (e *BusinessError) GetMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message
}

// NewError 创建业务错误.
func NewError(code Code) *BusinessError {
	return &BusinessError{Code: code}
}

// NewErrorWithMessage 创建带自定义消息的业务错误.
func NewErrorWithMessage(code Code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// Wrap 包装错误为业务错误.
func Wrap(code Code, err error) *BusinessError {
	return &BusinessError{Code: code, Cause: err}
}

// WrapWithMessage 包装错误为带消息的业务错误.
func WrapWithMessage(code Code, message string, err error) *BusinessError {
	return &BusinessError{Code: code, Message: message, Cause: err}
}

// AsBusinessError 将错误转换为业务错误.
//
// 如果不是业务错误，返回 nil.
func AsBusinessError(err error) *BusinessError {
	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr
	}
	return nil
}

// ExtractCode 从错误中提取错误码.
//
// 如果是业务错误，返回对应的错误码；
// 否则返回 CodeInternal.
func ExtractCode(err error) Code {
	if err == nil {
		return CodeSuccess
	}

	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}

	var code Code
	if errors.As(err, &code) {
		return code
	}

	return CodeInternal
}

// ExtractMessage 从错误中提取错误消息.
//
// 对于内部错误（5xxxx、6xxxx），返回通用消息，避免暴露敏感信息.
func ExtractMessage(err error) string {
	if err == nil {
		return CodeSuccess.Message
	}

	code := ExtractCode(err)
	if code.Num >= 50000 {
		return code.Message
	}

	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr.GetMessage()
	}

	return code.Message
}

// ExtractMessageUnsafe 从错误中提取完整错误消息（包含敏感信息）.
//
// 仅用于日志记录，不应返回给客户端.
func ExtractMessageUnsafe(err error) string {
	if err == nil {
		return CodeSuccess.Message
	}
	return err.Error()
}

// IsValidation 判断是否为请求校验类错误（3xxxx），包括版本不匹配.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	n := ExtractCode(err).Num
	return n >= 30000 && n < 40000
}

// IsNotFound 判断是否为资源不存在错误.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	n := ExtractCode(err).Num
	return n >= 40000 && n < 50000
}

// IsCommunication 判断是否为与远端服务通信失败的错误.
//
// 包括 6xxxx 外部服务错误以及超时.
func IsCommunication(err error) bool {
	if err == nil {
		return false
	}
	code := ExtractCode(err)
	return (code.Num >= 60000 && code.Num < 70000) || code.Is(CodeTimeout)
}

// IsCanceled 判断是否为请求取消错误.
func IsCanceled(err error) bool {
	return err != nil && ExtractCode(err).Is(CodeCanceled)
}
