// Package response 提供统一的错误码、业务错误与 JSON 响应信封.
package response

import (
	"encoding/json"
	"net/http"
)

// Response 统一响应体.
//
// 泛型参数 T 表示业务数据类型.
//
// 响应格式：
//
//	{
//	    "code": 0,
//	    "message": "成功",
//	    "data": { ... }
//	}
type Response[T any] struct {
	Code    int    `json:"code"`           // 业务状态码
	Message string `json:"message"`        // 响应消息
	Data    T      `json:"data,omitempty"` // 业务数据
}

// OK 创建成功响应.
func OK[T any](data T) Response[T] {
	return Response[T]{
		Code:    CodeSuccess.Num,
		Message: CodeSuccess.Message,
		Data:    data,
	}
}

// FailWithError 从 error 创建失败响应.
func FailWithError[T any](err error) Response[T] {
	var zero T
	return Response[T]{
		Code:    ExtractCode(err).Num,
		Message: ExtractMessage(err),
		Data:    zero,
	}
}

// IsSuccess 判断是否成功响应.
func (r Response[T]) IsSuccess() bool {
	return r.Code == CodeSuccess.Num
}

// Err 将失败响应还原为业务错误，成功时返回 nil.
//
// 未知错误码按 fallback 处理.
func (r Response[T]) Err(fallback Code) error {
	if r.IsSuccess() {
		return nil
	}
	code, ok := LookupCode(r.Code)
	if !ok {
		code = fallback
	}
	return NewErrorWithMessage(code, r.Message)
}

// WriteJSON 写入 JSON 响应.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusOK, OK(data))
}

// WriteError 写入错误响应.
//
// 自动从 error 提取错误码和消息.
func WriteError(w http.ResponseWriter, err error) error {
	code := ExtractCode(err)
	return WriteJSON(w, code.HTTPStatus, FailWithError[any](err))
}
