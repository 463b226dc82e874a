package client

import "errors"

// 错误定义.
var (
	// ErrRequestFailed 请求创建失败.
	ErrRequestFailed = errors.New("http client: 请求创建失败")

	// ErrEmptyBaseURL 未设置协调器地址.
	ErrEmptyBaseURL = errors.New("http client: 协调器地址为空")

	// ErrDecodeResponse 响应体无法解析.
	ErrDecodeResponse = errors.New("http client: 响应解析失败")
)
