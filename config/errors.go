package config

import "errors"

// 预定义错误常量.
var (
	// ErrFileNotFound 配置文件不存在.
	ErrFileNotFound = errors.New("config: 配置文件不存在")

	// ErrReadConfig 读取配置失败.
	ErrReadConfig = errors.New("config: 读取配置失败")

	// ErrUnmarshal 解析配置失败.
	ErrUnmarshal = errors.New("config: 解析配置失败")

	// ErrValidation 配置验证失败.
	ErrValidation = errors.New("config: 配置验证失败")

	// ErrUnsupportedStore 不支持的任务存储类型.
	ErrUnsupportedStore = errors.New("config: 不支持的任务存储类型")

	// ErrEmptySchedulerURL 协调器地址为空.
	ErrEmptySchedulerURL = errors.New("config: 协调器地址为空")

	// ErrEmptyServiceKey 服务标识为空.
	ErrEmptyServiceKey = errors.New("config: 服务标识为空")
)
