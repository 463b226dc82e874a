// Package config 提供配置加载和服务配置定义.
//
// 加载器基于 viper，支持 yaml/json/toml 文件、默认值与 JOBHUB_ 前缀的环境变量覆盖.
// Coordinator 与 Agent 分别描述调度协调服务和任务所属服务的配置.
package config

import (
	"path/filepath"
	"strings"
)

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// GetConfigType 根据文件扩展名获取配置类型，无法识别时返回空字符串.
func GetConfigType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}
