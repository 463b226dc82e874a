package config

import "maps"

// DefaultEnvPrefix 默认环境变量前缀.
const DefaultEnvPrefix = "JOBHUB"

// Options 配置加载选项.
type Options struct {
	// EnvPrefix 环境变量前缀，例如 "JOBHUB" 会将 JOBHUB_SERVER_ADDR 映射到 server.addr
	EnvPrefix string

	// AutomaticEnv 是否允许环境变量覆盖
	AutomaticEnv bool

	// ConfigType 显式指定配置文件类型（yaml, json, toml 等）
	ConfigType string

	// Defaults 默认配置值，键为 viper 路径如 server.addr
	Defaults map[string]any
}

// DefaultOptions 返回默认选项.
func DefaultOptions() *Options {
	return &Options{
		EnvPrefix:    DefaultEnvPrefix,
		AutomaticEnv: true,
	}
}

// Option 配置选项函数.
type Option func(*Options)

// WithEnvPrefix 设置环境变量前缀.
func WithEnvPrefix(prefix string) Option {
	return func(o *Options) {
		o.EnvPrefix = prefix
	}
}

// WithoutEnv 禁用环境变量覆盖.
func WithoutEnv() Option {
	return func(o *Options) {
		o.AutomaticEnv = false
	}
}

// WithDefaults 设置默认值，与已有默认值合并，后设置的覆盖先设置的.
func WithDefaults(defaults map[string]any) Option {
	return func(o *Options) {
		if o.Defaults == nil {
			o.Defaults = make(map[string]any, len(defaults))
		}
		maps.Copy(o.Defaults, defaults)
	}
}

// WithConfigType 显式指定配置文件类型.
func WithConfigType(configType string) Option {
	return func(o *Options) {
		o.ConfigType = configType
	}
}
