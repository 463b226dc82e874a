package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load 从文件加载配置.
//
// configPath 为空时只使用默认值和环境变量.
// 文件类型优先取 WithConfigType，其次按扩展名识别，无法识别时按 yaml 解析，
// 便于读取以无扩展名文件挂载的配置.
// 如果配置类型实现了 Validatable 接口，会自动进行验证.
func Load[T any](configPath string, opts ...Option) (*T, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	v := newViper(options)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
		}
		v.SetConfigFile(configPath)
		v.SetConfigType(resolveConfigType(configPath, options.ConfigType))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}
	}

	config := new(T)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshal, err)
	}
	if validator, ok := any(config).(Validatable); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return config, nil
}

func resolveConfigType(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if t := GetConfigType(path); t != "" {
		return t
	}
	return "yaml"
}

// newViper 创建 viper 实例并应用通用选项.
//
// 启用结构体绑定，使环境变量可以覆盖配置文件中未出现的字段.
func newViper(options *Options) *viper.Viper {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())

	for key, value := range options.Defaults {
		v.SetDefault(key, value)
	}
	if options.AutomaticEnv {
		v.SetEnvPrefix(options.EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}
