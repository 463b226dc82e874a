// Package tracing 提供分布式链路追踪功能.
package tracing

import "strings"

// Config 链路追踪配置.
type Config struct {
	// Enabled 是否启用链路追踪
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// OTLP OTLP配置
	OTLP *OTLPConfig `json:"otlp" yaml:"otlp" mapstructure:"otlp"`
	// SamplingRate 采样率 (0.0-1.0)
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
}

// OTLPConfig OTLP配置.
type OTLPConfig struct {
	// Endpoint OTLP Collector端点
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	// Headers 请求头[可选]
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
}

// samplingRate 返回有效采样率，超出 (0, 1] 时按 1 处理.
func (c *Config) samplingRate() float64 {
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		return 1
	}
	return c.SamplingRate
}

// Validate 校验配置，未启用时不做检查.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.OTLP == nil || strings.TrimSpace(c.OTLP.Endpoint) == "" {
		return ErrEmptyEndpoint
	}
	_, err := parseEndpoint(c.OTLP.Endpoint)
	return err
}
