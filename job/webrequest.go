package job

import "time"

// DefaultWebRequestTimeout 调用任务所属服务的默认超时时间.
const DefaultWebRequestTimeout = 2 * time.Minute

// WebRequestSettings 默认的可执行设置：触发时回调任务所属服务的 HTTP 端点.
type WebRequestSettings struct {
	// ServiceKey 任务所属服务标识，执行时解析为服务地址.
	ServiceKey string `json:"service_key"`
	// URI 服务内的相对路径.
	URI string `json:"uri"`
	// Parameters 追加为查询参数.
	Parameters map[string]string `json:"parameters,omitempty"`
	// Timeout 请求超时，为零时使用 DefaultWebRequestTimeout.
	Timeout Duration `json:"timeout,omitempty"`
}

// EffectiveTimeout 返回生效的请求超时.
func (s WebRequestSettings) EffectiveTimeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultWebRequestTimeout
	}
	return time.Duration(s.Timeout)
}
