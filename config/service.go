package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/Tsukikage7/jobhub/database"
	"github.com/Tsukikage7/jobhub/engine/store/redisstore"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/metrics"
	"github.com/Tsukikage7/jobhub/tracing"
	"github.com/Tsukikage7/jobhub/transport/http/server"
)

// 任务存储类型.
const (
	StoreMemory   = "memory"
	StoreDatabase = "database"
	StoreRedis    = "redis"
)

// Coordinator 调度协调服务配置.
type Coordinator struct {
	Name            string        `json:"name" yaml:"name" mapstructure:"name"`
	GracefulTimeout time.Duration `json:"graceful_timeout" yaml:"graceful_timeout" mapstructure:"graceful_timeout"`

	Server  server.Config  `json:"server" yaml:"server" mapstructure:"server"`
	Logger  logger.Config  `json:"logger" yaml:"logger" mapstructure:"logger"`
	Store   StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Engine  EngineConfig   `json:"engine" yaml:"engine" mapstructure:"engine"`
	Tracing tracing.Config `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Metrics metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Services 服务标识到服务地址的映射，web 请求任务据此定位任务所属服务
	Services map[string]string `json:"services" yaml:"services" mapstructure:"services"`
}

// StoreConfig 任务存储配置.
type StoreConfig struct {
	// Type 存储类型: memory, database, redis
	Type     string            `json:"type" yaml:"type" mapstructure:"type"`
	Database database.Config   `json:"database" yaml:"database" mapstructure:"database"`
	Redis    redisstore.Config `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// EngineConfig 触发引擎配置.
type EngineConfig struct {
	// Location 默认时区，cron 表达式未指定时区时使用
	Location string `json:"location" yaml:"location" mapstructure:"location"`
	// TriggerCheckInterval 触发器状态健康检查间隔
	TriggerCheckInterval time.Duration `json:"trigger_check_interval" yaml:"trigger_check_interval" mapstructure:"trigger_check_interval"`
}

// CoordinatorDefaults 返回调度协调服务的默认配置值.
func CoordinatorDefaults() map[string]any {
	return map[string]any{
		"name":                          "jobhub",
		"graceful_timeout":              "30s",
		"server.name":                   "jobhub-http",
		"server.addr":                   ":8080",
		"logger.level":                  logger.LevelInfo,
		"logger.format":                 logger.FormatJSON,
		"logger.output":                 logger.OutputConsole,
		"store.type":                    StoreMemory,
		"engine.location":               "UTC",
		"engine.trigger_check_interval": "1m",
		"metrics.path":                  "/metrics",
		"metrics.namespace":             "jobhub",
		"tracing.sampling_rate":         1.0,
	}
}

// LoadCoordinator 加载调度协调服务配置.
func LoadCoordinator(path string, opts ...Option) (*Coordinator, error) {
	opts = append([]Option{WithDefaults(CoordinatorDefaults())}, opts...)
	return Load[Coordinator](path, opts...)
}

// Validate 验证配置.
func (c *Coordinator) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if _, err := c.Engine.TimeLocation(); err != nil {
		return fmt.Errorf("engine.location: %w", err)
	}
	return c.Tracing.Validate()
}

// Validate 验证存储配置.
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case "", StoreMemory:
		return nil
	case StoreDatabase:
		return c.Database.Validate()
	case StoreRedis:
		return c.Redis.Validate()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedStore, c.Type)
	}
}

// TimeLocation 解析默认时区，为空时返回 UTC.
func (c EngineConfig) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Location)
}

// Agent 任务所属服务配置.
type Agent struct {
	Name            string        `json:"name" yaml:"name" mapstructure:"name"`
	GracefulTimeout time.Duration `json:"graceful_timeout" yaml:"graceful_timeout" mapstructure:"graceful_timeout"`
	// ServiceKey 协调器解析本服务地址时使用的服务标识
	ServiceKey string `json:"service_key" yaml:"service_key" mapstructure:"service_key"`

	Server    server.Config   `json:"server" yaml:"server" mapstructure:"server"`
	Logger    logger.Config   `json:"logger" yaml:"logger" mapstructure:"logger"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Registrar RegistrarConfig `json:"registrar" yaml:"registrar" mapstructure:"registrar"`
	Tracing   tracing.Config  `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Metrics   metrics.Config  `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// SchedulerConfig 协调器客户端配置.
type SchedulerConfig struct {
	URL     string        `json:"url" yaml:"url" mapstructure:"url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// RegistrarConfig 注册器配置.
type RegistrarConfig struct {
	// MaxDelay 重试间隔上限
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	// Disabled 不注册的任务 ID
	Disabled []string `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
}

// Enabled 判断任务是否需要注册.
func (c RegistrarConfig) Enabled(id string) bool {
	return !slices.Contains(c.Disabled, id)
}

// AgentDefaults 返回任务所属服务的默认配置值.
func AgentDefaults() map[string]any {
	return map[string]any{
		"name":                "jobagent",
		"graceful_timeout":    "30s",
		"service_key":         "jobagent",
		"server.name":         "jobagent-http",
		"server.addr":         ":8081",
		"logger.level":        logger.LevelInfo,
		"logger.format":       logger.FormatJSON,
		"logger.output":       logger.OutputConsole,
		"scheduler.url":       "http://localhost:8080",
		"scheduler.timeout":   "30s",
		"registrar.max_delay": "5m",
		"metrics.path":        "/metrics",
		"metrics.namespace":   "jobagent",
	}
}

// LoadAgent 加载任务所属服务配置.
func LoadAgent(path string, opts ...Option) (*Agent, error) {
	opts = append([]Option{WithDefaults(AgentDefaults())}, opts...)
	return Load[Agent](path, opts...)
}

// Validate 验证配置.
func (c *Agent) Validate() error {
	if c.Scheduler.URL == "" {
		return ErrEmptySchedulerURL
	}
	if c.ServiceKey == "" {
		return ErrEmptyServiceKey
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}
