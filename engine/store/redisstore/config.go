package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/jobhub/logger"
)

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("redisstore: 配置为空")
	// ErrEmptyAddr 地址为空.
	ErrEmptyAddr = errors.New("redisstore: 地址为空")
)

// Config Redis 连接配置.
type Config struct {
	// Addrs 节点地址，多个地址时使用集群客户端
	Addrs        []string      `json:"addrs" yaml:"addrs" mapstructure:"addrs"`
	Username     string        `json:"username" yaml:"username" mapstructure:"username"`
	Password     string        `json:"password" yaml:"password" mapstructure:"password"`
	DB           int           `json:"db" yaml:"db" mapstructure:"db"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	// HashKey 保存任务记录的 Hash 键名
	HashKey string `json:"hash_key" yaml:"hash_key" mapstructure:"hash_key"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Addrs) == 0 {
		return ErrEmptyAddr
	}
	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.HashKey == "" {
		c.HashKey = DefaultHashKey
	}
}

// Open 根据配置创建 Redis 客户端与任务存储，关闭存储时一并关闭客户端.
func Open(ctx context.Context, cfg *Config, log logger.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	s, err := New(pingCtx, client, WithHashKey(cfg.HashKey), WithOwnedClient())
	if err != nil {
		_ = client.Close()
		log.With(logger.Any("addrs", cfg.Addrs), logger.Err(err)).Error("[RedisStore] Redis 连接失败")
		return nil, err
	}

	log.With(logger.Any("addrs", cfg.Addrs), logger.Int("db", cfg.DB)).Debug("[RedisStore] Redis 已连接")
	return s, nil
}
