// Package store 定义调度引擎的持久化任务存储契约.
//
// 存储只保存任务记录；触发器状态由引擎在启动时根据任务记录重建.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/jobhub/job"
)

var (
	// ErrNotFound 任务记录不存在.
	ErrNotFound = errors.New("store: job not found")

	// ErrExists 任务记录已存在.
	ErrExists = errors.New("store: job already exists")

	// ErrClosed 存储已关闭.
	ErrClosed = errors.New("store: closed")

	// ErrCorrupt 任务记录存在但无法解码.
	ErrCorrupt = errors.New("store: corrupt job record")
)

// Record 持久化的任务记录.
type Record struct {
	Key        job.Key        `json:"key"`
	Type       string         `json:"type"`
	Descriptor job.Descriptor `json:"descriptor"`
	Hash       string         `json:"hash"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store 任务存储接口.
type Store interface {
	// Create 保存新任务记录，已存在时返回 ErrExists.
	Create(ctx context.Context, rec *Record) error

	// Get 读取任务记录，不存在时返回 ErrNotFound，记录无法解码时返回 ErrCorrupt.
	Get(ctx context.Context, key job.Key) (*Record, error)

	// Delete 删除任务记录，返回是否确实删除.
	Delete(ctx context.Context, key job.Key) (bool, error)

	// Keys 列出全部任务键.
	Keys(ctx context.Context) ([]job.Key, error)

	// Close 释放存储资源.
	Close() error
}
