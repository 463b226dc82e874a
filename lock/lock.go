// Package lock 提供进程内按键互斥的锁提供者.
//
// 相同 key 的调用者按 FIFO 顺序串行执行，不同 key 之间互不阻塞.
// 锁表项按引用计数管理，无持有者且无等待者时自动回收.
package lock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrProviderClosed 锁提供者已关闭.
	ErrProviderClosed = errors.New("lock: provider closed")

	// ErrEmptyKey 锁键为空.
	ErrEmptyKey = errors.New("lock: empty key")
)

// entry 单个 key 的锁表项.
type entry struct {
	sem  *semaphore.Weighted
	refs int // 持有者 + 等待者
}

// Provider 按键互斥锁提供者.
type Provider struct {
	mu      sync.Mutex
	entries map[string]*entry

	closeCtx    context.Context
	closeCancel context.CancelFunc
}

// NewProvider 创建锁提供者.
func NewProvider() *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		entries:     make(map[string]*entry),
		closeCtx:    ctx,
		closeCancel: cancel,
	}
}

// Acquire 获取 key 对应的互斥锁，阻塞直到获取成功、ctx 取消或提供者关闭.
func (p *Provider) Acquire(ctx context.Context, key string) (*Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	p.mu.Lock()
	if p.closeCtx.Err() != nil {
		p.mu.Unlock()
		return nil, ErrProviderClosed
	}
	e, ok := p.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		p.entries[key] = e
	}
	e.refs++
	p.mu.Unlock()

	waitCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.closeCtx, cancel)
	err := e.sem.Acquire(waitCtx, 1)
	stop()
	cancel()

	if err != nil {
		p.unref(key, e)
		if p.closeCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrProviderClosed
		}
		return nil, ctx.Err()
	}

	return &Handle{provider: p, key: key, entry: e}, nil
}

// Close 关闭提供者.
//
// 所有等待中的调用者收到 ErrProviderClosed，之后的获取请求直接失败.
// 已持有的锁仍可正常释放.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCancel()
	return nil
}

// Len 返回当前锁表中的 key 数量.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Provider) unref(key string, e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e.refs--
	if e.refs == 0 && p.entries[key] == e {
		delete(p.entries, key)
	}
}

// Handle 已获取的锁句柄.
type Handle struct {
	provider *Provider
	key      string
	entry    *entry
	once     sync.Once
}

// Key 返回锁键.
func (h *Handle) Key() string {
	return h.key
}

// Release 释放锁，重复调用无副作用.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.entry.sem.Release(1)
		h.provider.unref(h.key, h.entry)
	})
}
