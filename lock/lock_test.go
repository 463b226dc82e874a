package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	h, err := p.Acquire(ctx, "daily-report")
	require.NoError(t, err)
	assert.Equal(t, "daily-report", h.Key())
	assert.Equal(t, 1, p.Len())

	h.Release()
	assert.Equal(t, 0, p.Len())

	// 重复释放无副作用
	h.Release()
	assert.Equal(t, 0, p.Len())

	h2, err := p.Acquire(ctx, "daily-report")
	require.NoError(t, err)
	h2.Release()
}

func TestEmptyKey(t *testing.T) {
	_, err := NewProvider().Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestSameKeyIsExclusive(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			h.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, p.Len())
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	ha, err := p.Acquire(ctx, "a")
	require.NoError(t, err)
	defer ha.Release()

	done := make(chan struct{})
	go func() {
		hb, err := p.Acquire(ctx, "b")
		if assert.NoError(t, err) {
			hb.Release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on a different key blocked")
	}
}

func TestFIFOOrder(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	h, err := p.Acquire(ctx, "k")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := p.Acquire(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			w.Release()
		}()
		// 确保等待者按顺序入队
		require.Eventually(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.entries["k"].refs == i+2
		}, time.Second, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	h.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestWaiterCancellation(t *testing.T) {
	p := NewProvider()

	h, err := p.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.Len())

	h.Release()
	assert.Equal(t, 0, p.Len())
}

func TestClose(t *testing.T) {
	p := NewProvider()

	h, err := p.Acquire(context.Background(), "k")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), "k")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.entries["k"].refs == 2
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrProviderClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}

	_, err = p.Acquire(context.Background(), "other")
	assert.ErrorIs(t, err, ErrProviderClosed)

	h.Release()
	assert.Equal(t, 0, p.Len())
}
