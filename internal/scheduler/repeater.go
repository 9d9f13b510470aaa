package scheduler

import (
	"context"
	"sync"
	"time"

	"chartcore/internal/logger"
)

// Repeater 周期性执行任务（缓存自动刷新用）。Stop 或 ctx 取消后
// 定时器必须完全释放：泄漏的定时器会悄悄回填一份已经失效的缓存。
type Repeater struct {
	Interval       time.Duration
	RunImmediately bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewRepeater(interval time.Duration) *Repeater {
	return &Repeater{Interval: interval}
}

// Start 在后台循环执行 task，重复调用无效果。
func (r *Repeater) Start(ctx context.Context, task func(context.Context)) {
	if task == nil || r.Interval <= 0 {
		logger.Warnf("Repeater: invalid task/interval=%s, not started", r.Interval)
		return
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		if r.RunImmediately {
			task(runCtx)
		}
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				task(runCtx)
			}
		}
	}()
}

// Stop 取消循环并等待后台协程退出，保证没有残留定时器。
func (r *Repeater) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.started = false
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
