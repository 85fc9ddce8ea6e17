package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Loop 一个后台监听循环
type Loop struct {
	ID       string
	Identity string

	keepGoing atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// KeepGoing 停止信号发出后为 false
func (l *Loop) KeepGoing() bool { return l.keepGoing.Load() }

// Stop 发出停止信号，不等待退出
func (l *Loop) Stop() {
	l.keepGoing.Store(false)
	l.cancel()
}

// Done 循环退出后关闭
func (l *Loop) Done() <-chan struct{} { return l.done }

// LoopRegistry 保证每个 (user, environment, purpose) 最多一个监听循环
type LoopRegistry struct {
	mu          sync.Mutex
	loops       map[string]*Loop
	stopTimeout time.Duration
}

// DefaultLoops 进程内共享的默认循环表
var DefaultLoops = NewLoopRegistry()

// NewLoopRegistry 创建循环表
func NewLoopRegistry() *LoopRegistry {
	return &LoopRegistry{
		loops:       make(map[string]*Loop),
		stopTimeout: 5 * time.Second,
	}
}

// Start 启动新循环；同一 identity 已有循环时先发停止信号并等待其退出（有超时）
func (r *LoopRegistry) Start(identity string, run func(ctx context.Context, loop *Loop)) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		ID:       uuid.NewString(),
		Identity: identity,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	loop.keepGoing.Store(true)

	r.mu.Lock()
	prev := r.loops[identity]
	r.loops[identity] = loop
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
		select {
		case <-prev.Done():
		case <-time.After(r.stopTimeout):
		}
	}

	go func() {
		defer close(loop.done)
		defer cancel()
		run(ctx, loop)
	}()
	return loop
}

// Stop 停止 identity 对应的循环（仅当它仍是 loop 本身）并等待退出
func (r *LoopRegistry) Stop(loop *Loop) {
	if loop == nil {
		return
	}
	r.mu.Lock()
	if r.loops[loop.Identity] == loop {
		delete(r.loops, loop.Identity)
	}
	r.mu.Unlock()

	loop.Stop()
	select {
	case <-loop.Done():
	case <-time.After(r.stopTimeout):
	}
}

// Active 返回 identity 当前的循环
func (r *LoopRegistry) Active(identity string) *Loop {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loops[identity]
}

// Running 仍在运行的循环数量
func (r *LoopRegistry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.loops {
		select {
		case <-l.done:
		default:
			n++
		}
	}
	return n
}
