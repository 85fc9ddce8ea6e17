package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/gofx/pkg/logger"
)

// Handler 关闭处理函数，应在 ctx 结束前返回
type Handler func(ctx context.Context) error

type callback struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	callbacks []callback
	mu        sync.Mutex
	once      sync.Once
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback{name: name, handler: handler})
}

// Shutdown 并发执行所有关闭回调并阻塞到全部完成或 ctx 超时；只执行一次。
// 返回未在超时前完成的回调名。
func (m *Manager) Shutdown(ctx context.Context) []string {
	var pending []string
	m.once.Do(func() {
		pending = m.run(ctx)
	})
	return pending
}

func (m *Manager) run(ctx context.Context) []string {
	m.mu.Lock()
	callbacks := append([]callback(nil), m.callbacks...)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Infof("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var (
		wg      sync.WaitGroup
		doneMu  sync.Mutex
		done    = make(map[string]bool, len(callbacks))
		allDone = make(chan struct{})
	)
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(cb callback) {
			defer wg.Done()
			if err := cb.handler(ctx); err != nil {
				logger.Warnf("关闭回调 %s 失败: %v", cb.name, err)
			}
			doneMu.Lock()
			done[cb.name] = true
			doneMu.Unlock()
		}(cb)
	}
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		logger.Infof("所有关闭回调已完成")
		return nil
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
	}

	doneMu.Lock()
	defer doneMu.Unlock()
	var pending []string
	for _, cb := range callbacks {
		if !done[cb.name] {
			pending = append(pending, cb.name)
		}
	}
	return pending
}
