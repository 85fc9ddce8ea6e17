package session

import (
	"context"
	"sync"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/socketio"
	"github.com/betbot/gofx/fxcm/types"
)

// KeyKind 订阅类型
type KeyKind int

const (
	KeySymbol KeyKind = iota // 品种报价，事件名为品种名
	KeyModel                 // 数据模型，事件名为模型名
)

// Key 订阅键
type Key struct {
	Kind KeyKind
	Name string
}

// SymbolKey 品种订阅键
func SymbolKey(symbol string) Key { return Key{Kind: KeySymbol, Name: symbol} }

// ModelKey 模型订阅键
func ModelKey(kind types.ModelKind) Key { return Key{Kind: KeyModel, Name: kind.String()} }

func (k Key) String() string { return k.Name }

// SubscriptionTransport 订阅相关的命令
type SubscriptionTransport interface {
	SubscribeSymbols(ctx context.Context, pairs ...string) (*types.Response, error)
	UnsubscribeSymbols(ctx context.Context, pairs ...string) (*types.Response, error)
	SubscribeModels(ctx context.Context, kinds ...types.ModelKind) (*types.Response, error)
	UnsubscribeModels(ctx context.Context, kinds ...types.ModelKind) (*types.Response, error)
}

// EventChannel 推送通道的事件注册
type EventChannel interface {
	On(name string, h socketio.Handler)
	Off(name string)
}

// KeyResult 批量操作中单个键的结果
type KeyResult struct {
	Key Key
	Err error
}

type subscription struct {
	key     Key
	handler socketio.Handler
}

// Registry 记录当前生效的订阅。
// 记录中的每个键都对应通道上恰好一个处理函数。
type Registry struct {
	transport SubscriptionTransport
	channel   EventChannel
	logger    logger.Logger

	// opMu 串行化订阅/退订操作，mu 只保护记录本身
	opMu  sync.Mutex
	mu    sync.RWMutex
	subs  map[string]subscription
	order []string
}

// NewRegistry 创建订阅表
func NewRegistry(transport SubscriptionTransport, channel EventChannel, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop
	}
	return &Registry{
		transport: transport,
		channel:   channel,
		logger:    log,
		subs:      make(map[string]subscription),
	}
}

// Subscribe 发送订阅命令，成功后才记录键并注册处理函数；已订阅的键不重复发送
func (r *Registry) Subscribe(ctx context.Context, key Key, h socketio.Handler) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.subscribeLocked(ctx, key, h)
}

func (r *Registry) subscribeLocked(ctx context.Context, key Key, h socketio.Handler) error {
	if r.Has(key.Name) {
		return nil
	}
	if err := r.sendSubscribe(ctx, key); err != nil {
		r.logger.Errorf("subscribe %s failed: %v", key, err)
		return err
	}
	r.channel.On(key.Name, h)
	r.mu.Lock()
	r.subs[key.Name] = subscription{key: key, handler: h}
	r.order = append(r.order, key.Name)
	r.mu.Unlock()
	return nil
}

// Unsubscribe 先注销处理函数并移除记录，再发送退订命令；
// 命令失败会返回错误，但不会恢复本地记录。未订阅的键直接返回 nil。
func (r *Registry) Unsubscribe(ctx context.Context, key Key) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.unsubscribeLocked(ctx, key)
}

func (r *Registry) unsubscribeLocked(ctx context.Context, key Key) error {
	if !r.forget(key.Name) {
		return nil
	}
	if err := r.sendUnsubscribe(ctx, key); err != nil {
		r.logger.Warnf("unsubscribe %s failed: %v", key, err)
		return err
	}
	return nil
}

// SubscribeBatch 逐个键订阅，允许部分成功；有失败时返回 *types.SubscriptionError
func (r *Registry) SubscribeBatch(ctx context.Context, keys []Key, handlerFor func(Key) socketio.Handler) ([]KeyResult, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	results := make([]KeyResult, 0, len(keys))
	for _, key := range keys {
		err := r.subscribeLocked(ctx, key, handlerFor(key))
		results = append(results, KeyResult{Key: key, Err: err})
	}
	return results, batchError(results)
}

// UnsubscribeBatch 逐个键退订，允许部分成功
func (r *Registry) UnsubscribeBatch(ctx context.Context, keys []Key) ([]KeyResult, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	results := make([]KeyResult, 0, len(keys))
	for _, key := range keys {
		err := r.unsubscribeLocked(ctx, key)
		results = append(results, KeyResult{Key: key, Err: err})
	}
	return results, batchError(results)
}

// Resubscribe 重连后用新的 client id 重新发送所有已记录的订阅；
// 失败的键会被注销并移除
func (r *Registry) Resubscribe(ctx context.Context) ([]KeyResult, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current := r.snapshot()
	results := make([]KeyResult, 0, len(current))
	for _, sub := range current {
		err := r.sendSubscribe(ctx, sub.key)
		if err != nil {
			r.logger.Errorf("resubscribe %s failed: %v", sub.key, err)
			r.forget(sub.key.Name)
		} else {
			r.channel.On(sub.key.Name, sub.handler)
		}
		results = append(results, KeyResult{Key: sub.key, Err: err})
	}
	return results, batchError(results)
}

// Clear 注销所有处理函数并清空记录，不发送命令；返回被移除的键
func (r *Registry) Clear() []Key {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current := r.snapshot()
	keys := make([]Key, 0, len(current))
	for _, sub := range current {
		r.forget(sub.key.Name)
		keys = append(keys, sub.key)
	}
	return keys
}

// Has 键是否已订阅
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[name]
	return ok
}

// Keys 当前订阅，按订阅顺序
func (r *Registry) Keys() []Key {
	subs := r.snapshot()
	keys := make([]Key, 0, len(subs))
	for _, s := range subs {
		keys = append(keys, s.key)
	}
	return keys
}

// Len 订阅数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) snapshot() []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]subscription, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.subs[name])
	}
	return out
}

// forget 先注销通道处理函数，再移除记录
func (r *Registry) forget(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[name]; !ok {
		return false
	}
	r.channel.Off(name)
	delete(r.subs, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) sendSubscribe(ctx context.Context, key Key) error {
	var err error
	switch key.Kind {
	case KeyModel:
		_, err = r.transport.SubscribeModels(ctx, types.ParseModelKind(key.Name))
	default:
		_, err = r.transport.SubscribeSymbols(ctx, key.Name)
	}
	return err
}

func (r *Registry) sendUnsubscribe(ctx context.Context, key Key) error {
	var err error
	switch key.Kind {
	case KeyModel:
		_, err = r.transport.UnsubscribeModels(ctx, types.ParseModelKind(key.Name))
	default:
		_, err = r.transport.UnsubscribeSymbols(ctx, key.Name)
	}
	return err
}

func batchError(results []KeyResult) error {
	var failures map[string]error
	for _, res := range results {
		if res.Err == nil {
			continue
		}
		if failures == nil {
			failures = make(map[string]error)
		}
		failures[res.Key.Name] = res.Err
	}
	if failures == nil {
		return nil
	}
	return &types.SubscriptionError{Failures: failures}
}
