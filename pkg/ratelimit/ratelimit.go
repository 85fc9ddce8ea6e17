package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// idlePoll 无法计算下一次可用时间时的轮询间隔
const idlePoll = 100 * time.Millisecond

// waitUntil 反复尝试 try，失败时按其给出的时长休眠，直到成功或 ctx 结束
func waitUntil(ctx context.Context, try func() (bool, time.Duration)) error {
	for {
		ok, delay := try()
		if ok {
			return nil
		}
		if delay <= 0 {
			delay = idlePoll
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucket 令牌桶：每个 window 连续补充 refill 个令牌，最多 capacity 个
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	perNanos float64 // 每纳秒补充的令牌数
	updated  time.Time
	window   time.Duration
}

// NewTokenBucket refill 为每个 window 补充的令牌数
func NewTokenBucket(capacity, refill int, window time.Duration) *TokenBucket {
	tb := &TokenBucket{
		capacity: float64(capacity),
		tokens:   float64(capacity),
		updated:  time.Now(),
		window:   window,
	}
	if refill > 0 && window > 0 {
		tb.perNanos = float64(refill) / float64(window.Nanoseconds())
	}
	return tb
}

// advance 按经过的时间补充令牌，调用方持有锁
func (tb *TokenBucket) advance(now time.Time) {
	if elapsed := now.Sub(tb.updated); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+float64(elapsed.Nanoseconds())*tb.perNanos)
		tb.updated = now
	}
}

// take 取一个令牌；不足时返回距离下一个令牌的时长
func (tb *TokenBucket) take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.advance(time.Now())
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	if tb.perNanos == 0 {
		return false, tb.window
	}
	return false, time.Duration(math.Ceil((1 - tb.tokens) / tb.perNanos))
}

func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.take()
	return ok
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return waitUntil(ctx, tb.take)
}

func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(time.Now())
	return int(tb.tokens)
}

// GetResetTime 桶被补满的时间
func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	tb.advance(now)
	if tb.tokens >= tb.capacity || tb.perNanos == 0 {
		return now
	}
	return now.Add(time.Duration((tb.capacity - tb.tokens) / tb.perNanos))
}

// SlidingWindow 任意 window 时长内最多 limit 次请求
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time // 按时间递增
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window}
}

// prune 丢弃窗口外的时间戳，调用方持有锁
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.stamps) && !sw.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.stamps = append(sw.stamps[:0], sw.stamps[i:]...)
	}
}

// take 记录一次请求；已满时返回最早一条过期还需的时长
func (sw *SlidingWindow) take() (bool, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.prune(now)
	if len(sw.stamps) < sw.limit {
		sw.stamps = append(sw.stamps, now)
		return true, 0
	}
	if len(sw.stamps) == 0 {
		return false, sw.window
	}
	return false, sw.stamps[0].Add(sw.window).Sub(now)
}

func (sw *SlidingWindow) Allow() bool {
	ok, _ := sw.take()
	return ok
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	return waitUntil(ctx, sw.take)
}

func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(time.Now())
	return max(0, sw.limit-len(sw.stamps))
}

// GetResetTime 最早一条请求移出窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := time.Now()
	sw.prune(now)
	if len(sw.stamps) == 0 {
		return now
	}
	return sw.stamps[0].Add(sw.window)
}

// RateLimitManager 按端点类别管理限流器
type RateLimitManager struct {
	limiters map[string]RateLimiter
	fallback RateLimiter
	mu       sync.RWMutex
}

// 端点类别
const (
	KeyTradingPost = "fxcm:trading:post"
	KeyCandlesGet  = "fxcm:candles:get"
	KeyGeneral     = "fxcm:general"
)

// NewRateLimitManager 创建带默认限流规则的管理器
func NewRateLimitManager() *RateLimitManager {
	manager := &RateLimitManager{
		limiters: make(map[string]RateLimiter),
	}
	manager.initDefaultLimiters()
	return manager
}

// NewGeneralRateLimitManager 只限制总请求数：window 内最多 limit 次
func NewGeneralRateLimitManager(limit int, window time.Duration) *RateLimitManager {
	manager := NewRateLimitManager()
	if limit > 0 && window > 0 {
		manager.SetLimiter(KeyGeneral, NewSlidingWindow(limit, window))
	}
	return manager
}

// initDefaultLimiters 初始化默认的速率限制器
func (rlm *RateLimitManager) initDefaultLimiters() {
	// 下单/改单类命令：突发 50，每秒补 10
	rlm.limiters[KeyTradingPost] = NewTokenBucket(50, 10, time.Second)
	// 历史数据较重
	rlm.limiters[KeyCandlesGet] = NewSlidingWindow(30, 10*time.Second)
	rlm.limiters[KeyGeneral] = NewSlidingWindow(300, 10*time.Second)
	rlm.fallback = rlm.limiters[KeyGeneral]
}

// SetLimiter 替换某类端点的限流器
func (rlm *RateLimitManager) SetLimiter(key string, limiter RateLimiter) {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	rlm.limiters[key] = limiter
	if key == KeyGeneral {
		rlm.fallback = limiter
	}
}

// GetLimiter 获取指定端点类别的限流器，未知类别使用通用限流器
func (rlm *RateLimitManager) GetLimiter(key string) RateLimiter {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()

	if limiter, exists := rlm.limiters[key]; exists {
		return limiter
	}
	return rlm.fallback
}

// Wait 等待直到允许请求
func (rlm *RateLimitManager) Wait(ctx context.Context, key string) error {
	return rlm.GetLimiter(key).Wait(ctx)
}

// Allow 检查是否允许请求
func (rlm *RateLimitManager) Allow(key string) bool {
	return rlm.GetLimiter(key).Allow()
}

// GetRemaining 获取剩余请求数
func (rlm *RateLimitManager) GetRemaining(key string) int {
	return rlm.GetLimiter(key).GetRemaining()
}
