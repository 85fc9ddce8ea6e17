package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gofx/fxcm/client"
	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/socketio"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/pkg/marketstate"
	"github.com/betbot/gofx/pkg/ratelimit"
	"github.com/betbot/gofx/pkg/sigchan"
)

// DefaultPurpose 默认用途标识
const DefaultPurpose = "General"

// DefaultSubscriptionList 连接建立后默认订阅的模型
var DefaultSubscriptionList = []types.ModelKind{
	types.ModelOffer,
	types.ModelAccount,
	types.ModelOrder,
	types.ModelOpenPosition,
	types.ModelSummary,
	types.ModelProperties,
}

// Options 会话配置
type Options struct {
	User        string
	Password    string
	Purpose     string
	Environment types.Environment

	// OAuth 客户端凭证
	ClientID     string
	ClientSecret string

	// SubscriptionList 为 nil 时使用 DefaultSubscriptionList
	SubscriptionList []types.ModelKind
	// Handler 非空时接收所有推送事件，替代默认的镜像逻辑
	Handler Handler
	// IgnoreOutput 不输出更新日志的模型名/品种名
	IgnoreOutput []string

	Logger logger.Logger
	Loops  *LoopRegistry

	// WaitSlice 监听循环每轮等待的时长
	WaitSlice      time.Duration
	ReconnectDelay time.Duration
	MaxReconnect   int

	HTTPTimeout      time.Duration
	RateLimiter      *ratelimit.RateLimitManager
	DisableRateLimit bool
	Location         *time.Location
	MaxOrderActions  int
}

// Manager 交易会话：认证、推送通道、快照加载、后台监听循环
type Manager struct {
	opts     Options
	name     string
	identity string
	logger   logger.Logger

	client     *client.Client
	channel    *socketio.Channel
	mirror     *marketstate.Mirror
	dispatcher *Dispatcher
	subs       *Registry
	loops      *LoopRegistry

	reconnectSig *sigchan.Chan
	active       atomic.Bool

	// lifeMu 串行化 Login/Logout
	lifeMu sync.Mutex

	mu        sync.RWMutex
	accountID string
	loop      *Loop
	loopCtx   context.Context
}

// New 创建会话，不发起任何网络请求
func New(opts Options) (*Manager, error) {
	if opts.User == "" {
		return nil, errors.New("session: user is required")
	}
	if opts.Environment.AuthURL == "" || opts.Environment.TradingURL == "" {
		return nil, fmt.Errorf("session: environment %q has no auth/trading URL", opts.Environment.Name)
	}
	if opts.Purpose == "" {
		opts.Purpose = DefaultPurpose
	}
	if opts.SubscriptionList == nil {
		opts.SubscriptionList = DefaultSubscriptionList
	}
	if opts.Loops == nil {
		opts.Loops = DefaultLoops
	}
	if opts.WaitSlice <= 0 {
		opts.WaitSlice = time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.MaxReconnect <= 0 {
		opts.MaxReconnect = 10
	}

	name := fmt.Sprintf("%s_%s_%s", opts.User, opts.Environment.Name, uuid.NewString()[:8])
	log := opts.Logger
	if log == nil {
		log = logger.FromEntry(logrus.WithField("session", name))
	}

	mirror := marketstate.New(marketstate.WithLogger(log), marketstate.WithMaxOrderActions(opts.MaxOrderActions))
	c := client.NewClient(client.Config{
		Environment:      opts.Environment,
		ClientID:         opts.ClientID,
		ClientSecret:     opts.ClientSecret,
		Timeout:          opts.HTTPTimeout,
		RateLimiter:      opts.RateLimiter,
		DisableRateLimit: opts.DisableRateLimit,
		Location:         opts.Location,
		Logger:           log,
	})
	chCfg := socketio.DefaultConfig(opts.Environment)
	chCfg.Logger = log
	ch := socketio.New(chCfg)

	c.AttachChannel(ch)
	c.AttachInstruments(mirror)

	m := &Manager{
		opts:         opts,
		name:         name,
		identity:     opts.User + opts.Environment.Name + opts.Purpose,
		logger:       log,
		client:       c,
		channel:      ch,
		mirror:       mirror,
		dispatcher:   NewDispatcher(mirror, opts.Handler, opts.IgnoreOutput, log),
		subs:         NewRegistry(c, ch, log),
		loops:        opts.Loops,
		reconnectSig: sigchan.New(1),
	}
	return m, nil
}

// Login 两阶段认证，连接推送通道，加载账户快照，然后启动监听循环。
// 同一 (user, environment, purpose) 已有监听循环时会先停止它。
func (m *Manager) Login(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	// 重新登录时旧循环和旧订阅都不再有效，认证失败也不能留下它们
	m.active.Store(false)
	m.stopLoop()
	m.subs.Clear()
	if m.channel.Connected() {
		_ = m.channel.Close()
	}

	token, err := m.client.Authenticate(ctx, m.opts.User, m.opts.Password)
	if err != nil {
		return err
	}

	m.channel.SetToken(token)
	m.channel.On(socketio.EventConnect, m.onConnect)
	m.channel.On(socketio.EventDisconnect, m.onDisconnect)
	if err := m.channel.Connect(ctx); err != nil {
		m.logger.Errorf("push channel connect failed: %v", err)
		return &types.TransportError{Detail: err.Error()}
	}

	accounts, err := m.client.Snapshot(ctx, types.ModelAccount)
	if err != nil {
		_ = m.channel.Close()
		return err
	}
	accountID := m.mirror.SeedAccounts(accounts)

	m.mu.Lock()
	m.accountID = accountID
	m.mu.Unlock()
	m.active.Store(true)

	loop := m.loops.Start(m.identity, m.listen)
	m.mu.Lock()
	m.loop = loop
	m.mu.Unlock()

	m.logger.Infof("logged in: accounts=%v default=%s", m.mirror.AccountList(), accountID)
	return nil
}

// Logout 注销所有订阅的处理函数，发送 logout 命令并停止监听循环；可重复调用。
// 会话已失效（例如重新登录失败）时仍会停止循环并关闭通道，只是不再发送 logout 命令。
func (m *Manager) Logout(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	wasActive := m.active.Swap(false)
	m.mu.RLock()
	loop := m.loop
	m.mu.RUnlock()
	if !wasActive && loop == nil && !m.channel.Connected() {
		return nil
	}

	dropped := m.subs.Clear()
	m.logger.Debugf("dropped %d subscription(s) on logout", len(dropped))

	var err error
	if wasActive {
		_, err = m.client.Logout(ctx)
	}

	m.stopLoop()
	_ = m.channel.Close()
	if err != nil {
		m.logger.Warnf("logout command failed: %v", err)
	}
	return err
}

// stopLoop 停止本会话的监听循环并等待其退出
func (m *Manager) stopLoop() {
	m.mu.Lock()
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()
	m.loops.Stop(loop)
}

// Close 等同于 Logout
func (m *Manager) Close() error {
	return m.Logout(context.Background())
}

// listen 以有限时长分片等待事件，每片之间检查停止信号
func (m *Manager) listen(ctx context.Context, loop *Loop) {
	m.mu.Lock()
	m.loopCtx = ctx
	m.mu.Unlock()

	m.logger.Debugf("listen loop %s started", loop.ID)
	defer m.logger.Debugf("listen loop %s stopped", loop.ID)

	for loop.KeepGoing() {
		err := m.channel.Wait(m.opts.WaitSlice)
		if !loop.KeepGoing() || ctx.Err() != nil {
			return
		}
		if err != nil {
			if !m.active.Load() {
				// 登录/登出过程中通道可能暂时关闭
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.opts.WaitSlice):
				}
				continue
			}
			m.reconnectSig.Emit()
		}
		select {
		case <-m.reconnectSig.C():
			if !m.reconnect(ctx, loop) {
				m.logger.Criticalf("push channel could not be re-established after %d attempts", m.opts.MaxReconnect)
				return
			}
			m.reconnectSig.Drain()
		default:
		}
	}
}

// reconnect 用同一个 token 重连；连接成功后 connect 事件负责重新订阅
func (m *Manager) reconnect(ctx context.Context, loop *Loop) bool {
	for attempt := 1; attempt <= m.opts.MaxReconnect; attempt++ {
		if !loop.KeepGoing() || !m.active.Load() || m.channel.Connected() {
			return true
		}
		err := m.channel.Connect(ctx)
		if err == nil {
			m.logger.Infof("push channel reconnected: sid=%s", m.channel.ClientID())
			return true
		}
		m.logger.Warnf("reconnect attempt %d/%d failed: %v", attempt, m.opts.MaxReconnect, err)
		select {
		case <-ctx.Done():
			return true
		case <-time.After(m.opts.ReconnectDelay * time.Duration(attempt)):
		}
	}
	return false
}

// onConnect 刷新品种元数据，重新发送已记录的订阅，再订阅默认模型列表
func (m *Manager) onConnect(json.RawMessage) {
	ctx := m.currentLoopCtx()
	m.logger.Infof("push channel connect event: sid=%s", m.channel.ClientID())

	offers, err := m.client.Snapshot(ctx, types.ModelOffer)
	if err != nil {
		m.logger.Errorf("load offers failed: %v", err)
	} else {
		n := m.mirror.SeedOffers(offers)
		m.logger.Debugf("loaded %d instrument(s)", n)
	}

	if _, err := m.subs.Resubscribe(ctx); err != nil {
		m.logger.Errorf("resubscribe: %v", err)
	}

	keys := make([]Key, 0, len(m.opts.SubscriptionList))
	for _, kind := range m.opts.SubscriptionList {
		keys = append(keys, ModelKey(kind))
	}
	if _, err := m.subs.SubscribeBatch(ctx, keys, m.handlerFor); err != nil {
		m.logger.Errorf("subscribe default models: %v", err)
	}
}

func (m *Manager) onDisconnect(json.RawMessage) {
	m.logger.Warnf("push channel disconnected")
	if m.active.Load() {
		m.reconnectSig.Emit()
	}
}

func (m *Manager) currentLoopCtx() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loopCtx == nil {
		return context.Background()
	}
	return m.loopCtx
}

func (m *Manager) handlerFor(key Key) socketio.Handler {
	if key.Kind == KeyModel {
		return m.dispatcher.ModelHandler(key.Name)
	}
	return m.dispatcher.PriceHandler(key.Name)
}

// SubscribeSymbols 订阅品种报价，逐个品种返回结果
func (m *Manager) SubscribeSymbols(ctx context.Context, symbols ...string) ([]KeyResult, error) {
	keys := make([]Key, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, SymbolKey(s))
	}
	return m.subs.SubscribeBatch(ctx, keys, m.handlerFor)
}

// UnsubscribeSymbols 退订品种报价
func (m *Manager) UnsubscribeSymbols(ctx context.Context, symbols ...string) ([]KeyResult, error) {
	keys := make([]Key, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, SymbolKey(s))
	}
	return m.subs.UnsubscribeBatch(ctx, keys)
}

// SubscribeModels 订阅模型推送
func (m *Manager) SubscribeModels(ctx context.Context, kinds ...types.ModelKind) ([]KeyResult, error) {
	keys := make([]Key, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, ModelKey(k))
	}
	return m.subs.SubscribeBatch(ctx, keys, m.handlerFor)
}

// UnsubscribeModels 退订模型推送
func (m *Manager) UnsubscribeModels(ctx context.Context, kinds ...types.ModelKind) ([]KeyResult, error) {
	keys := make([]Key, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, ModelKey(k))
	}
	return m.subs.UnsubscribeBatch(ctx, keys)
}

// Model 获取某个模型的当前快照（不写入镜像）
func (m *Manager) Model(ctx context.Context, kind types.ModelKind) ([]types.Record, error) {
	return m.client.Snapshot(ctx, kind)
}

// GetCandles 获取历史蜡烛
func (m *Manager) GetCandles(ctx context.Context, req types.CandleRequest) (*types.CandleResult, error) {
	return m.client.GetCandles(ctx, req)
}

// RequestReconnect 请求监听循环检查并重建推送连接
func (m *Manager) RequestReconnect() {
	m.reconnectSig.Emit()
}

// AccountID 快照中第一个非空账户 ID
func (m *Manager) AccountID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountID
}

// AccountList 快照顺序的账户 ID 列表
func (m *Manager) AccountList() []string { return m.mirror.AccountList() }

// Subscriptions 当前订阅
func (m *Manager) Subscriptions() []Key { return m.subs.Keys() }

// LoggedIn 是否处于登录状态
func (m *Manager) LoggedIn() bool { return m.active.Load() }

// Identity 监听循环的唯一标识
func (m *Manager) Identity() string { return m.identity }

// Name 日志名
func (m *Manager) Name() string { return m.name }

// Client 交易命令客户端
func (m *Manager) Client() *client.Client { return m.client }

// Mirror 本地状态镜像
func (m *Manager) Mirror() *marketstate.Mirror { return m.mirror }

// Channel 推送通道
func (m *Manager) Channel() *socketio.Channel { return m.channel }

// Registry 订阅表
func (m *Manager) Registry() *Registry { return m.subs }
