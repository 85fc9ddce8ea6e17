package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
)

// ErrNotConnected 通道未连接或连接已断开
var ErrNotConnected = errors.New("socketio: not connected")

// Handler 事件处理函数，data 为事件参数的原始 JSON
type Handler func(data json.RawMessage)

// Config 推送通道配置
type Config struct {
	Environment      types.Environment
	ProxyURL         string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval 为 0 时使用服务器握手给出的间隔
	PingInterval time.Duration
	// EventBuffer 未被 Wait 取走的事件缓冲大小
	EventBuffer int
	Logger      logger.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig(env types.Environment) Config {
	return Config{
		Environment:      env,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
		EventBuffer:      1024,
	}
}

type event struct {
	name string
	data json.RawMessage
	gen  uint64
}

// link 单次 WebSocket 连接
type link struct {
	ws      *websocket.Conn
	gen     uint64
	sid     string
	stop    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.stop)
		_ = l.ws.Close()
	})
}

// Channel Socket.IO 推送通道。
// 事件由后台 goroutine 读取并缓存，由调用 Wait 的 goroutine 分发给处理函数。
type Channel struct {
	cfg    Config
	logger logger.Logger

	mu    sync.RWMutex
	token string
	cur   *link
	gen   atomic.Uint64

	handlersMutex sync.RWMutex
	handlers      map[string]Handler

	events chan event
	wg     sync.WaitGroup
}

// New 创建推送通道，尚未连接
func New(cfg Config) *Channel {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("socketio")
	}
	return &Channel{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string]Handler),
		events:   make(chan event, cfg.EventBuffer),
	}
}

// SetToken 设置连接使用的 access token，重连沿用同一个 token
func (c *Channel) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Connected 是否已连接
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur != nil
}

// ClientID 当前连接的 Engine.IO sid，未连接时为空；每次重连都会变化
func (c *Channel) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.sid
}

// On 注册事件处理函数，同名重复注册时后者覆盖前者
func (c *Channel) On(name string, h Handler) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	c.handlers[name] = h
}

// Off 注销事件处理函数，未注册时无操作
func (c *Channel) Off(name string) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	delete(c.handlers, name)
}

// Has 是否注册了该事件
func (c *Channel) Has(name string) bool {
	c.handlersMutex.RLock()
	defer c.handlersMutex.RUnlock()
	_, ok := c.handlers[name]
	return ok
}

// Connect 建立连接并完成 Engine.IO 握手；返回时 Connected() 和 ClientID() 已可用
func (c *Channel) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	endpoint, err := c.endpoint(token)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if c.cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(c.cfg.ProxyURL)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("push channel handshake: %w", err)
	}
	hs, err := parseHandshake(string(data))
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("push channel handshake: %w", err)
	}

	pingInterval := c.cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = time.Duration(hs.PingInterval) * time.Millisecond
	}
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	readTimeout := pingInterval + time.Duration(hs.PingTimeout)*time.Millisecond
	if hs.PingTimeout <= 0 {
		readTimeout = 2 * pingInterval
	}
	_ = ws.SetReadDeadline(time.Time{})

	l := &link{
		ws:   ws,
		sid:  hs.SID,
		stop: make(chan struct{}),
	}

	c.mu.Lock()
	if c.cur != nil {
		c.mu.Unlock()
		l.shutdown()
		return nil
	}
	l.gen = c.gen.Add(1)
	c.cur = l
	c.mu.Unlock()

	c.logger.Infof("push channel connected: sid=%s", hs.SID)

	c.wg.Add(2)
	go c.readMessages(l, readTimeout)
	go c.sendPings(l, pingInterval)
	return nil
}

func (c *Channel) endpoint(token string) (string, error) {
	u, err := c.cfg.Environment.PushURL()
	if err != nil {
		return "", fmt.Errorf("invalid trading URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	q := url.Values{}
	q.Set("EIO", "3")
	q.Set("transport", "websocket")
	if token != "" {
		q.Set("access_token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Close 主动断开连接，等待后台 goroutine 退出（最多 3 秒）
func (c *Channel) Close() error {
	c.mu.Lock()
	l := c.cur
	c.cur = nil
	c.mu.Unlock()

	if l != nil {
		_ = c.write(l, string([]byte{engineMessage, socketDisconnect}))
		l.shutdown()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		c.logger.Warnf("timed out waiting for push channel goroutines to exit")
	}
	return nil
}

// Wait 在调用者的 goroutine 中分发事件，直到超时（返回 nil）或连接断开（返回 ErrNotConnected）。
// timeout <= 0 表示一直等到断开。可反复调用。
func (c *Channel) Wait(timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if !c.Connected() && len(c.events) == 0 {
			return ErrNotConnected
		}
		select {
		case ev := <-c.events:
			if ev.name == EventDisconnect && ev.gen != c.gen.Load() {
				// 旧连接的断开事件，重连后已无意义
				continue
			}
			c.dispatch(ev)
			if ev.name == EventDisconnect {
				return ErrNotConnected
			}
		case <-deadline:
			return nil
		}
	}
}

func (c *Channel) dispatch(ev event) {
	c.handlersMutex.RLock()
	h := c.handlers[ev.name]
	c.handlersMutex.RUnlock()
	if h == nil {
		c.logger.Debugf("no handler for event %s", ev.name)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("handler for %s panicked: %v", ev.name, r)
		}
	}()
	h(ev.data)
}

func (c *Channel) enqueue(l *link, ev event) {
	select {
	case c.events <- ev:
	case <-l.stop:
	}
}

// readMessages 读取并解析数据包；连接失败时投递一次 disconnect 事件
func (c *Channel) readMessages(l *link, readTimeout time.Duration) {
	defer c.wg.Done()

	for {
		_ = l.ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			select {
			case <-l.stop:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warnf("push channel read error: %v", err)
				}
			}
			c.drop(l)
			return
		}

		packet := strings.TrimSpace(string(data))
		if packet == "" {
			continue
		}
		switch packet[0] {
		case enginePing:
			_ = c.write(l, string(enginePong)+packet[1:])
		case enginePong, engineNoop:
		case engineClose:
			c.drop(l)
			return
		case engineMessage:
			if !c.handleSocketPacket(l, packet[1:]) {
				c.drop(l)
				return
			}
		default:
			c.logger.Debugf("ignoring packet %q", truncateForLog(packet, 64))
		}
	}
}

// handleSocketPacket 返回 false 表示服务器断开了 namespace
func (c *Channel) handleSocketPacket(l *link, body string) bool {
	if body == "" {
		return true
	}
	switch body[0] {
	case socketConnect:
		c.enqueue(l, event{name: EventConnect, gen: l.gen})
	case socketDisconnect:
		return false
	case socketEvent:
		name, data, err := parseEvent(body[1:])
		if err != nil {
			c.logger.Errorf("failed to parse event: %v (preview=%q)", err, truncateForLog(body, 240))
			return true
		}
		c.enqueue(l, event{name: name, data: data, gen: l.gen})
	case socketError:
		c.logger.Errorf("push channel error packet: %s", truncateForLog(body[1:], 240))
	default:
		c.logger.Debugf("ignoring socket packet %q", truncateForLog(body, 64))
	}
	return true
}

// drop 标记连接断开（仅当 l 仍是当前连接）并投递 disconnect 事件
func (c *Channel) drop(l *link) {
	c.mu.Lock()
	current := c.cur == l
	if current {
		c.cur = nil
	}
	c.mu.Unlock()

	l.shutdown()
	if !current {
		return
	}
	c.logger.Warnf("push channel disconnected: sid=%s", l.sid)
	select {
	case c.events <- event{name: EventDisconnect, gen: l.gen}:
	default:
		c.logger.Errorf("event buffer full, disconnect event dropped")
	}
}

// sendPings Engine.IO v3 由客户端发 ping
func (c *Channel) sendPings(l *link, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := c.write(l, string(enginePing)); err != nil {
				c.logger.Warnf("push channel ping failed: %v", err)
				c.drop(l)
				return
			}
		}
	}
}

func (c *Channel) write(l *link, packet string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return l.ws.WriteMessage(websocket.TextMessage, []byte(packet))
}
