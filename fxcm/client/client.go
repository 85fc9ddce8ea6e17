package client

import (
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/pkg/ratelimit"
)

// ChannelState 推送通道在发送时刻的状态，每次请求都会重新读取
type ChannelState interface {
	Connected() bool
	ClientID() string
}

// InstrumentLookup 品种名到数字 ID 的解析
type InstrumentLookup interface {
	InstrumentID(symbol string) (int, bool)
}

// Config 客户端配置
type Config struct {
	Environment  types.Environment
	ClientID     string // OAuth client_id
	ClientSecret string
	Timeout      time.Duration
	RetryCount   int
	// RateLimiter 为 nil 时使用默认限流；DisableRateLimit 关闭限流
	RateLimiter      *ratelimit.RateLimitManager
	DisableRateLimit bool
	// Location 用于解析日期字符串和格式化 datestring，默认 time.Local
	Location *time.Location
	Logger   logger.Logger
}

// Client 交易 REST 客户端
type Client struct {
	env          types.Environment
	clientID     string
	clientSecret string
	http         *resty.Client
	rateLimiter  *ratelimit.RateLimitManager
	location     *time.Location
	logger       logger.Logger

	tokenMu sync.RWMutex
	token   string

	stateMu     sync.RWMutex
	channel     ChannelState
	instruments InstrumentLookup
}

// NewClient 创建新的交易客户端
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("fxcm-client")
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.Environment.TradingURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	limiter := cfg.RateLimiter
	if limiter == nil && !cfg.DisableRateLimit {
		limiter = ratelimit.NewRateLimitManager()
	}
	if cfg.DisableRateLimit {
		limiter = nil
	}

	return &Client{
		env:          cfg.Environment,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         httpClient,
		rateLimiter:  limiter,
		location:     cfg.Location,
		logger:       cfg.Logger,
	}
}

// Environment 返回当前交易环境
func (c *Client) Environment() types.Environment {
	return c.env
}

// Token 当前交易会话 token
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SetToken 设置交易会话 token
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = token
}

// AttachChannel 关联推送通道；之后每次请求发送前读取其连接状态和 client id
func (c *Client) AttachChannel(ch ChannelState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.channel = ch
}

// AttachInstruments 关联品种元数据，用于蜡烛请求解析品种名
func (c *Client) AttachInstruments(l InstrumentLookup) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.instruments = l
}

func (c *Client) channelState() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.channel
}

func (c *Client) instrumentLookup() InstrumentLookup {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.instruments
}
