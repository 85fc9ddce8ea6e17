package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/gofx/fxcm/types"
)

// EnvironmentConfig 单个交易环境
type EnvironmentConfig struct {
	Auth    string `yaml:"auth" json:"auth"`       // OAuth token 地址
	Trading string `yaml:"trading" json:"trading"` // REST 交易地址
	Port    int    `yaml:"port" json:"port"`       // 推送通道端口
}

// AuthenticationConfig OAuth 客户端凭证
type AuthenticationConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
}

// RateLimitConfig 全局请求限流：window 秒内最多 requests 次，0 表示使用默认规则
type RateLimitConfig struct {
	Requests int `yaml:"requests" json:"requests"`
	Window   int `yaml:"window" json:"window"`
}

// Config 进程配置
type Config struct {
	Environments     map[string]EnvironmentConfig `yaml:"environments" json:"environments"`
	Authentication   AuthenticationConfig         `yaml:"authentication" json:"authentication"`
	SubscriptionList []string                     `yaml:"subscription_list" json:"subscription_list"`
	Symbols          []string                     `yaml:"symbols" json:"symbols"`
	LogLevel         string                       `yaml:"log_level" json:"log_level"`
	LogFile          string                       `yaml:"log_file" json:"log_file"`
	RateLimit        RateLimitConfig              `yaml:"rate_limit" json:"rate_limit"`
	StatusAddr       string                       `yaml:"status_addr" json:"status_addr"`
	CandleDB         string                       `yaml:"candle_db" json:"candle_db"`
	SecretDB         string                       `yaml:"secret_db" json:"secret_db"`
	Purpose          string                       `yaml:"purpose" json:"purpose"`
	Environment      string                       `yaml:"environment" json:"environment"` // 默认使用的环境名
	Timezone         string                       `yaml:"timezone" json:"timezone"`       // 蜡烛日期字符串的时区，默认本地
	CandlePeriod     string                       `yaml:"candle_period" json:"candle_period"`
	CandleCount      int                          `yaml:"candle_count" json:"candle_count"`
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置，再用环境变量覆盖（优先级：环境变量 > 配置文件 > 默认值）
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	// .env 可选，不存在时忽略；已存在的环境变量不会被覆盖
	_ = godotenv.Load()

	cfg := &Config{}
	if filePath != "" {
		fileCfg, err := loadConfigFile(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "加载配置文件失败 %s", filePath)
		}
		cfg = fileCfg
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	globalConfig = cfg
	configFilePath = filePath
	return cfg, nil
}

// Get 返回最近一次加载的配置
func Get() *Config {
	return globalConfig
}

// Reset 清除缓存的配置
func Reset() {
	globalConfig = nil
}

func loadConfigFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Authentication.ClientID = getEnv("FXCM_CLIENT_ID", cfg.Authentication.ClientID)
	cfg.Authentication.ClientSecret = getEnv("FXCM_CLIENT_SECRET", cfg.Authentication.ClientSecret)
	cfg.Environment = getEnv("FXCM_ENVIRONMENT", cfg.Environment)
	cfg.Purpose = getEnv("FXCM_PURPOSE", cfg.Purpose)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.StatusAddr = getEnv("STATUS_ADDR", cfg.StatusAddr)
	cfg.CandleDB = getEnv("CANDLE_DB", cfg.CandleDB)
	cfg.SecretDB = getEnv("SECRET_DB", cfg.SecretDB)
	cfg.Timezone = getEnv("FXCM_TIMEZONE", cfg.Timezone)
	if v := getEnv("FXCM_SYMBOLS", ""); v != "" {
		cfg.Symbols = splitList(v)
	}
	if v := getEnv("FXCM_SUBSCRIPTION_LIST", ""); v != "" {
		cfg.SubscriptionList = splitList(v)
	}
	cfg.RateLimit.Requests = parseIntEnv("RATE_LIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = parseIntEnv("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Purpose == "" {
		cfg.Purpose = "General"
	}
	if cfg.CandlePeriod == "" {
		cfg.CandlePeriod = "m1"
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = 100
	}
	if cfg.SubscriptionList == nil {
		cfg.SubscriptionList = []string{"Offer", "Account", "Order", "OpenPosition", "Summary", "Properties"}
	}
}

// EnvironmentNames 已配置的环境名，排序后返回
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveEnvironment 按名称返回环境描述；name 为空时使用 Config.Environment
func (c *Config) ResolveEnvironment(name string) (types.Environment, error) {
	if name == "" {
		name = c.Environment
	}
	env, ok := c.Environments[name]
	if !ok {
		return types.Environment{}, fmt.Errorf("environment %q not configured (known: %s)", name, strings.Join(c.EnvironmentNames(), ", "))
	}
	return types.Environment{
		Name:       name,
		AuthURL:    env.Auth,
		TradingURL: env.Trading,
		Port:       env.Port,
	}, nil
}

// Models 将 subscription_list 解析为模型列表，未知名称返回错误
func (c *Config) Models() ([]types.ModelKind, error) {
	out := make([]types.ModelKind, 0, len(c.SubscriptionList))
	for _, name := range c.SubscriptionList {
		kind := types.ParseModelKind(name)
		if !kind.Known() {
			return nil, fmt.Errorf("subscription_list: unknown model %q", name)
		}
		out = append(out, kind)
	}
	return out, nil
}

// Location 蜡烛 datestring 使用的时区
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate 校验选中的环境和订阅列表
func (c *Config) Validate(envName string) error {
	env, err := c.ResolveEnvironment(envName)
	if err != nil {
		return err
	}
	if env.AuthURL == "" {
		return fmt.Errorf("environment %s: auth 未配置", env.Name)
	}
	if env.TradingURL == "" {
		return fmt.Errorf("environment %s: trading 未配置", env.Name)
	}
	if _, err := c.Models(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return errors.Wrap(err, "timezone")
	}
	if c.RateLimit.Requests < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit 不能为负数")
	}
	return nil
}

// RateLimitWindow 限流窗口
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.Window) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
