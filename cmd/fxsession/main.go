package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	fxlog "github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/internal/candlestore"
	"github.com/betbot/gofx/internal/statusapi"
	"github.com/betbot/gofx/pkg/config"
	"github.com/betbot/gofx/pkg/logger"
	"github.com/betbot/gofx/pkg/ratelimit"
	"github.com/betbot/gofx/pkg/secretstore"
	"github.com/betbot/gofx/pkg/session"
	"github.com/betbot/gofx/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "yml/fxcm.yaml", "配置文件路径（支持 .yaml, .yml, .json）")
	envName := flag.String("env", "", "交易环境名（默认取配置中的 environment）")
	purpose := flag.String("purpose", "", "会话用途标识，同一用户+环境+用途只保留一个监听循环")
	secretDB := flag.String("secret-db", "", "badger 凭证库路径（默认取配置中的 secret_db）")
	flag.Parse()

	if _, err := os.Stat(*configPath); err == nil {
		config.SetConfigPath(*configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}
	if file := logger.GetCurrentLogFile(); file != "" {
		logrus.Infof("日志写入 %s", file)
	}

	if err := cfg.Validate(*envName); err != nil {
		logrus.Errorf("配置校验失败: %v", err)
		os.Exit(1)
	}
	env, _ := cfg.ResolveEnvironment(*envName)
	models, _ := cfg.Models()
	loc, _ := cfg.Location()
	if *purpose == "" {
		*purpose = cfg.Purpose
	}
	if *secretDB == "" {
		*secretDB = cfg.SecretDB
	}

	creds, err := loadCredentials(*secretDB, env.Name)
	if err != nil {
		logrus.Errorf("读取凭证失败: %v", err)
		os.Exit(1)
	}
	if creds.ClientID == "" {
		creds.ClientID = cfg.Authentication.ClientID
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = cfg.Authentication.ClientSecret
	}

	var limiter *ratelimit.RateLimitManager
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		limiter = ratelimit.NewGeneralRateLimitManager(cfg.RateLimit.Requests, cfg.RateLimitWindow())
	}

	sess, err := session.New(session.Options{
		User:             creds.User,
		Password:         creds.Password,
		Purpose:          *purpose,
		Environment:      env,
		ClientID:         creds.ClientID,
		ClientSecret:     creds.ClientSecret,
		SubscriptionList: models,
		RateLimiter:      limiter,
		Location:         loc,
		Logger:           fxlog.FromEntry(logger.WithField("session", creds.User+"_"+env.Name+"_"+*purpose)),
	})
	if err != nil {
		logrus.Errorf("创建会话失败: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Login(ctx); err != nil {
		logrus.Errorf("登录失败: %v", err)
		os.Exit(1)
	}
	logrus.Infof("会话 %s 已登录: env=%s account=%s", sess.Name(), env.Name, sess.AccountID())

	shutdownManager := shutdown.NewManager()
	shutdownManager.OnShutdown("session", func(ctx context.Context) error {
		return sess.Logout(ctx)
	})

	if len(cfg.Symbols) > 0 {
		if _, err := sess.SubscribeSymbols(ctx, cfg.Symbols...); err != nil {
			logrus.Warnf("部分品种订阅失败: %v", err)
		}
	}

	var store *candlestore.Store
	if cfg.CandleDB != "" {
		store, err = candlestore.Open(cfg.CandleDB)
		if err != nil {
			logrus.Errorf("打开蜡烛库失败: %v", err)
		} else {
			shutdownManager.OnShutdown("candlestore", func(context.Context) error { return store.Close() })
			archiveCandles(ctx, sess, store, cfg)
		}
	}

	if cfg.StatusAddr != "" {
		api := statusapi.New(sess, store, fxlog.FromEntry(logger.WithField("component", "statusapi")))
		go func() {
			if err := api.ListenAndServe(cfg.StatusAddr); err != nil {
				logrus.Errorf("status api 退出: %v", err)
			}
		}()
		shutdownManager.OnShutdown("statusapi", api.Shutdown)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logrus.Infof("收到信号 %v，开始退出", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if pending := shutdownManager.Shutdown(shutdownCtx); len(pending) > 0 {
		logrus.Warnf("未完成的关闭回调: %s", strings.Join(pending, ", "))
	}
}

// loadCredentials 优先从 badger 凭证库读取，缺失时回退到 FXCM_USER/FXCM_PASSWORD
func loadCredentials(dbPath, env string) (secretstore.Credentials, error) {
	creds := secretstore.Credentials{
		User:     strings.TrimSpace(os.Getenv("FXCM_USER")),
		Password: os.Getenv("FXCM_PASSWORD"),
	}
	if dbPath == "" {
		return requireCredentials(creds)
	}

	key, err := secretstore.ParseKey(os.Getenv("FXCM_SECRET_KEY"))
	if err != nil {
		return creds, err
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: dbPath, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return creds, err
	}
	defer ss.Close()

	stored, found, err := ss.LoadCredentials(env)
	if err != nil {
		return creds, err
	}
	if found {
		return stored, nil
	}
	creds.ClientID, creds.ClientSecret = stored.ClientID, stored.ClientSecret
	return requireCredentials(creds)
}

func requireCredentials(c secretstore.Credentials) (secretstore.Credentials, error) {
	if c.User == "" || c.Password == "" {
		return c, fmt.Errorf("no credentials: store them with env2badger or set FXCM_USER/FXCM_PASSWORD")
	}
	return c, nil
}

// archiveCandles 启动时为每个品种拉取一批蜡烛写入本地库
func archiveCandles(ctx context.Context, sess *session.Manager, store *candlestore.Store, cfg *config.Config) {
	for _, symbol := range cfg.Symbols {
		result, err := sess.GetCandles(ctx, types.CandleRequest{
			Instrument: symbol,
			Period:     cfg.CandlePeriod,
			Count:      cfg.CandleCount,
		})
		if err != nil {
			logrus.Warnf("获取 %s 蜡烛失败: %v", symbol, err)
			continue
		}
		n, err := store.Save(ctx, symbol, cfg.CandlePeriod, result)
		if err != nil {
			logrus.Warnf("保存 %s 蜡烛失败: %v", symbol, err)
			continue
		}
		logrus.Infof("已归档 %s %s 蜡烛 %d 根", symbol, cfg.CandlePeriod, n)
	}
}
