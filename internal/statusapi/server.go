// Package statusapi 只读的会话状态 HTTP 接口
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/internal/candlestore"
	"github.com/betbot/gofx/pkg/marketstate"
	"github.com/betbot/gofx/pkg/session"
)

// SessionView 接口需要的会话只读视图，*session.Manager 实现了它
type SessionView interface {
	Mirror() *marketstate.Mirror
	Subscriptions() []session.Key
	LoggedIn() bool
	AccountID() string
	Name() string
}

type Server struct {
	view    SessionView
	candles *candlestore.Store
	logger  logger.Logger

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// New candles 为 nil 时蜡烛接口返回 404
func New(view SessionView, candles *candlestore.Store, log logger.Logger) *Server {
	if log == nil {
		log = logger.Named("statusapi")
	}
	return &Server{view: view, candles: candles, logger: log}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.GET("/accounts", s.handleAccounts)
	api.GET("/orders", s.handleOrders)
	api.GET("/positions/open", s.handleOpenPositions)
	api.GET("/positions/closed", s.handleClosedPositions)
	api.GET("/offers", s.handleOffers)
	api.GET("/prices", s.handlePrices)
	api.GET("/subscriptions", s.handleSubscriptions)
	api.GET("/candles/*path", s.handleCandles)
	return r
}

// ListenAndServe 阻塞直到 Shutdown 或监听失败；Shutdown 之后调用直接返回 nil
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	s.http = srv
	s.mu.Unlock()

	s.logger.Infof("status api listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 可以在 ListenAndServe 之前、之中或之后调用
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http != nil
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	if !s.view.LoggedIn() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"session": s.view.Name(), "logged_in": s.view.LoggedIn()})
}

func (s *Server) handleAccounts(c *gin.Context) {
	m := s.view.Mirror()
	c.JSON(http.StatusOK, gin.H{
		"account_id":   s.view.AccountID(),
		"account_list": m.AccountList(),
		"accounts":     m.Accounts(),
	})
}

func (s *Server) handleOrders(c *gin.Context) {
	orders := s.view.Mirror().Orders()
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, gin.H{"id": o.ID, "fields": o.Fields, "actions": o.Actions})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOpenPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.view.Mirror().OpenPositions())
}

func (s *Server) handleClosedPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.view.Mirror().ClosedPositions())
}

func (s *Server) handleOffers(c *gin.Context) {
	instruments := s.view.Mirror().Instruments()
	out := make([]gin.H, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, gin.H{
			"symbol":         inst.Symbol,
			"offer_id":       inst.OfferID,
			"rate_precision": inst.RatePrecision,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePrices(c *gin.Context) {
	prices := s.view.Mirror().Prices()
	out := make(map[string]gin.H, len(prices))
	for symbol, q := range prices {
		out[symbol] = gin.H{
			"bid":     q.Bid.String(),
			"ask":     q.Ask.String(),
			"high":    q.High.String(),
			"low":     q.Low.String(),
			"updated": q.Updated.UTC().Format(time.RFC3339Nano),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSubscriptions(c *gin.Context) {
	keys := s.view.Subscriptions()
	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		kind := "symbol"
		if k.Kind == session.KeyModel {
			kind = "model"
		}
		out = append(out, gin.H{"name": k.Name, "kind": kind})
	}
	c.JSON(http.StatusOK, out)
}

// handleCandles /api/candles/{instrument}/{period}；品种名本身含 "/"，所以最后一段是周期
func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "candle archive disabled"})
		return
	}
	instrument, period, ok := splitCandlePath(c.Param("path"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected /api/candles/{instrument}/{period}"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	rows, err := s.candles.Load(c.Request.Context(), instrument, period, limit)
	if err != nil {
		s.logger.Errorf("load candles %s %s: %v", instrument, period, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	result := &types.CandleResult{Period: period, Headers: types.CandleHeaders, Candles: rows}
	c.JSON(http.StatusOK, gin.H{
		"instrument": instrument,
		"period":     period,
		"headers":    result.Headers,
		"candles":    result.Rows(),
	})
}

func splitCandlePath(p string) (instrument, period string, ok bool) {
	p = strings.TrimLeft(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 || idx == len(p)-1 {
		return "", "", false
	}
	return p[:idx], p[idx+1:], true
}
