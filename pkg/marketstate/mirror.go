package marketstate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
)

// DefaultMaxOrderActions 每个订单保留的历史动作上限
const DefaultMaxOrderActions = 100

// Mirror 服务器状态的本地镜像。
// 只有推送分发和初始快照会写入；每类集合各自一把锁。
type Mirror struct {
	logger          logger.Logger
	maxOrderActions int

	accountsMu  sync.RWMutex
	accounts    map[string]types.Record
	accountList []string

	ordersMu sync.RWMutex
	orders   map[string]*types.Order

	positionsMu     sync.RWMutex
	openPositions   map[string]types.Record
	closedPositions map[string]types.Record

	instrumentsMu sync.RWMutex
	instruments   map[string]types.Instrument // symbol -> metadata
	symbolByID    map[int]string              // offerId -> symbol

	pricesMu sync.RWMutex
	prices   map[string]types.PriceQuote

	summaryMu sync.RWMutex
	summary   map[string]types.Record

	propertiesMu sync.RWMutex
	properties   map[string]types.Record

	leverageMu sync.RWMutex
	leverage   []types.Record
}

// Option 镜像选项
type Option func(*Mirror)

// WithMaxOrderActions 设置订单历史动作上限
func WithMaxOrderActions(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.maxOrderActions = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// New 创建空镜像
func New(opts ...Option) *Mirror {
	m := &Mirror{
		logger:          logger.Named("marketstate"),
		maxOrderActions: DefaultMaxOrderActions,
		accounts:        make(map[string]types.Record),
		orders:          make(map[string]*types.Order),
		openPositions:   make(map[string]types.Record),
		closedPositions: make(map[string]types.Record),
		instruments:     make(map[string]types.Instrument),
		symbolByID:      make(map[int]string),
		prices:          make(map[string]types.PriceQuote),
		summary:         make(map[string]types.Record),
		properties:      make(map[string]types.Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SeedAccounts 用 Account 快照初始化账户；返回快照顺序中第一个非空 accountId
func (m *Mirror) SeedAccounts(records []types.Record) string {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	m.accounts = make(map[string]types.Record, len(records))
	m.accountList = make([]string, 0, len(records))
	defaultID := ""
	for _, rec := range records {
		id, _ := rec.String("accountId")
		m.accountList = append(m.accountList, id)
		m.accounts[id] = rec.Clone()
		if defaultID == "" && id != "" {
			defaultID = id
		}
	}
	return defaultID
}

// ApplyAccount 按 accountId 合并字段
func (m *Mirror) ApplyAccount(rec types.Record) error {
	id, ok := rec.String("accountId")
	if !ok {
		return fmt.Errorf("account update without accountId")
	}
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	cur, exists := m.accounts[id]
	if !exists {
		cur = make(types.Record, len(rec))
		m.accountList = append(m.accountList, id)
	}
	for k, v := range rec {
		cur[k] = v
	}
	m.accounts[id] = cur
	return nil
}

// ApplyOrder 带 action 字段时追加一条历史，随后覆盖当前字段
func (m *Mirror) ApplyOrder(rec types.Record) error {
	id, _ := rec.String("orderId")

	m.ordersMu.Lock()
	defer m.ordersMu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		order = &types.Order{ID: id, Fields: make(types.Record, len(rec))}
		m.orders[id] = order
	}
	if _, hasAction := rec["action"]; hasAction {
		order.Actions = append(order.Actions, rec.Clone())
		if over := len(order.Actions) - m.maxOrderActions; over > 0 {
			order.Actions = append([]types.Record(nil), order.Actions[over:]...)
		}
	}
	for k, v := range rec {
		order.Fields[k] = v
	}
	return nil
}

// ApplyOpenPosition 按 tradeId 整体替换
func (m *Mirror) ApplyOpenPosition(rec types.Record) error {
	return m.replacePosition(m.openPositions, rec)
}

// ApplyClosedPosition 按 tradeId 整体替换
func (m *Mirror) ApplyClosedPosition(rec types.Record) error {
	return m.replacePosition(m.closedPositions, rec)
}

func (m *Mirror) replacePosition(dst map[string]types.Record, rec types.Record) error {
	id, ok := rec.String("tradeId")
	if !ok {
		return fmt.Errorf("position update without tradeId")
	}
	m.positionsMu.Lock()
	defer m.positionsMu.Unlock()
	dst[id] = rec.Clone()
	return nil
}

// ApplySummary 按 offerId 整体替换
func (m *Mirror) ApplySummary(rec types.Record) error {
	id, ok := rec.String("offerId")
	if !ok {
		return fmt.Errorf("summary update without offerId")
	}
	m.summaryMu.Lock()
	defer m.summaryMu.Unlock()
	m.summary[id] = rec.Clone()
	return nil
}

// ApplyProperties 按 offerId 整体替换，并补上 symbol 字段
func (m *Mirror) ApplyProperties(rec types.Record) error {
	rec = rec.Clone()
	key := "account"
	if id, ok := rec.Int("offerId"); ok {
		key, _ = rec.String("offerId")
		if symbol, found := m.SymbolForID(int(id)); found {
			rec["symbol"] = symbol
		}
	}
	m.propertiesMu.Lock()
	defer m.propertiesMu.Unlock()
	m.properties[key] = rec
	return nil
}

// ApplyLeverageProfile 保留最新一条
func (m *Mirror) ApplyLeverageProfile(rec types.Record) error {
	m.leverageMu.Lock()
	defer m.leverageMu.Unlock()
	m.leverage = []types.Record{rec.Clone()}
	return nil
}

// SeedOffers 用 Offer 快照重建品种元数据
func (m *Mirror) SeedOffers(records []types.Record) int {
	instruments := make(map[string]types.Instrument, len(records))
	symbolByID := make(map[int]string, len(records))
	for _, rec := range records {
		inst, ok := instrumentFromRecord(rec, "")
		if !ok {
			m.logger.Warnf("offer without currency/offerId skipped: %v", rec)
			continue
		}
		instruments[inst.Symbol] = inst
		symbolByID[inst.OfferID] = inst.Symbol
	}

	m.instrumentsMu.Lock()
	defer m.instrumentsMu.Unlock()
	m.instruments = instruments
	m.symbolByID = symbolByID
	return len(instruments)
}

// ApplyOffer 整体替换一个品种；缺失的 currency/offerId/ratePrecision 从已有记录补齐，两个方向的映射保持一致
func (m *Mirror) ApplyOffer(rec types.Record) error {
	m.instrumentsMu.Lock()
	defer m.instrumentsMu.Unlock()

	symbol, _ := rec.String("currency")
	if symbol == "" {
		if id, ok := rec.Int("offerId"); ok {
			symbol = m.symbolByID[int(id)]
		}
	}
	if symbol == "" {
		return fmt.Errorf("offer update for unknown instrument: %v", rec)
	}
	prev, exists := m.instruments[symbol]
	_, hasID := rec.Int("offerId")
	_, hasPrecision := rec.Int("ratePrecision")
	if !hasID && !exists {
		return fmt.Errorf("offer update for %s without offerId", symbol)
	}
	if exists && (!hasID || !hasPrecision) {
		rec = rec.Clone()
		if !hasID {
			rec["offerId"] = prev.OfferID
		}
		// 增量推送不带精度时沿用原精度
		if !hasPrecision {
			rec["ratePrecision"] = int(prev.RatePrecision)
		}
	}
	inst, ok := instrumentFromRecord(rec, symbol)
	if !ok {
		return fmt.Errorf("malformed offer update: %v", rec)
	}
	if prev, exists := m.instruments[symbol]; exists && prev.OfferID != inst.OfferID {
		delete(m.symbolByID, prev.OfferID)
	}
	if prevSymbol, exists := m.symbolByID[inst.OfferID]; exists && prevSymbol != symbol {
		delete(m.instruments, prevSymbol)
	}
	m.instruments[symbol] = inst
	m.symbolByID[inst.OfferID] = symbol
	return nil
}

func instrumentFromRecord(rec types.Record, symbol string) (types.Instrument, bool) {
	if symbol == "" {
		symbol, _ = rec.String("currency")
	}
	id, ok := rec.Int("offerId")
	if symbol == "" || !ok {
		return types.Instrument{}, false
	}
	fields := rec.Clone()
	fields["currency"] = symbol
	precision, _ := rec.Int("ratePrecision")
	return types.Instrument{
		Symbol:        symbol,
		OfferID:       int(id),
		RatePrecision: int32(precision),
		Fields:        fields,
	}, true
}

// PriceUpdate 报价推送 {Symbol, Rates:[bid,ask,high,low], Updated}
type PriceUpdate struct {
	Symbol  string    `json:"Symbol"`
	Rates   []float64 `json:"Rates"`
	Updated int64     `json:"Updated"`
}

// ApplyPrice 更新报价；品种元数据不存在时拒绝，不会创建残缺记录
func (m *Mirror) ApplyPrice(u PriceUpdate) error {
	inst, ok := m.Instrument(u.Symbol)
	if !ok {
		return &types.UnknownInstrumentError{Instrument: u.Symbol}
	}
	if len(u.Rates) < 4 {
		return fmt.Errorf("price update for %s has %d rates, want 4", u.Symbol, len(u.Rates))
	}
	round := func(v float64) decimal.Decimal {
		d := decimal.NewFromFloat(v)
		if inst.RatePrecision > 0 {
			d = d.Round(inst.RatePrecision)
		}
		return d
	}
	quote := types.PriceQuote{
		Symbol:  u.Symbol,
		Bid:     round(u.Rates[0]),
		Ask:     round(u.Rates[1]),
		High:    round(u.Rates[2]),
		Low:     round(u.Rates[3]),
		Updated: time.UnixMilli(u.Updated),
	}

	m.pricesMu.Lock()
	defer m.pricesMu.Unlock()
	m.prices[u.Symbol] = quote
	return nil
}

// AccountList 账户 ID，保持快照顺序
func (m *Mirror) AccountList() []string {
	m.accountsMu.RLock()
	defer m.accountsMu.RUnlock()
	return append([]string(nil), m.accountList...)
}

// Account 单个账户
func (m *Mirror) Account(id string) (types.Record, bool) {
	m.accountsMu.RLock()
	defer m.accountsMu.RUnlock()
	rec, ok := m.accounts[id]
	return rec.Clone(), ok
}

// Accounts 全部账户
func (m *Mirror) Accounts() map[string]types.Record {
	m.accountsMu.RLock()
	defer m.accountsMu.RUnlock()
	return cloneRecords(m.accounts)
}

// Order 单个订单
func (m *Mirror) Order(id string) (*types.Order, bool) {
	m.ordersMu.RLock()
	defer m.ordersMu.RUnlock()
	o, ok := m.orders[id]
	return o.Clone(), ok
}

// Orders 全部订单，按 ID 排序
func (m *Mirror) Orders() []*types.Order {
	m.ordersMu.RLock()
	defer m.ordersMu.RUnlock()
	out := make([]*types.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenPositions 持仓
func (m *Mirror) OpenPositions() map[string]types.Record {
	m.positionsMu.RLock()
	defer m.positionsMu.RUnlock()
	return cloneRecords(m.openPositions)
}

// ClosedPositions 已平仓
func (m *Mirror) ClosedPositions() map[string]types.Record {
	m.positionsMu.RLock()
	defer m.positionsMu.RUnlock()
	return cloneRecords(m.closedPositions)
}

// Summary 按 offerId
func (m *Mirror) Summary() map[string]types.Record {
	m.summaryMu.RLock()
	defer m.summaryMu.RUnlock()
	return cloneRecords(m.summary)
}

// Properties 按 offerId
func (m *Mirror) Properties() map[string]types.Record {
	m.propertiesMu.RLock()
	defer m.propertiesMu.RUnlock()
	return cloneRecords(m.properties)
}

// LeverageProfile 最新的杠杆配置
func (m *Mirror) LeverageProfile() []types.Record {
	m.leverageMu.RLock()
	defer m.leverageMu.RUnlock()
	out := make([]types.Record, 0, len(m.leverage))
	for _, r := range m.leverage {
		out = append(out, r.Clone())
	}
	return out
}

// Instrument 按品种名查询元数据
func (m *Mirror) Instrument(symbol string) (types.Instrument, bool) {
	m.instrumentsMu.RLock()
	defer m.instrumentsMu.RUnlock()
	inst, ok := m.instruments[symbol]
	return inst, ok
}

// Instruments 全部品种，按名称排序
func (m *Mirror) Instruments() []types.Instrument {
	m.instrumentsMu.RLock()
	defer m.instrumentsMu.RUnlock()
	out := make([]types.Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// InstrumentID 品种名 -> offerId
func (m *Mirror) InstrumentID(symbol string) (int, bool) {
	inst, ok := m.Instrument(symbol)
	return inst.OfferID, ok
}

// SymbolForID offerId -> 品种名
func (m *Mirror) SymbolForID(id int) (string, bool) {
	m.instrumentsMu.RLock()
	defer m.instrumentsMu.RUnlock()
	s, ok := m.symbolByID[id]
	return s, ok
}

// Price 某品种最新报价
func (m *Mirror) Price(symbol string) (types.PriceQuote, bool) {
	m.pricesMu.RLock()
	defer m.pricesMu.RUnlock()
	q, ok := m.prices[symbol]
	return q, ok
}

// Prices 全部报价
func (m *Mirror) Prices() map[string]types.PriceQuote {
	m.pricesMu.RLock()
	defer m.pricesMu.RUnlock()
	out := make(map[string]types.PriceQuote, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

func cloneRecords(src map[string]types.Record) map[string]types.Record {
	out := make(map[string]types.Record, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}
