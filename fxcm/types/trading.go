package types

// 默认下单参数
const (
	DefaultTimeInForce = "GTC"
	DefaultOrderType   = "AtMarket"
)

// OpenTradeRequest 市价单（At Best / Market Range），可附带止损止盈
type OpenTradeRequest struct {
	AccountID    string
	Symbol       string
	IsBuy        *bool
	Amount       *float64
	Rate         *float64 // 默认 0
	AtMarket     *float64 // 默认 0
	TimeInForce  string   // 默认 GTC
	OrderType    string   // 默认 AtMarket
	Stop         *float64
	TrailingStep *float64
	Limit        *float64
	IsInPips     *bool
}

// DeleteOrderRequest 与 OpenTradeRequest 参数相同
type DeleteOrderRequest = OpenTradeRequest

// CloseTradeRequest 平仓
type CloseTradeRequest struct {
	TradeID     string
	Amount      *float64
	AtMarket    *float64 // 默认 0
	TimeInForce string   // 默认 GTC
	OrderType   string   // 默认 AtMarket
	Rate        *float64
}

// ChangeOrderRequest 修改挂单价格/数量
type ChangeOrderRequest struct {
	OrderID      string
	Rate         *float64
	Range        *float64
	Amount       *float64
	TrailingStep *float64
}

// EntryOrderRequest 限价/止损入场单
type EntryOrderRequest struct {
	AccountID    string
	Symbol       string
	IsBuy        *bool
	Amount       *float64
	Limit        *float64
	IsInPips     *bool
	OrderType    string
	TimeInForce  string
	Rate         *float64 // 可选，nil 时不发送
	Stop         *float64
	TrailingStep *float64
}

// SimpleOCORequest 两腿 OCO
type SimpleOCORequest struct {
	AccountID         string
	Symbol            string
	Amount            *float64
	IsInPips          *bool
	TimeInForce       string
	Expiration        string
	IsBuy             *bool
	Rate              *float64
	Stop              *float64
	TrailingStep      *float64
	TrailingStopStep  *float64
	Limit             *float64
	AtMarket          *float64
	OrderType         string
	IsBuy2            *bool
	Rate2             *float64
	Stop2             *float64
	TrailingStep2     *float64
	TrailingStopStep2 *float64
	Limit2            *float64
}

// StopLimitRequest 创建/修改/删除交易或订单上的止损止盈
type StopLimitRequest struct {
	ID           string // trade_id 或 order_id
	IsStop       *bool
	Rate         *float64
	IsInPips     *bool
	TrailingStep *float64
}

// CloseAllRequest 按品种全部平仓
type CloseAllRequest struct {
	AccountID   string
	ForSymbol   *bool
	Symbol      string
	OrderType   string
	TimeInForce string
}
