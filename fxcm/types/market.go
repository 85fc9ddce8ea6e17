package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument 可交易品种（Offer）元数据
type Instrument struct {
	Symbol        string
	OfferID       int
	RatePrecision int32
	Fields        Record
}

// PriceQuote 某品种最新报价
type PriceQuote struct {
	Symbol  string
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Updated time.Time
}

// Order 订单当前字段快照及历史动作
type Order struct {
	ID      string
	Fields  Record
	Actions []Record
}

// Clone 深拷贝动作列表
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	actions := make([]Record, len(o.Actions))
	for i, a := range o.Actions {
		actions[i] = a.Clone()
	}
	return &Order{ID: o.ID, Fields: o.Fields.Clone(), Actions: actions}
}
