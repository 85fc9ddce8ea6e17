package client

import (
	"context"
	"net/http"

	"github.com/betbot/gofx/fxcm/types"
)

// OpenTrade 创建市价单，可附带止损、止盈和追踪止损
func (c *Client) OpenTrade(ctx context.Context, req types.OpenTradeRequest) (*types.Response, error) {
	p := marketOrderParams("open_trade", req)
	return c.post(ctx, EndpointOpenTrade, p)
}

// DeleteOrder 删除挂单
func (c *Client) DeleteOrder(ctx context.Context, req types.DeleteOrderRequest) (*types.Response, error) {
	p := marketOrderParams("delete_order", req)
	return c.post(ctx, EndpointDeleteOrder, p)
}

func marketOrderParams(command string, req types.OpenTradeRequest) *params {
	p := newParams(command)
	p.str("account_id", req.AccountID, true)
	p.str("symbol", req.Symbol, true)
	p.boolean("is_buy", req.IsBuy, true)
	p.float("amount", req.Amount, true)
	p.float("rate", floatOrZero(req.Rate), true)
	p.float("at_market", floatOrZero(req.AtMarket), true)
	p.str("time_in_force", orDefault(req.TimeInForce, types.DefaultTimeInForce), true)
	p.str("order_type", orDefault(req.OrderType, types.DefaultOrderType), true)
	p.float("stop", req.Stop, false)
	p.float("trailing_step", req.TrailingStep, false)
	p.float("limit", req.Limit, false)
	p.boolean("is_in_pips", req.IsInPips, false)
	return p
}

// CloseTrade 平掉指定交易
func (c *Client) CloseTrade(ctx context.Context, req types.CloseTradeRequest) (*types.Response, error) {
	p := newParams("close_trade")
	p.str("trade_id", req.TradeID, true)
	p.float("amount", req.Amount, true)
	p.float("at_market", floatOrZero(req.AtMarket), true)
	p.str("time_in_force", orDefault(req.TimeInForce, types.DefaultTimeInForce), true)
	p.str("order_type", orDefault(req.OrderType, types.DefaultOrderType), true)
	p.float("rate", req.Rate, false)
	return c.post(ctx, EndpointCloseTrade, p)
}

// ChangeOrder 修改挂单的价格、范围和数量
func (c *Client) ChangeOrder(ctx context.Context, req types.ChangeOrderRequest) (*types.Response, error) {
	p := newParams("change_order")
	p.str("order_id", req.OrderID, true)
	p.float("rate", req.Rate, true)
	p.float("range", req.Range, true)
	p.float("amount", req.Amount, true)
	p.float("trailing_step", req.TrailingStep, false)
	return c.post(ctx, EndpointChangeOrder, p)
}

// CreateEntryOrder 入场单：价格偏离市场的按限价单处理，穿过市场的按止损单处理
func (c *Client) CreateEntryOrder(ctx context.Context, req types.EntryOrderRequest) (*types.Response, error) {
	p := newParams("create_entry_order")
	p.str("account_id", req.AccountID, true)
	p.str("symbol", req.Symbol, true)
	p.boolean("is_buy", req.IsBuy, true)
	p.float("amount", req.Amount, true)
	p.float("limit", req.Limit, true)
	p.boolean("is_in_pips", req.IsInPips, true)
	p.str("order_type", req.OrderType, true)
	p.str("time_in_force", req.TimeInForce, true)
	p.float("rate", req.Rate, false)
	p.float("stop", req.Stop, false)
	p.float("trailing_step", req.TrailingStep, false)
	return c.post(ctx, EndpointCreateEntryOrder, p)
}

// SimpleOCO 创建两腿 OCO，所有字段均为必填
func (c *Client) SimpleOCO(ctx context.Context, req types.SimpleOCORequest) (*types.Response, error) {
	p := newParams("simple_oco")
	p.str("account_id", req.AccountID, true)
	p.str("symbol", req.Symbol, true)
	p.float("amount", req.Amount, true)
	p.boolean("is_in_pips", req.IsInPips, true)
	p.str("time_in_force", req.TimeInForce, true)
	p.str("expiration", req.Expiration, true)
	p.boolean("is_buy", req.IsBuy, true)
	p.float("rate", req.Rate, true)
	p.float("stop", req.Stop, true)
	p.float("trailing_step", req.TrailingStep, true)
	p.float("trailing_stop_step", req.TrailingStopStep, true)
	p.float("limit", req.Limit, true)
	p.float("at_market", req.AtMarket, true)
	p.str("order_type", req.OrderType, true)
	p.boolean("is_buy2", req.IsBuy2, true)
	p.float("rate2", req.Rate2, true)
	p.float("stop2", req.Stop2, true)
	p.float("trailing_step2", req.TrailingStep2, true)
	p.float("trailing_stop_step2", req.TrailingStopStep2, true)
	p.float("limit2", req.Limit2, true)
	return c.post(ctx, EndpointSimpleOCO, p)
}

// AddToOCO 将订单加入 OCO 组
func (c *Client) AddToOCO(ctx context.Context, orderIDs []string, ocoBulkID string) (*types.Response, error) {
	p := newParams("add_to_oco")
	p.list("orderIds", orderIDs, true)
	p.str("ocoBulkId", ocoBulkID, true)
	return c.post(ctx, EndpointAddToOCO, p)
}

// RemoveFromOCO 将订单移出 OCO 组
func (c *Client) RemoveFromOCO(ctx context.Context, orderIDs []string) (*types.Response, error) {
	p := newParams("remove_from_oco")
	p.list("orderIds", orderIDs, true)
	return c.post(ctx, EndpointRemoveFromOCO, p)
}

// EditOCO 同时增删 OCO 组中的订单
func (c *Client) EditOCO(ctx context.Context, ocoBulkID string, addOrderIDs, removeOrderIDs []string) (*types.Response, error) {
	p := newParams("edit_oco")
	p.str("ocoBulkId", ocoBulkID, true)
	p.list("addOrderIds", addOrderIDs, false)
	p.list("removeOrderIds", removeOrderIDs, false)
	if len(addOrderIDs) == 0 && len(removeOrderIDs) == 0 {
		p.missing = append(p.missing, "addOrderIds|removeOrderIds")
	}
	return c.post(ctx, EndpointEditOCO, p)
}

// ChangeTradeStopLimit 创建/修改/删除交易上的止损止盈；rate 为 0 表示删除
func (c *Client) ChangeTradeStopLimit(ctx context.Context, req types.StopLimitRequest) (*types.Response, error) {
	p := stopLimitParams("change_trade_stop_limit", "trade_id", req)
	return c.post(ctx, EndpointChangeTradeStopLimit, p)
}

// ChangeOrderStopLimit 创建/修改/删除订单上的止损止盈；rate 为 0 表示删除
func (c *Client) ChangeOrderStopLimit(ctx context.Context, req types.StopLimitRequest) (*types.Response, error) {
	p := stopLimitParams("change_order_stop_limit", "order_id", req)
	return c.post(ctx, EndpointChangeOrderStopLimit, p)
}

func stopLimitParams(command, idField string, req types.StopLimitRequest) *params {
	p := newParams(command)
	p.str(idField, req.ID, true)
	p.boolean("is_stop", req.IsStop, true)
	p.float("rate", req.Rate, true)
	p.boolean("is_in_pips", req.IsInPips, true)
	p.float("trailing_step", req.TrailingStep, true)
	return p
}

// CloseAllForSymbol 按账户和品种全部平仓
func (c *Client) CloseAllForSymbol(ctx context.Context, req types.CloseAllRequest) (*types.Response, error) {
	p := newParams("close_all_for_symbol")
	p.str("account_id", req.AccountID, true)
	p.boolean("forSymbol", req.ForSymbol, true)
	p.str("symbol", req.Symbol, true)
	p.str("order_type", req.OrderType, true)
	p.str("time_in_force", req.TimeInForce, true)
	return c.post(ctx, EndpointCloseAllForSymbol, p)
}

// post 先做本地必填校验，缺参时不发请求
func (c *Client) post(ctx context.Context, endpoint string, p *params) (*types.Response, error) {
	if err := p.err(); err != nil {
		c.logger.Warnf("%s rejected locally: %v", endpoint, err)
		return types.Failed(err), err
	}
	return c.Send(ctx, http.MethodPost, endpoint, p.values)
}
