package client

// API 端点常量
const (
	EndpointAuthenticate = "/authenticate"
	EndpointLogout       = "/logout"

	// 报价订阅
	EndpointSubscribe   = "/subscribe"
	EndpointUnsubscribe = "/unsubscribe"

	// 数据模型
	EndpointGetModel         = "/trading/get_model"
	EndpointModelSubscribe   = "/trading/subscribe"
	EndpointModelUnsubscribe = "/trading/unsubscribe"

	// 交易命令
	EndpointOpenTrade            = "/trading/open_trade"
	EndpointCloseTrade           = "/trading/close_trade"
	EndpointChangeOrder          = "/trading/change_order"
	EndpointDeleteOrder          = "/trading/delete_order"
	EndpointCreateEntryOrder     = "/trading/create_entry_order"
	EndpointSimpleOCO            = "/trading/simple_oco"
	EndpointAddToOCO             = "/trading/add_to_oco"
	EndpointRemoveFromOCO        = "/trading/remove_from_oco"
	EndpointEditOCO              = "/trading/edit_oco"
	EndpointChangeTradeStopLimit = "/trading/change_trail_stop_limit"
	EndpointChangeOrderStopLimit = "/trading/change_order_stop_limit"
	EndpointCloseAllForSymbol    = "/trading/close_all_for_symbol"

	// 账户
	EndpointChangePassword = "/trading/changePassword"
	EndpointPermissions    = "/trading/permissions"

	// 历史数据，格式 /candles/{instrumentId}/{period}
	EndpointCandles = "/candles/%d/%s"
)
