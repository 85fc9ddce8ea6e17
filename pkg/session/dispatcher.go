package session

import (
	"encoding/json"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/socketio"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/pkg/marketstate"
)

// Handler 通用事件处理函数；设置后接收所有事件，不再写入本地镜像
type Handler func(name string, data json.RawMessage)

// Dispatcher 按模型把推送事件路由到镜像的更新函数
type Dispatcher struct {
	mirror   *marketstate.Mirror
	override Handler
	ignore   map[string]bool
	logger   logger.Logger
}

// NewDispatcher 创建分发器；override 非空时替代默认的镜像逻辑
func NewDispatcher(mirror *marketstate.Mirror, override Handler, ignoreOutput []string, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop
	}
	ignore := make(map[string]bool, len(ignoreOutput))
	for _, name := range ignoreOutput {
		ignore[name] = true
	}
	return &Dispatcher{mirror: mirror, override: override, ignore: ignore, logger: log}
}

// ModelHandler 返回某模型事件的通道处理函数
func (d *Dispatcher) ModelHandler(name string) socketio.Handler {
	return func(data json.RawMessage) {
		if d.override != nil {
			d.override(name, data)
			return
		}
		d.Dispatch(types.ParseModelKind(name), name, data)
	}
}

// PriceHandler 返回报价事件的通道处理函数
func (d *Dispatcher) PriceHandler(symbol string) socketio.Handler {
	return func(data json.RawMessage) {
		if d.override != nil {
			d.override(symbol, data)
			return
		}
		d.DispatchPrice(data)
	}
}

// Dispatch 将一条模型事件应用到镜像；未知模型记录日志后丢弃
func (d *Dispatcher) Dispatch(kind types.ModelKind, name string, data json.RawMessage) {
	rec, err := types.DecodeRecord(data)
	if err != nil {
		d.logger.Errorf("cannot decode %s update: %v", name, err)
		return
	}

	var apply func(types.Record) error
	switch kind {
	case types.ModelOffer:
		apply = d.mirror.ApplyOffer
	case types.ModelAccount:
		apply = d.mirror.ApplyAccount
	case types.ModelOrder:
		apply = d.mirror.ApplyOrder
	case types.ModelOpenPosition:
		apply = d.mirror.ApplyOpenPosition
	case types.ModelClosedPosition:
		apply = d.mirror.ApplyClosedPosition
	case types.ModelSummary:
		apply = d.mirror.ApplySummary
	case types.ModelLeverageProfile:
		apply = d.mirror.ApplyLeverageProfile
	case types.ModelProperties:
		apply = d.mirror.ApplyProperties
	default:
		d.logger.Warnf("unknown model %q, update dropped", name)
		return
	}

	if err := apply(rec); err != nil {
		d.logger.Errorf("can't handle %s update: %v", kind, err)
		return
	}
	if !d.ignore[kind.String()] {
		d.logger.Infof("%s update: %s", kind, truncate(string(data), 240))
	}
}

// DispatchPrice 应用报价事件；品种未知时丢弃
func (d *Dispatcher) DispatchPrice(data json.RawMessage) {
	var u marketstate.PriceUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		d.logger.Errorf("can't handle price update: %v", err)
		return
	}
	if err := d.mirror.ApplyPrice(u); err != nil {
		d.logger.Errorf("can't handle price update: %v", err)
		return
	}
	if !d.ignore[u.Symbol] {
		d.logger.Debugf("price update %s: %v", u.Symbol, u.Rates)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
