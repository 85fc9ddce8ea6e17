package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/ncruces/go-strftime"
	"github.com/pkg/errors"

	"github.com/betbot/gofx/fxcm/types"
)

// GetCandles 获取历史蜡烛。
// 品种名会先通过 Offer 元数据解析为数字 ID；Count 最多 10000；
// From/To 统一转换为 Unix 秒；指定 DisplayFormat 时每行追加 datestring 列。
func (c *Client) GetCandles(ctx context.Context, req types.CandleRequest) (*types.CandleResult, error) {
	instrumentID, err := c.ResolveInstrument(req.Instrument)
	if err != nil {
		c.logger.Errorf("get candles: %v", err)
		return nil, err
	}

	params := url.Values{}
	params.Set("num", strconv.Itoa(ClampCandleCount(req.Count)))
	for name, ref := range map[string]types.TimeRef{"From": req.From, "To": req.To} {
		if !ref.IsSet() {
			continue
		}
		ts, err := c.normalizeTime(ref)
		if err != nil {
			return nil, errors.Wrapf(err, "get candles: parse %s", name)
		}
		params.Set(name, strconv.FormatInt(ts, 10))
	}

	endpoint := fmt.Sprintf(EndpointCandles, instrumentID, req.Period)
	resp, err := c.Send(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}

	var rows [][]float64
	if err := resp.Decode("candles", &rows); err != nil {
		terr := &types.TransportError{StatusCode: resp.StatusCode, Detail: "malformed candles: " + err.Error()}
		c.logger.Errorf("get candles: %v", terr)
		return nil, terr
	}

	result := &types.CandleResult{
		InstrumentID: instrumentID,
		Period:       req.Period,
		Headers:      append([]string(nil), types.CandleHeaders...),
		Candles:      make([]types.Candle, 0, len(rows)),
	}
	if req.DisplayFormat != "" {
		result.Headers = append(result.Headers, types.DateStringHeader)
	}
	for _, row := range rows {
		candle, err := types.CandleFromValues(row)
		if err != nil {
			terr := &types.TransportError{StatusCode: resp.StatusCode, Detail: err.Error()}
			c.logger.Errorf("get candles: %v", terr)
			return nil, terr
		}
		if req.DisplayFormat != "" {
			candle.DateString = strftime.Format(req.DisplayFormat, time.Unix(candle.Timestamp, 0).In(c.location))
		}
		result.Candles = append(result.Candles, candle)
	}
	return result, nil
}

// ResolveInstrument 数字直接使用，否则按品种名查 offerId
func (c *Client) ResolveInstrument(instrument string) (int, error) {
	instrument = strings.TrimSpace(instrument)
	if id, err := strconv.Atoi(instrument); err == nil {
		if id < 0 {
			return 0, &types.UnknownInstrumentError{Instrument: instrument}
		}
		return id, nil
	}
	lookup := c.instrumentLookup()
	if lookup == nil {
		return 0, &types.UnknownInstrumentError{Instrument: instrument}
	}
	id, ok := lookup.InstrumentID(instrument)
	if !ok || id < 0 {
		return 0, &types.UnknownInstrumentError{Instrument: instrument}
	}
	return id, nil
}

// ClampCandleCount 限制单次请求根数
func ClampCandleCount(n int) int {
	if n > types.MaxCandles {
		return types.MaxCandles
	}
	return n
}

func (c *Client) normalizeTime(ref types.TimeRef) (int64, error) {
	if ts, ok := ref.Unix(); ok {
		return ts, nil
	}
	t, err := dateparse.ParseIn(ref.Text(), c.location)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
