package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 蜡烛图列名，顺序与服务器返回的数组一致
var CandleHeaders = []string{
	"timestamp", "bidopen", "bidclose", "bidhigh", "bidlow",
	"askopen", "askclose", "askhigh", "asklow", "tickqty",
}

// DateStringHeader 指定 displayFormat 时追加的列
const DateStringHeader = "datestring"

// MaxCandles 单次请求的最大根数
const MaxCandles = 10000

// TimeRef 时间参数：Unix 秒或任意格式的日期字符串
type TimeRef struct {
	unix int64
	text string
	set  bool
	raw  bool
}

// UnixTime 原始 Unix 时间戳
func UnixTime(sec int64) TimeRef { return TimeRef{unix: sec, set: true, raw: true} }

// TimeOf 由 time.Time 构造
func TimeOf(t time.Time) TimeRef { return UnixTime(t.Unix()) }

// TimeString 日期字符串，纯数字字符串按 Unix 秒处理
func TimeString(s string) TimeRef {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return UnixTime(sec)
	}
	return TimeRef{text: s, set: true}
}

// IsSet 是否已设置
func (t TimeRef) IsSet() bool { return t.set }

// Unix 原始时间戳，第二个返回值为 false 表示需要解析 Text
func (t TimeRef) Unix() (int64, bool) { return t.unix, t.raw }

// Text 待解析的日期字符串
func (t TimeRef) Text() string { return t.text }

// CandleRequest 历史蜡烛请求
type CandleRequest struct {
	Instrument    string // 品种名（如 "USD/JPY"）或数字 offerId
	Period        string // m1, m5, m15, m30, H1, H2, H3, H4, H6, H8, D1, W1, M1
	Count         int
	From          TimeRef
	To            TimeRef
	DisplayFormat string // strftime 格式，非空时追加 datestring 列
}

// Candle 一根蜡烛
type Candle struct {
	Timestamp  int64
	BidOpen    float64
	BidClose   float64
	BidHigh    float64
	BidLow     float64
	AskOpen    float64
	AskClose   float64
	AskHigh    float64
	AskLow     float64
	TickQty    float64
	DateString string
}

// Values 按列顺序返回该行的值
func (c Candle) Values(withDate bool) []any {
	row := []any{
		c.Timestamp, c.BidOpen, c.BidClose, c.BidHigh, c.BidLow,
		c.AskOpen, c.AskClose, c.AskHigh, c.AskLow, c.TickQty,
	}
	if withDate {
		row = append(row, c.DateString)
	}
	return row
}

// CandleFromValues 由服务器返回的数值数组构造
func CandleFromValues(values []float64) (Candle, error) {
	if len(values) < len(CandleHeaders) {
		return Candle{}, fmt.Errorf("candle row has %d values, want %d", len(values), len(CandleHeaders))
	}
	return Candle{
		Timestamp: int64(values[0]),
		BidOpen:   values[1],
		BidClose:  values[2],
		BidHigh:   values[3],
		BidLow:    values[4],
		AskOpen:   values[5],
		AskClose:  values[6],
		AskHigh:   values[7],
		AskLow:    values[8],
		TickQty:   values[9],
	}, nil
}

// CandleResult 蜡烛请求的结果
type CandleResult struct {
	InstrumentID int
	Period       string
	Headers      []string
	Candles      []Candle
}

// HasDateString 是否带 datestring 列
func (r *CandleResult) HasDateString() bool {
	return len(r.Headers) > 0 && r.Headers[len(r.Headers)-1] == DateStringHeader
}

// Rows 二维数组形式，每行长度与 Headers 一致
func (r *CandleResult) Rows() [][]any {
	withDate := r.HasDateString()
	rows := make([][]any, 0, len(r.Candles))
	for _, c := range r.Candles {
		rows = append(rows, c.Values(withDate))
	}
	return rows
}

// Records 以列名为键的记录列表
func (r *CandleResult) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Candles))
	for _, row := range r.Rows() {
		rec := make(map[string]any, len(r.Headers))
		for i, h := range r.Headers {
			rec[h] = row[i]
		}
		out = append(out, rec)
	}
	return out
}
