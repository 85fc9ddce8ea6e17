package types

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Environment 已解析的交易环境描述
type Environment struct {
	Name       string
	AuthURL    string // OAuth token 地址
	TradingURL string // REST 交易地址（可含端口）
	Port       int    // 推送通道端口，0 表示沿用 TradingURL 的端口
}

// PushURL 返回推送通道的 host:port 形式地址
func (e Environment) PushURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(e.TradingURL, "/"))
	if err != nil {
		return nil, err
	}
	if e.Port > 0 {
		u.Host = u.Hostname() + ":" + strconv.Itoa(e.Port)
	}
	return u, nil
}

// Record 服务器下发的原始对象，字段原样保留
type Record map[string]any

// DecodeRecord 解析一条推送或快照对象（数字保留为 json.Number）
func DecodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// String 读取字符串化的字段值，数字会被转成十进制文本
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// Int 读取整数字段
func (r Record) Int(key string) (int64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Float 读取浮点字段
func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Clone 浅拷贝
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Bool 返回指针，用于区分“未设置”和 false
func Bool(v bool) *bool { return &v }

// Float 返回指针，用于区分“未设置”和 0
func Float(v float64) *float64 { return &v }

// Int 返回指针
func Int(v int) *int { return &v }
