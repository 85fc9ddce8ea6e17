package types

import (
	"encoding/json"
	"fmt"
)

// Response 统一的命令结果：Status 为 false 时 Err 一定非空
type Response struct {
	Status     bool
	StatusCode int
	Payload    map[string]json.RawMessage // 除 "response" 外的顶层字段
	Err        error
}

// Failed 构造失败结果
func Failed(err error) *Response {
	r := &Response{Err: err}
	switch e := err.(type) {
	case *TransportError:
		r.StatusCode = e.StatusCode
	case *AuthenticationError:
		r.StatusCode = e.StatusCode
	}
	return r
}

// Decode 将某个顶层字段解码到 out
func (r *Response) Decode(key string, out any) error {
	if r == nil {
		return fmt.Errorf("nil response")
	}
	raw, ok := r.Payload[key]
	if !ok {
		return fmt.Errorf("field %q not present in response", key)
	}
	return json.Unmarshal(raw, out)
}

// Records 将某个顶层数组字段解析为 Record 列表，字段不存在时返回空
func (r *Response) Records(key string) ([]Record, error) {
	if r == nil {
		return nil, nil
	}
	raw, ok := r.Payload[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("field %q is not a list: %w", key, err)
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := DecodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Detail 失败时的错误文本
func (r *Response) Detail() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
