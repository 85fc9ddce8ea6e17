package socketio

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Engine.IO v3 包类型
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v2 包类型（跟在 engineMessage 之后）
const (
	socketConnect    = '0'
	socketDisconnect = '1'
	socketEvent      = '2'
	socketError      = '4'
)

// 保留事件名
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

func parseHandshake(data string) (*handshake, error) {
	if len(data) == 0 || data[0] != engineOpen {
		return nil, fmt.Errorf("expected open packet, got %q", truncateForLog(data, 64))
	}
	var hs handshake
	if err := json.Unmarshal([]byte(data[1:]), &hs); err != nil {
		return nil, fmt.Errorf("malformed open packet: %w", err)
	}
	if hs.SID == "" {
		return nil, fmt.Errorf("open packet carries no sid")
	}
	return &hs, nil
}

// parseEvent 解析 42["name", arg] 的 JSON 部分。
// 服务器通常把对象序列化成字符串再发送，这里会解开一层。
func parseEvent(body string) (string, json.RawMessage, error) {
	// 可能带 namespace 或 ack id 前缀，如 /ns,12["name"]
	if idx := strings.IndexByte(body, '['); idx > 0 {
		body = body[idx:]
	}
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("event without name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	if len(parts) < 2 {
		return name, nil, nil
	}
	return name, unwrapString(parts[1]), nil
}

func unwrapString(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return raw
}

func truncateForLog(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
