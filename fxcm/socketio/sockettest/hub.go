// Package sockettest 提供测试用的 Socket.IO v2 服务端
package sockettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// Hub 接受 /socket.io/ 的 WebSocket 连接，握手后立即发送 connect 包
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*conn
	seq      int
	tokens   []string
	pings    int
	received []string
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]*conn),
	}
}

// ServeHTTP 处理 WebSocket 升级
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.seq++
	sid := fmt.Sprintf("sid-%d", h.seq)
	h.tokens = append(h.tokens, r.URL.Query().Get("access_token"))
	c := &conn{ws: ws}
	h.conns[sid] = c
	h.mu.Unlock()

	open, _ := json.Marshal(map[string]any{
		"sid":          sid,
		"upgrades":     []string{},
		"pingInterval": 25000,
		"pingTimeout":  60000,
	})
	if err := c.write("0" + string(open)); err != nil {
		h.remove(sid)
		return
	}
	if err := c.write("40"); err != nil {
		h.remove(sid)
		return
	}

	go func() {
		defer h.remove(sid)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg := string(data)
			h.mu.Lock()
			h.received = append(h.received, msg)
			if msg == "2" {
				h.pings++
			}
			h.mu.Unlock()
			if msg == "2" {
				_ = c.write("3")
			}
		}
	}()
}

func (h *Hub) remove(sid string) {
	h.mu.Lock()
	c, ok := h.conns[sid]
	delete(h.conns, sid)
	h.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}

// Emit 向所有连接推送事件；payload 先序列化为 JSON 字符串再作为参数发送
func (h *Hub) Emit(name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.EmitRaw(name, string(body))
}

// EmitRaw 推送以字符串为参数的事件
func (h *Hub) EmitRaw(name, arg string) error {
	packet, err := json.Marshal([]any{name, arg})
	if err != nil {
		return err
	}
	return h.broadcast("42" + string(packet))
}

// Send 原样发送数据包
func (h *Hub) Send(packet string) error {
	return h.broadcast(packet)
}

func (h *Hub) broadcast(packet string) error {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		if err := c.write(packet); err != nil {
			return err
		}
	}
	return nil
}

// DropAll 关闭所有连接
func (h *Hub) DropAll() {
	h.mu.Lock()
	sids := make([]string, 0, len(h.conns))
	for sid := range h.conns {
		sids = append(sids, sid)
	}
	h.mu.Unlock()
	for _, sid := range sids {
		h.remove(sid)
	}
}

// Accepted 累计接受的连接数
func (h *Hub) Accepted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Open 当前打开的连接数
func (h *Hub) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Tokens 每次连接携带的 access_token
func (h *Hub) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

// Received 客户端发来的所有数据包
func (h *Hub) Received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}
