package ws

import (
	"encoding/json"
	"sync"
	"time"

	"EchoDesk/pkg/zlog"

	"github.com/gorilla/websocket"
)

// Hub 按组织维度维护仪表盘长连接，知识库变更时向整个组织广播
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	if c == nil || c.orgID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.orgID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[c.orgID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	if c == nil || c.orgID == "" {
		return
	}
	h.mu.Lock()
	set := h.clients[c.orgID]
	if set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.orgID)
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Broadcast 将消息推给该组织的所有在线客户端，返回是否至少投递成功一个。
// 多个后台 goroutine 并发广播，投递必须经 trySend 防住已关闭的客户端
func (h *Hub) Broadcast(orgID string, payload []byte) bool {
	if orgID == "" || len(payload) == 0 {
		return false
	}

	h.mu.RLock()
	set := h.clients[orgID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		if c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	ok := false
	var dead []*Client
	for _, c := range targets {
		delivered, gone := c.trySend(payload)
		if delivered {
			ok = true
		}
		if gone {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Unregister(c)
	}
	return ok
}

func (h *Hub) BroadcastJSON(orgID string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(orgID, b)
	return nil
}

type Client struct {
	orgID string
	conn  *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(orgID string, conn *websocket.Conn) *Client {
	return &Client{
		orgID: orgID,
		conn:  conn,
		send:  make(chan []byte, 64),
	}
}

// trySend 非阻塞投递。closed 与 close(send) 在同一把锁下翻转，
// 并发 Broadcast 不会撞上已关闭的 channel
func (c *Client) trySend(payload []byte) (delivered, dead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, true
	}
	select {
	case c.send <- payload:
		return true, false
	default:
		// 发送缓冲堆满说明客户端已经跟不上了
		return false, true
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) WritePump() {
	if c.conn == nil {
		return
	}
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			zlog.Error(err.Error())
			return
		}
	}
}
