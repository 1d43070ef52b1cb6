package http

import (
	"net/http"

	"EchoDesk/pkg/ws"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 鉴权由 jwt 中间件完成，跨域交给网关
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler 通知推送 WebSocket Handler
type WsHandler struct {
	hub *ws.Hub
}

func NewWsHandler(hub *ws.Hub) *WsHandler {
	return &WsHandler{hub: hub}
}

// Connect 建立通知推送连接，服务端单向推送
//
// 路由: GET /kb/ws
func (h *WsHandler) Connect(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn("websocket upgrade failed", zap.String("orgId", orgID), zap.Error(err))
		return
	}
	client := ws.NewClient(orgID, conn)
	h.hub.Register(client)
	go client.WritePump()

	// 只读丢弃入站消息，连接关闭后注销
	go func() {
		defer func() {
			h.hub.Unregister(client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
