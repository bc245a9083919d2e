package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader WebSocket 升级器
//
// 网关默认只在本机回环上监听，放开来源检查。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWSStatus 周期性推送状态快照
//
// 展示协作方的实时视图：按配置的间隔推送与 /status 相同的快照，
// 直到客户端断开或服务停止。
func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("WebSocket 升级失败", "err", err)
		return
	}
	defer conn.Close()

	// 长连接不受 HTTP 服务的写超时约束
	_ = conn.UnderlyingConn().SetDeadline(time.Time{})

	log.Debug("状态订阅已建立", "remote", conn.RemoteAddr().String())

	// 连接建立后立即推送一次
	if err := conn.WriteJSON(s.statusSnapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.WSPushInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.statusSnapshot()); err != nil {
				log.Debug("状态推送结束", "remote", conn.RemoteAddr().String(), "err", err)
				return
			}
		}
	}
}
