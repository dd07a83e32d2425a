package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Windeal/linkGuard/pkg/security"
	"github.com/Windeal/linkGuard/pkg/signer"
)

const (
	// 写入等待超时
	writeWait = 10 * time.Second

	// 读取下一个 pong 消息的等待时间
	pongWait = 120 * time.Second

	// 发送 ping 的周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 连接 URL 本身必须携带有效签名，无需来源检查
	},
}

// Client 表示一个监控客户端连接
type Client struct {
	ID     string // 客户端标识
	hub    *Hub   // 所属的 Hub
	conn   *websocket.Conn
	send   chan *Message // 发送消息缓冲区
	events []string      // 订阅的事件类别

	// 状态查询字段
	RemoteIP    string    // 客户端 IP 地址
	ConnectedAt time.Time // 连接建立时间

	mu sync.Mutex // 保护 conn 的并发写入
}

// ServeWs 处理监控端的 WebSocket 升级请求
// 连接凭证就是签名 URL 本身：升级前用引擎校验完整请求 URL，
// 订阅的事件类别通过 events 查询参数携带（随 URL 一起被签名覆盖）
func ServeWs(hub *Hub, engine *signer.Signer, trustProxy bool, w http.ResponseWriter, r *http.Request) {
	clientIP := security.ExtractClientIP(r, trustProxy)
	rawURL := security.RequestURL(r, trustProxy)

	if err := engine.Verify(rawURL, signer.Context{Method: r.Method, IPAddress: clientIP}); err != nil {
		slog.Warn("监控连接校验失败", "ip", clientIP, "error", err)
		http.Error(w, err.Error(), signer.HTTPStatus(err))
		return
	}

	events := parseEvents(r.URL.Query().Get("events"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket 升级失败", "error", err)
		return
	}

	slog.Debug("监控连接已建立", "ip", clientIP, "events", events)

	client := &Client{
		ID:          uuid.New().String(),
		hub:         hub,
		conn:        conn,
		send:        make(chan *Message, 256),
		events:      events,
		RemoteIP:    clientIP,
		ConnectedAt: time.Now(),
	}
	hub.Register(client)

	// 启动读写协程
	go client.writePump()
	go client.readPump()
}

// parseEvents 解析逗号分隔的事件类别列表，空值表示通配订阅
func parseEvents(raw string) []string {
	if raw == "" {
		return []string{EventAll}
	}
	parts := strings.Split(raw, ",")
	events := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			events = append(events, p)
		}
	}
	if len(events) == 0 {
		return []string{EventAll}
	}
	return events
}

// readPump 从 WebSocket 读取消息
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket 读取错误", "client_id", c.ID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("无效的消息格式", "error", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

// handleMessage 处理收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MsgTypePing:
		// 响应心跳
		pong, _ := NewMessage(MsgTypePong, nil)
		c.sendMessage(pong)

	case MsgTypeSubscribe:
		// 处理订阅更新
		var req SubscribeRequest
		if err := msg.ParseData(&req); err != nil {
			slog.Warn("无效的订阅请求数据", "client_id", c.ID, "error", err)
			return
		}
		c.hub.UpdateSubscription(c, parseEvents(strings.Join(req.Events, ",")))

	default:
		errMsg, _ := NewMessage(MsgTypeError, &ErrorData{
			Code:    400,
			Message: "未知的消息类型",
		})
		c.sendMessage(errMsg)
	}
}

// sendMessage 投递消息到发送缓冲区
func (c *Client) sendMessage(msg *Message) {
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		slog.Warn("监控客户端缓冲区已满，丢弃消息", "client_id", c.ID)
	}
}

// writePump 向 WebSocket 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("消息序列化失败", "error", err)
				continue
			}

			c.mu.Lock()
			err = c.conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()

			if err != nil {
				slog.Warn("WebSocket 写入失败", "client_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.mu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
