package websocket

import (
	"log/slog"
	"sync"
	"time"
)

// Hub 监控客户端连接管理中心
// 维护所有在线监控客户端，提供按事件类别查找订阅者的能力
type Hub struct {
	// 所有在线的监控客户端
	clients map[*Client]bool

	// 事件类别 -> 订阅该类别的客户端列表
	subscriptions map[string]map[*Client]bool

	// 客户端注册通道
	register chan *Client

	// 客户端注销通道
	unregister chan *Client

	// 互斥锁
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
	}
}

// Run 运行 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	for _, event := range client.events {
		if h.subscriptions[event] == nil {
			h.subscriptions[event] = make(map[*Client]bool)
		}
		h.subscriptions[event][client] = true
	}

	slog.Info("监控客户端已连接",
		"client_id", client.ID,
		"events", client.events,
		"total_clients", len(h.clients))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	for _, event := range client.events {
		if subs, ok := h.subscriptions[event]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, event)
			}
		}
	}

	delete(h.clients, client)
	close(client.send)

	slog.Info("监控客户端已断开",
		"client_id", client.ID,
		"total_clients", len(h.clients))
}

// UpdateSubscription 更新客户端订阅的事件类别
func (h *Hub) UpdateSubscription(client *Client, newEvents []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, event := range client.events {
		if subs, ok := h.subscriptions[event]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, event)
			}
		}
	}

	client.events = newEvents

	for _, event := range client.events {
		if h.subscriptions[event] == nil {
			h.subscriptions[event] = make(map[*Client]bool)
		}
		h.subscriptions[event][client] = true
	}

	slog.Info("监控订阅已更新",
		"client_id", client.ID,
		"events", client.events)
}

// Register 注册客户端 (外部调用)
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端 (外部调用)
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientStatus 客户端状态信息（用于状态接口）
type ClientStatus struct {
	ID          string    `json:"id"`
	RemoteIP    string    `json:"remote_ip"`
	ConnectedAt time.Time `json:"connected_at"`
	Events      []string  `json:"events"`
}

// GetClientStatus 获取所有在线监控客户端状态
func (h *Hub) GetClientStatus() []ClientStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]ClientStatus, 0, len(h.clients))
	for client := range h.clients {
		result = append(result, ClientStatus{
			ID:          client.ID,
			RemoteIP:    client.RemoteIP,
			ConnectedAt: client.ConnectedAt,
			Events:      client.events,
		})
	}
	return result
}

// getSubscribers 获取订阅指定事件类别的所有客户端
// 通配订阅 "*" 收到所有类别
func (h *Hub) getSubscribers(event string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientSet := make(map[*Client]struct{})

	if subs, ok := h.subscriptions[event]; ok {
		for client := range subs {
			clientSet[client] = struct{}{}
		}
	}
	if subs, ok := h.subscriptions[EventAll]; ok {
		for client := range subs {
			clientSet[client] = struct{}{}
		}
	}

	clients := make([]*Client, 0, len(clientSet))
	for client := range clientSet {
		clients = append(clients, client)
	}
	return clients
}

// BroadcastAudit 向订阅者推送审计事件，返回实际送达的客户端数
func (h *Hub) BroadcastAudit(event *AuditEvent) int {
	subscribers := h.getSubscribers(event.Event)
	if len(subscribers) == 0 {
		return 0
	}

	msg, err := NewMessage(MsgTypeAudit, event)
	if err != nil {
		slog.Error("创建审计消息失败", "error", err)
		return 0
	}

	sent := 0
	for _, client := range subscribers {
		select {
		case client.send <- msg:
			sent++
		default:
			// 客户端发送缓冲区已满，丢弃本条事件
			slog.Warn("监控客户端缓冲区已满，跳过推送",
				"client_id", client.ID,
				"event", event.Event)
		}
	}
	return sent
}
