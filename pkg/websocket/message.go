// Package websocket 提供校验审计事件的实时推送通道
// 监控客户端通过签名 URL 连接后，按事件类别订阅校验结果
package websocket

import (
	"encoding/json"
	"time"
)

// 消息类型常量
const (
	MsgTypeAudit     = "audit"     // 审计事件推送
	MsgTypeSubscribe = "subscribe" // 更新订阅的事件类别
	MsgTypePing      = "ping"      // 心跳请求
	MsgTypePong      = "pong"      // 心跳响应
	MsgTypeError     = "error"     // 错误消息
)

// 审计事件类别，与校验结果一一对应
const (
	EventOK         = "ok"
	EventBlackholed = "blackholed"
	EventExpired    = "expired"
	EventMismatch   = "mismatch"
	EventAll        = "*" // 通配订阅
)

// Message WebSocket 消息结构
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage 创建新消息
func NewMessage(msgType string, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		rawData = bytes
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Data:      rawData,
	}, nil
}

// ParseData 解析消息数据到指定类型
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// AuditEvent 单次校验决策的审计事件
type AuditEvent struct {
	Event     string `json:"event"`               // 事件类别（ok/blackholed/expired/mismatch）
	RequestID string `json:"request_id"`          // 请求关联 ID
	Path      string `json:"path"`                // 请求路径
	Method    string `json:"method"`              // 请求方法
	ClientIP  string `json:"client_ip"`           // 请求方 IP
	Status    int    `json:"status"`              // 返回的 HTTP 状态码
	Timestamp int64  `json:"timestamp"`           // 决策时间戳
	Detail    string `json:"detail,omitempty"`    // 补充说明（对外不暴露）
}

// SubscribeRequest 订阅更新请求
type SubscribeRequest struct {
	Events []string `json:"events"` // 新的事件类别列表
}

// ErrorData 错误消息数据
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
