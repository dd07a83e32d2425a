package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Windeal/linkGuard/pkg/security"
	"github.com/Windeal/linkGuard/pkg/signer"
	"github.com/Windeal/linkGuard/pkg/websocket"
)

// verifySignedURL 签名校验中间件
// 按签名端看到的形式还原完整 URL，交给引擎校验，按错误类别分派状态码：
// 400 配置错误 / 403 拒绝与签名不匹配 / 410 过期
func (s *Server) verifySignedURL() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New().String()
			trust := s.trustProxy.Load()
			clientIP := security.ExtractClientIP(r, trust)
			rawURL := security.RequestURL(r, trust)

			err := s.engine.Verify(rawURL, signer.Context{
				Method:    r.Method,
				IPAddress: clientIP,
			})

			status := http.StatusOK
			if err != nil {
				status = signer.HTTPStatus(err)
			}

			event := &websocket.AuditEvent{
				Event:     auditEventKind(err),
				RequestID: requestID,
				Path:      r.URL.Path,
				Method:    r.Method,
				ClientIP:  clientIP,
				Status:    status,
				Timestamp: time.Now().UnixMilli(),
			}
			if err != nil {
				event.Detail = err.Error()
			}
			s.metrics.Record(event.Event)
			s.hub.BroadcastAudit(event)

			if err != nil {
				slog.Warn("⛔ 签名校验拒绝",
					"request_id", requestID,
					"path", r.URL.Path,
					"method", r.Method,
					"ip", clientIP,
					"status", status)
				http.Error(w, err.Error(), status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// auditEventKind 将校验结果映射到审计事件类别
// 配置类错误（缺密钥/未知算法）对请求方同样表现为签名不可用，归入 mismatch
func auditEventKind(err error) string {
	switch {
	case err == nil:
		return websocket.EventOK
	case errors.Is(err, signer.ErrBlackholed):
		return websocket.EventBlackholed
	case errors.Is(err, signer.ErrExpired):
		return websocket.EventExpired
	default:
		return websocket.EventMismatch
	}
}

// requireAdmin 管理接口保护：IP 白名单 + 管理密钥
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := security.ExtractClientIP(r, s.trustProxy.Load())
		if !s.whitelist.IsAllowed(clientIP) {
			slog.Warn("IP 白名单拒绝访问管理接口", "ip", clientIP, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		apiKey := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.config.Key)) != 1 {
			slog.Warn("管理密钥校验失败", "ip", clientIP, "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// accessLog 访问日志中间件，捕获响应状态与耗时
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Debug("访问日志",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration)
	})
}
