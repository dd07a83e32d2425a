// Package server 提供服务端功能
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/Windeal/linkGuard/pkg/config"
	"github.com/Windeal/linkGuard/pkg/security"
	"github.com/Windeal/linkGuard/pkg/signer"
	"github.com/Windeal/linkGuard/pkg/websocket"
)

// Server 服务器实例，封装所有依赖
// 通过依赖注入替代全局变量，提升可测试性
type Server struct {
	config     *config.Config
	engine     *signer.Signer
	hub        *websocket.Hub
	whitelist  *security.IPWhitelist
	metrics    *Metrics
	trustProxy atomic.Bool
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("签名密钥不能为空")
	}

	// 初始化签名引擎（配置在引擎生命周期内不可变）
	engine := signer.New(cfg.Key,
		signer.WithTTL(cfg.TTLMinutes),
		signer.WithAlgorithm(cfg.Algorithm),
	)

	// 初始化监控推送 Hub
	hub := websocket.NewHub()
	go hub.Run()
	slog.Info("📡 监控推送 Hub 已启动")

	// 初始化管理接口 IP 白名单
	whitelist := security.NewIPWhitelist(cfg.IPWhitelist)
	if whitelist.IsEnabled() {
		slog.Info("🔒 管理接口 IP 白名单已启用", "whitelist", cfg.IPWhitelist)
	}

	srv := &Server{
		config:    cfg,
		engine:    engine,
		hub:       hub,
		whitelist: whitelist,
		metrics:   NewMetrics(),
	}
	srv.trustProxy.Store(cfg.TrustProxy)

	return srv, nil
}

// routes 装配路由
// /files/ 前缀下的所有请求都必须携带有效签名
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// 管理接口：白名单 + 管理密钥双重保护
	r.Handle("/sign", s.requireAdmin(http.HandlerFunc(s.handleSign))).
		Methods(http.MethodGet, http.MethodPost)
	r.Handle("/status", s.requireAdmin(http.HandlerFunc(s.handleStatus))).
		Methods(http.MethodGet)

	// 监控端点：连接 URL 本身必须携带有效签名
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, s.engine, s.trustProxy.Load(), w, r)
	})

	// 受保护的文件交付
	files := r.PathPrefix("/files/").Subrouter()
	files.Use(s.verifySignedURL())
	files.PathPrefix("/").HandlerFunc(s.handleFileDelivery).Methods(http.MethodGet, http.MethodHead)

	return r
}

// Run 启动服务器（阻塞直到上下文取消）
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config

	// 注册配置热重载回调 - 更新白名单与代理信任开关
	config.RegisterReloadCallback(func(newCfg *config.Config) {
		s.whitelist.Update(newCfg.IPWhitelist)
		s.trustProxy.Store(newCfg.TrustProxy)
		if s.whitelist.IsEnabled() {
			slog.Info("🔄 IP 白名单已更新", "whitelist", newCfg.IPWhitelist)
		} else {
			slog.Info("🔓 IP 白名单已禁用")
		}
	})

	handler := s.routes()

	httpAddr := cfg.Bind + ":" + cfg.Port
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: handler,
	}

	// 错误通道用于 goroutine 错误传递
	errChan := make(chan error, 2)

	// 创建 TLS 服务器（如果启用）
	var tlsServer *http.Server
	if cfg.TLS {
		tlsAddr := cfg.Bind + ":" + cfg.TLSPort
		tlsServer = &http.Server{
			Addr:    tlsAddr,
			Handler: handler,
		}
		go func() {
			slog.Info("🔒 TLS服务器启动", "addr", "https://"+tlsAddr)
			if err := tlsServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile); err != nil && err != http.ErrServerClosed {
				slog.Error("TLS服务器启动失败", "error", err)
				errChan <- fmt.Errorf("TLS服务器启动失败: %w", err)
			}
		}()
	}

	// 启动 HTTP 服务器（非阻塞）
	go func() {
		slog.Info("🚀 HTTP服务器启动",
			"addr", "http://"+httpAddr,
			"baseDir", cfg.BaseDir,
			"algorithm", cfg.Algorithm,
			"ttlMinutes", cfg.TTLMinutes)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP服务器启动失败", "error", err)
			errChan <- fmt.Errorf("HTTP服务器启动失败: %w", err)
		}
	}()

	// 等待上下文取消或启动错误
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	// 创建关闭超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 使用 GracefulShutdown 管理关闭序列
	shutdown := NewGracefulShutdown()
	shutdown.AddFunc("HTTP服务器", httpServer.Shutdown)
	if tlsServer != nil {
		shutdown.AddFunc("TLS服务器", tlsServer.Shutdown)
	}

	shutdown.Shutdown(shutdownCtx)

	slog.Info("✅ 服务已优雅关闭")
	return nil
}
