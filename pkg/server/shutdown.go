package server

import (
	"context"
	"log/slog"
	"sync"
)

// ShutdownFunc 关闭函数签名
type ShutdownFunc func(ctx context.Context) error

// namedComponent 待关闭的组件
type namedComponent struct {
	name string
	fn   ShutdownFunc
}

// GracefulShutdown 按注册顺序关闭各组件，互不阻塞
type GracefulShutdown struct {
	mu         sync.Mutex
	components []namedComponent
}

// NewGracefulShutdown 创建关闭管理器
func NewGracefulShutdown() *GracefulShutdown {
	return &GracefulShutdown{}
}

// AddFunc 注册一个需要优雅关闭的组件
func (g *GracefulShutdown) AddFunc(name string, fn ShutdownFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, namedComponent{name: name, fn: fn})
}

// Shutdown 并发关闭所有已注册组件，等待全部完成或 ctx 超时
func (g *GracefulShutdown) Shutdown(ctx context.Context) {
	g.mu.Lock()
	components := make([]namedComponent, len(g.components))
	copy(components, g.components)
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(c namedComponent) {
			defer wg.Done()
			slog.Info("🔄 正在关闭组件", "name", c.name)
			if err := c.fn(ctx); err != nil {
				slog.Error("组件关闭失败", "name", c.name, "error", err)
				return
			}
			slog.Info("✅ 组件已关闭", "name", c.name)
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("关闭超时，放弃等待剩余组件")
	}
}
