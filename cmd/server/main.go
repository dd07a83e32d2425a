package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nightlyone/lockfile"

	"github.com/Windeal/linkGuard/pkg/config"
	"github.com/Windeal/linkGuard/pkg/server"
)

const VERSION = "1.2.0"

func main() {
	// 显示版本信息
	fmt.Printf("linkGuard v%s - 签名链接交付服务\n\n", VERSION)

	// 初始化配置
	if err := config.InitConfig(); err != nil {
		slog.Error("初始化配置失败", "error", err)
		os.Exit(1)
	}
	cfg := config.GetConfig()

	// 进程锁，防止同一锁文件下重复启动
	if cfg.PidFile != "" {
		unlock, err := acquirePidLock(cfg.PidFile)
		if err != nil {
			slog.Error("获取进程锁失败", "pidfile", cfg.PidFile, "error", err)
			os.Exit(1)
		}
		defer unlock()
	}

	// 创建服务器实例（封装所有依赖，替代全局变量）
	srv, err := server.NewServer(cfg)
	if err != nil {
		slog.Error("创建服务器失败", "error", err)
		os.Exit(1)
	}

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理（SIGINT/SIGTERM 用于优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("🛑 收到信号，开始优雅关闭...", "signal", sig)
		cancel()
	}()

	// 运行服务器（阻塞直到上下文取消）
	if err := srv.Run(ctx); err != nil {
		slog.Error("服务器运行错误", "error", err)
		os.Exit(1)
	}
}

// acquirePidLock 创建并持有进程锁文件
// lockfile 要求绝对路径，相对路径先行转换
func acquirePidLock(path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析锁文件路径失败: %w", err)
	}

	lock, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("创建锁文件失败: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		return nil, fmt.Errorf("可能已有实例在运行: %w", err)
	}

	slog.Info("🔒 进程锁已持有", "pidfile", abs)
	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("释放进程锁失败", "error", err)
		}
	}, nil
}

func init() {
	// 自定义帮助信息
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		usage()
		os.Exit(0)
	}

	// 生成示例配置
	if len(os.Args) > 1 && os.Args[1] == "--gen-config" {
		fmt.Println(config.GenerateExampleConfig())
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `linkGuard v%s - 签名链接交付服务

使用方式:
  linkguard-server [选项]

选项:
`, VERSION)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
特殊命令:
  --gen-config  生成示例配置文件
  -h, --help    显示帮助信息

示例:
  # 使用配置文件
  linkguard-server -c config.yaml

  # 使用命令行参数
  linkguard-server -p 9080 -d /var/files -k mysecret

  # 生成示例配置
  linkguard-server --gen-config > config.yaml
`)
}
