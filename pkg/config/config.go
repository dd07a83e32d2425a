// Package config 提供配置加载、分层覆盖与热重载
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// 环境变量辅助函数
func getEnvStr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvUint(key string, fallback uint) uint {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint(i)
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Config 配置结构
type Config struct {
	Port       string `yaml:"port"`
	Bind       string `yaml:"bind"`
	BaseDir    string `yaml:"base_dir"`    // 受保护文件所在目录
	Key        string `yaml:"key"`         // 签名密钥
	Algorithm  string `yaml:"algorithm"`   // 摘要算法
	TTLMinutes uint   `yaml:"ttl_minutes"` // 引擎级默认有效期（分钟），0 表示禁用
	TLS        bool   `yaml:"tls"`
	TLSPort    string `yaml:"tls_port"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	// IP 白名单，逗号分隔，保护签发与状态接口（支持热重载）
	IPWhitelist string `yaml:"ip_whitelist"`
	// 是否信任代理头 X-Forwarded-For/X-Real-IP（支持热重载）
	TrustProxy bool   `yaml:"trust_proxy"`
	PidFile    string `yaml:"pid_file"` // 进程锁文件路径（绝对路径），空表示不加锁
	ConfigFile string `yaml:"-"`        // 配置文件路径
}

var (
	GlobalConfig    *Config
	mu              sync.RWMutex
	reloadCallbacks []func(*Config)
)

// InitConfig 初始化服务端配置
// 优先级：命令行 > 环境变量 > 配置文件 > 默认值
func InitConfig() error {
	cfg := &Config{
		// 默认值
		Port:       "9080",
		Bind:       "",
		BaseDir:    "./",
		Key:        "",
		Algorithm:  "sha256",
		TTLMinutes: 30,
		TLS:        false,
		TLSPort:    "9443",
		CertFile:   "cert.pem",
		KeyFile:    "key.pem",
	}

	flag.StringVar(&cfg.ConfigFile, "c", "", "配置文件路径")
	flag.StringVar(&cfg.Bind, "b", cfg.Bind, "绑定监听地址")
	flag.StringVar(&cfg.Port, "p", cfg.Port, "服务端口")
	flag.StringVar(&cfg.BaseDir, "d", cfg.BaseDir, "受保护文件所在目录")
	flag.StringVar(&cfg.Key, "k", cfg.Key, "签名密钥")
	flag.StringVar(&cfg.Algorithm, "alg", cfg.Algorithm, "摘要算法")
	flag.UintVar(&cfg.TTLMinutes, "ttl", cfg.TTLMinutes, "默认签名有效期（分钟），0 表示禁用")
	flag.BoolVar(&cfg.TLS, "tls", cfg.TLS, "是否启用TLS")
	flag.StringVar(&cfg.TLSPort, "tlsport", cfg.TLSPort, "TLS端口")
	flag.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS证书文件")
	flag.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS私钥文件")
	flag.StringVar(&cfg.IPWhitelist, "whitelist", cfg.IPWhitelist, "管理接口IP白名单（逗号分隔，支持CIDR）")
	flag.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "是否信任反向代理头部")
	flag.StringVar(&cfg.PidFile, "pidfile", cfg.PidFile, "进程锁文件路径（绝对路径）")
	flag.Parse()

	// 命令行参数暂存
	cliArgs := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		cliArgs[f.Name] = f.Value.String()
	})

	// 从配置文件加载（如果指定）
	if cfg.ConfigFile != "" {
		if err := loadFromFile(cfg, cfg.ConfigFile); err != nil {
			return fmt.Errorf("加载配置文件失败: %w", err)
		}
		slog.Info("已加载配置文件", "file", cfg.ConfigFile)
	}

	// 从环境变量覆盖（优先级高于配置文件）
	cfg.Port = getEnvStr("LINKGUARD_PORT", cfg.Port)
	cfg.Bind = getEnvStr("LINKGUARD_BIND", cfg.Bind)
	cfg.BaseDir = getEnvStr("LINKGUARD_BASE_DIR", cfg.BaseDir)
	cfg.Key = getEnvStr("LINKGUARD_KEY", cfg.Key)
	cfg.Algorithm = getEnvStr("LINKGUARD_ALGORITHM", cfg.Algorithm)
	cfg.TTLMinutes = getEnvUint("LINKGUARD_TTL_MINUTES", cfg.TTLMinutes)
	cfg.TLS = getEnvBool("LINKGUARD_TLS", cfg.TLS)
	cfg.TLSPort = getEnvStr("LINKGUARD_TLS_PORT", cfg.TLSPort)
	cfg.CertFile = getEnvStr("LINKGUARD_CERT_FILE", cfg.CertFile)
	cfg.KeyFile = getEnvStr("LINKGUARD_KEY_FILE", cfg.KeyFile)
	cfg.IPWhitelist = getEnvStr("LINKGUARD_IP_WHITELIST", cfg.IPWhitelist)
	cfg.TrustProxy = getEnvBool("LINKGUARD_TRUST_PROXY", cfg.TrustProxy)
	cfg.PidFile = getEnvStr("LINKGUARD_PID_FILE", cfg.PidFile)

	// 命令行参数再次覆盖（最高优先级）
	for name, value := range cliArgs {
		switch name {
		case "b":
			cfg.Bind = value
		case "p":
			cfg.Port = value
		case "d":
			cfg.BaseDir = value
		case "k":
			cfg.Key = value
		case "alg":
			cfg.Algorithm = value
		case "ttl":
			if v, err := strconv.ParseUint(value, 10, 32); err == nil {
				cfg.TTLMinutes = uint(v)
			}
		case "tls":
			if v, err := strconv.ParseBool(value); err == nil {
				cfg.TLS = v
			}
		case "tlsport":
			cfg.TLSPort = value
		case "cert":
			cfg.CertFile = value
		case "key":
			cfg.KeyFile = value
		case "whitelist":
			cfg.IPWhitelist = value
		case "trust-proxy":
			if v, err := strconv.ParseBool(value); err == nil {
				cfg.TrustProxy = v
			}
		case "pidfile":
			cfg.PidFile = value
		}
	}

	// 空密钥时自动生成
	if cfg.Key == "" {
		cfg.Key = GenerateSecureKey()
		fmt.Printf("\n╔════════════════════════════════════════════════════════════╗\n")
		fmt.Printf("║  🔐 自动生成签名密钥                                        ║\n")
		fmt.Printf("║                                                            ║\n")
		fmt.Printf("║  签名与校验必须使用同一密钥: %s ║\n", cfg.Key)
		fmt.Printf("║                                                            ║\n")
		fmt.Printf("║  环境变量: export LINKGUARD_KEY=%s ║\n", cfg.Key[:16]+"...")
		fmt.Printf("╚════════════════════════════════════════════════════════════╝\n\n")
		slog.Info("自动生成签名密钥", "key_preview", cfg.Key[:8]+"...")
	}

	mu.Lock()
	GlobalConfig = cfg
	mu.Unlock()

	// 启动配置文件监听（如果指定了配置文件）
	if cfg.ConfigFile != "" {
		go watchConfig(cfg.ConfigFile)
	}

	slog.Info("配置已加载",
		"port", cfg.Port,
		"baseDir", cfg.BaseDir,
		"algorithm", cfg.Algorithm,
		"ttlMinutes", cfg.TTLMinutes)
	return nil
}

// loadFromFile 从文件加载配置
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// watchConfig 监听配置文件变化
func watchConfig(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("创建文件监听器失败", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		slog.Warn("监听配置文件失败", "error", err)
		return
	}

	slog.Info("🔄 配置文件热重载已启用", "path", path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				slog.Info("📝 检测到配置文件变化，正在重新加载...", "file", event.Name)
				reloadConfig(path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("文件监听错误", "error", err)
		}
	}
}

// reloadConfig 重新加载配置
// 密钥、算法、监听地址等不支持热重载，只更新白名单与代理信任开关
func reloadConfig(path string) {
	newCfgFromFile := &Config{}
	if err := loadFromFile(newCfgFromFile, path); err != nil {
		slog.Error("❌ 配置文件重载失败", "error", err)
		return
	}

	mu.Lock()
	newActiveCfg := *GlobalConfig
	newActiveCfg.IPWhitelist = newCfgFromFile.IPWhitelist
	newActiveCfg.TrustProxy = newCfgFromFile.TrustProxy
	GlobalConfig = &newActiveCfg
	mu.Unlock()

	slog.Info("✅ 配置文件重载成功",
		"ipWhitelist", newActiveCfg.IPWhitelist,
		"trustProxy", newActiveCfg.TrustProxy)

	for _, callback := range reloadCallbacks {
		callback(&newActiveCfg)
	}
}

// RegisterReloadCallback 注册配置重载回调
func RegisterReloadCallback(callback func(*Config)) {
	reloadCallbacks = append(reloadCallbacks, callback)
}

// GetConfig 获取当前配置（线程安全）
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalConfig
}

// GenerateSecureKey 生成安全的随机密钥
func GenerateSecureKey() string {
	return uuid.New().String()
}

// GenerateExampleConfig 生成示例配置文件
func GenerateExampleConfig() string {
	return `# linkGuard 配置文件
# 基础配置
port: "9080"
bind: ""  # 留空表示绑定所有接口
base_dir: "./files"
key: "your-strong-key-here"

# 签名配置
algorithm: "sha256"   # md5/sha1/sha224/sha256/sha384/sha512
ttl_minutes: 30       # 默认签名有效期（分钟），0 表示禁用自动过期

# TLS 配置
tls: false
tls_port: "9443"
cert_file: "cert.pem"
key_file: "key.pem"

# 安全配置（支持热重载）
ip_whitelist: ""      # 管理接口白名单，如 "10.0.0.0/8,192.168.1.5"
trust_proxy: false    # 仅在可信反向代理后开启

# 进程锁（可选，绝对路径）
pid_file: ""
`
}
