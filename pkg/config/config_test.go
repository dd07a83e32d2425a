package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testServerConfigContent = `
port: "7070"
bind: "127.0.0.1"
key: "file-key"
algorithm: "sha512"
ttl_minutes: 5
`

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0644)
	assert.NoError(t, err)
	return path
}

// resetFlags 重置全局状态以允许隔离测试
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
}

func TestInitConfigPriority(t *testing.T) {
	// Helper to run InitConfig with args and cleanup
	runInit := func(args ...string) {
		t.Helper()
		oldArgs := os.Args
		defer func() { os.Args = oldArgs }()
		os.Args = append([]string{"test"}, args...)
		resetFlags()
		InitConfig()
	}

	t.Run("1. Defaults", func(t *testing.T) {
		runInit()
		cfg := GetConfig()
		assert.Equal(t, "9080", cfg.Port)
		assert.Equal(t, "", cfg.Bind)
		assert.Equal(t, "sha256", cfg.Algorithm)
		assert.Equal(t, uint(30), cfg.TTLMinutes)
		// 默认生成 UUID 格式的密钥
		assert.NotEmpty(t, cfg.Key)
		assert.Regexp(t, `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`, cfg.Key)
	})

	t.Run("2. Config File", func(t *testing.T) {
		configFile := createTempConfig(t, testServerConfigContent)
		runInit("-c", configFile)
		cfg := GetConfig()
		assert.Equal(t, "7070", cfg.Port)
		assert.Equal(t, "127.0.0.1", cfg.Bind)
		assert.Equal(t, "file-key", cfg.Key)
		assert.Equal(t, "sha512", cfg.Algorithm)
		assert.Equal(t, uint(5), cfg.TTLMinutes)
	})

	t.Run("3. Environment > Config File", func(t *testing.T) {
		configFile := createTempConfig(t, testServerConfigContent)

		t.Setenv("LINKGUARD_PORT", "8080")
		t.Setenv("LINKGUARD_KEY", "env-key")
		t.Setenv("LINKGUARD_TTL_MINUTES", "15")

		runInit("-c", configFile)
		cfg := GetConfig()
		assert.Equal(t, "8080", cfg.Port, "Env port should override file port")
		assert.Equal(t, "env-key", cfg.Key, "Env key should override file key")
		assert.Equal(t, uint(15), cfg.TTLMinutes, "Env ttl should override file ttl")
	})

	t.Run("4. Command Line > Environment > Config File", func(t *testing.T) {
		configFile := createTempConfig(t, testServerConfigContent)

		t.Setenv("LINKGUARD_PORT", "8080")
		t.Setenv("LINKGUARD_KEY", "env-key")

		runInit("-c", configFile, "-p", "9090", "-k", "cli-key", "-ttl", "0")
		cfg := GetConfig()

		assert.Equal(t, "9090", cfg.Port, "CLI flag '-p' should have the highest priority for port")
		assert.Equal(t, "cli-key", cfg.Key, "CLI flag '-k' should have the highest priority for key")
		assert.Equal(t, uint(0), cfg.TTLMinutes, "CLI flag '-ttl 0' should disable default expiry")

		// bind 未被命令行和环境变量覆盖，应取配置文件值
		assert.Equal(t, "127.0.0.1", cfg.Bind, "bind should come from config file")
	})

	t.Run("5. Environment only", func(t *testing.T) {
		t.Setenv("LINKGUARD_ALGORITHM", "sha1")

		runInit()
		cfg := GetConfig()

		assert.Equal(t, "sha1", cfg.Algorithm)
		assert.NotEmpty(t, cfg.Key)
	})
}

func TestGenerateExampleConfig(t *testing.T) {
	example := GenerateExampleConfig()
	assert.Contains(t, example, "ttl_minutes")
	assert.Contains(t, example, "algorithm")
	assert.Contains(t, example, "ip_whitelist")

	// 示例配置必须是合法的 YAML
	cfg := &Config{}
	path := createTempConfig(t, example)
	assert.NoError(t, loadFromFile(cfg, path))
	assert.Equal(t, "9080", cfg.Port)
	assert.Equal(t, "sha256", cfg.Algorithm)
}

func TestGenerateSecureKey(t *testing.T) {
	a := GenerateSecureKey()
	b := GenerateSecureKey()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "generated keys should be unique")
}
