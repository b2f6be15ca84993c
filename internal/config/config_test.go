package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("无配置文件时应使用默认值: %v", err)
	}
	if cfg.Feed.Secondary.Interval != 3*time.Second {
		t.Fatalf("secondary 轮询默认应为 3s, 实际 %s", cfg.Feed.Secondary.Interval)
	}
	if cfg.Calculator.GSTRate != 0.03 {
		t.Fatalf("GST 默认应为 0.03, 实际 %v", cfg.Calculator.GSTRate)
	}
	if cfg.Store.Backend != StoreMemory || cfg.Store.Key != "default" {
		t.Fatalf("store 默认值错误: %+v", cfg.Store)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("api 默认地址错误: %s", cfg.API.Addr)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: redis
  key: shop-42
redis:
  addr: 127.0.0.1:6379
feed:
  secondary:
    interval: 5s
alerting:
  channels: telegram,log
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	t.Setenv("GOLDBOARD_API_ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Store.Backend != StoreRedis || cfg.Store.Key != "shop-42" {
		t.Fatalf("store 配置错误: %+v", cfg.Store)
	}
	if cfg.Feed.Secondary.Interval != 5*time.Second {
		t.Fatalf("interval 应为 5s, 实际 %s", cfg.Feed.Secondary.Interval)
	}
	if cfg.API.Addr != ":9090" {
		t.Fatalf("环境变量应覆盖 api.addr, 实际 %s", cfg.API.Addr)
	}
	if len(cfg.Alerting.Channels) != 2 {
		t.Fatalf("逗号分隔的 channels 应解析为 2 项, 实际 %v", cfg.Alerting.Channels)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Scheduler: SchedulerConfig{Interval: time.Minute},
			Feed: FeedConfig{Secondary: SecondaryFeedConfig{
				Enabled: true, Interval: 3 * time.Second, SilverUnitGrams: 1000,
			}},
			Calculator: CalculatorConfig{GSTRate: 0.03},
			Store:      StoreConfig{Backend: StoreMemory, Key: "default"},
			Export:     ExportConfig{MaxDataPoints: 10},
		}
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := map[string]func(*Config){
		"postgres 无 dsn":   func(c *Config) { c.Store.Backend = StorePostgres },
		"redis 无地址":       func(c *Config) { c.Store.Backend = StoreRedis },
		"未知 backend":      func(c *Config) { c.Store.Backend = "etcd" },
		"空 key":           func(c *Config) { c.Store.Key = " " },
		"GST 越界":          func(c *Config) { c.Calculator.GSTRate = 1.5 },
		"白银单位为 0":         func(c *Config) { c.Feed.Secondary.SilverUnitGrams = 0 },
		"telegram 无 token": func(c *Config) { c.Alerting.Telegram.Enabled = true },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s 应报错", name)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GOLDBOARD_STORE_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Setenv("GOLDBOARD_STORE_KEY", "")
	os.Unsetenv("GOLDBOARD_STORE_KEY")

	if err := LoadDotEnv(filepath.Join(dir, "absent.env"), path); err != nil {
		t.Fatalf("缺失的 .env 应被忽略: %v", err)
	}
	if got := os.Getenv("GOLDBOARD_STORE_KEY"); got != "from-dotenv" {
		t.Fatalf("应从 .env 加载, 实际 %q", got)
	}
}
