// Package config 负责加载和验证 YAML 配置文件。
// 提供终端实时核心所需的全部配置项：网关连接、会话存储、行情订阅与日志输出。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Server 网关连接配置
	Server ServerConfig `yaml:"server"`
	// Session 会话配置
	Session SessionConfig `yaml:"session"`
	// MarketData 行情配置
	MarketData MarketDataConfig `yaml:"market_data"`
	// Journal 事件流水配置
	Journal JournalConfig `yaml:"journal"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// ServerConfig 网关 WebSocket 连接配置
// 认证、行情与订单复用这一条连接
type ServerConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// HandshakeTimeoutMs 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒），超时视为连接失效触发重连
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// ReconnectBaseMs 重连退避基础间隔（毫秒）
	ReconnectBaseMs int `yaml:"reconnect_base_ms"`
	// ReconnectMaxMs 重连退避最大间隔（毫秒）
	ReconnectMaxMs int `yaml:"reconnect_max_ms"`
	// ReconnectJitter 重连退避抖动比例（0-1）
	ReconnectJitter float64 `yaml:"reconnect_jitter"`
	// MaxPendingFrames 出站队列容量上限，超出后丢弃最旧帧
	MaxPendingFrames int `yaml:"max_pending_frames"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	// StorePath 令牌持久化存储路径（SQLite 文件）
	StorePath string `yaml:"store_path"`
	// LoginTimeoutMs 登录响应等待超时（毫秒）
	LoginTimeoutMs int `yaml:"login_timeout_ms"`
}

// MarketDataConfig 行情配置
type MarketDataConfig struct {
	// Depth 订阅的深度档数
	Depth int `yaml:"depth"`
	// Symbols 启动时订阅的交易对列表
	Symbols []string `yaml:"symbols"`
}

// JournalConfig 事件流水配置
// 行情批次与订单事件按 JSONL 落盘，便于离线复盘
type JournalConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// QuotesEnabled 是否记录行情批次
	QuotesEnabled bool `yaml:"quotes_enabled"`
	// OrdersEnabled 是否记录订单事件
	OrdersEnabled bool `yaml:"orders_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "trading-terminal-core"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Server.HandshakeTimeoutMs == 0 {
		c.Server.HandshakeTimeoutMs = 10000 // 10 秒
	}
	if c.Server.PingIntervalMs == 0 {
		c.Server.PingIntervalMs = 15000 // 15 秒
	}
	if c.Server.ReadTimeoutMs == 0 {
		c.Server.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.Server.ReconnectBaseMs == 0 {
		c.Server.ReconnectBaseMs = 1000 // 1 秒
	}
	if c.Server.ReconnectMaxMs == 0 {
		c.Server.ReconnectMaxMs = 30000 // 30 秒
	}
	if c.Server.ReconnectJitter == 0 {
		c.Server.ReconnectJitter = 0.2 // ±20%
	}
	if c.Server.MaxPendingFrames == 0 {
		c.Server.MaxPendingFrames = 1000
	}

	if c.Session.StorePath == "" {
		c.Session.StorePath = "./terminal-session.db"
	}
	if c.Session.LoginTimeoutMs == 0 {
		c.Session.LoginTimeoutMs = 10000 // 10 秒
	}

	if c.MarketData.Depth == 0 {
		c.MarketData.Depth = 5
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "./output"
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Server.URL == "" {
		errs = append(errs, "server.url: 网关 WebSocket 地址不能为空")
	}
	if c.Server.ReconnectBaseMs < 0 {
		errs = append(errs, "server.reconnect_base_ms: 重连基础间隔不能为负数")
	}
	if c.Server.ReconnectMaxMs < c.Server.ReconnectBaseMs {
		errs = append(errs, "server.reconnect_max_ms: 重连最大间隔不能小于基础间隔")
	}
	if c.Server.ReconnectJitter < 0 || c.Server.ReconnectJitter > 1 {
		errs = append(errs, fmt.Sprintf("server.reconnect_jitter: 抖动比例必须在 0-1 之间，当前值: %f", c.Server.ReconnectJitter))
	}
	if c.Server.MaxPendingFrames <= 0 {
		errs = append(errs, "server.max_pending_frames: 出站队列容量必须为正数")
	}

	if c.Session.LoginTimeoutMs <= 0 {
		errs = append(errs, "session.login_timeout_ms: 登录超时必须为正数")
	}

	if c.MarketData.Depth <= 0 || c.MarketData.Depth > 50 {
		errs = append(errs, fmt.Sprintf("market_data.depth: 深度档数必须在 1-50 之间，当前值: %d", c.MarketData.Depth))
	}
	for i, sym := range c.MarketData.Symbols {
		if sym == "" {
			errs = append(errs, fmt.Sprintf("market_data.symbols[%d]: 交易对不能为空", i))
		}
	}

	if c.Journal.BufferSize <= 0 {
		errs = append(errs, "journal.buffer_size: 缓冲区大小必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
