// Package main 是交易终端实时核心的入口点。
// 终端通过一条多路复用的 WebSocket 连接完成认证、行情订阅与订单收发，
// 并将行情批次与订单事件按 JSONL 落盘供离线复盘。
//
// 登录凭据从环境变量 TERMINAL_ACCOUNT / TERMINAL_PASSWORD 读取
// （支持 .env 文件），禁止写入配置文件。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trading-terminal-core/internal/config"
	"trading-terminal-core/internal/connection"
	"trading-terminal-core/internal/core/model"
	"trading-terminal-core/internal/journal"
	"trading-terminal-core/internal/order"
	"trading-terminal-core/internal/quote"
	"trading-terminal-core/internal/router"
	"trading-terminal-core/internal/session"
	"trading-terminal-core/internal/subscription"
	"trading-terminal-core/internal/util/timeutil"
)

// quoteRecord 行情流水记录
type quoteRecord struct {
	// TsUnixNs 落盘时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Quotes 同一批次产出的行情
	Quotes []model.Quote `json:"quotes"`
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时忽略错误，凭据可直接来自进程环境
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	account := os.Getenv("TERMINAL_ACCOUNT")
	password := os.Getenv("TERMINAL_PASSWORD")
	if account == "" || password == "" {
		fmt.Fprintln(os.Stderr, "缺少登录凭据: 请设置 TERMINAL_ACCOUNT 和 TERMINAL_PASSWORD")
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	tokenStore, err := session.NewSQLiteStore(cfg.Session.StorePath)
	if err != nil {
		logger.Error("打开会话存储失败", zap.Error(err))
		os.Exit(1)
	}
	defer tokenStore.Close()

	manager := connection.NewManager(&cfg.Server, connection.NewWSTransport(&cfg.Server), logger)
	sess := session.NewSession(tokenStore, manager, cfg.Session.LoginTimeoutMs, logger)
	bookStore := quote.NewStore()
	processor := quote.NewProcessor(bookStore, logger)
	registry := subscription.NewRegistry(sess, manager, cfg.MarketData.Depth, logger)
	gateway := order.NewGateway(sess, manager, cfg.Journal.BufferSize, logger)
	dispatcher := router.NewDispatcher(sess, processor, gateway, logger)

	manager.OnMessage(dispatcher.Handle)

	var quotesWriter *journal.Writer
	var ordersWriter *journal.Writer
	if cfg.Journal.QuotesEnabled {
		quotesWriter, err = journal.NewWriter(fmt.Sprintf("%s/quotes.jsonl", cfg.Journal.Dir), cfg.Journal.BufferSize)
		if err != nil {
			logger.Error("创建行情流水 writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.Journal.OrdersEnabled {
		ordersWriter, err = journal.NewWriter(fmt.Sprintf("%s/orders.jsonl", cfg.Journal.Dir), cfg.Journal.BufferSize)
		if err != nil {
			logger.Error("创建订单流水 writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	if quotesWriter != nil {
		processor.OnBatch(func(quotes []model.Quote) {
			_ = quotesWriter.Write(quoteRecord{TsUnixNs: timeutil.NowNano(), Quotes: quotes})
		})
	}

	go func() {
		for ev := range gateway.Events() {
			logger.Info("订单事件",
				zap.String("kind", string(ev.Kind)),
				zap.String("order_id", ev.OrderID),
				zap.String("client_order_id", ev.ClientOrderID),
				zap.String("status", string(ev.Status)))
			if ordersWriter != nil {
				_ = ordersWriter.Write(ev)
			}
		}
	}()

	// 重连后先重新认证再恢复订阅；令牌不随连接自动恢复会话
	// 首次连接的登录由启动流程负责，状态回调只处理之后的重连
	var bootstrapped atomic.Bool
	manager.OnStateChange(func(state connection.State) {
		switch state {
		case connection.StateClosed:
			sess.HandleDisconnect()
		case connection.StateOpen:
			if !bootstrapped.Load() || sess.Authenticated() {
				return
			}
			sess.HandleReconnect()
			go func() {
				loginCtx, loginCancel := context.WithTimeout(ctx, 30*time.Second)
				defer loginCancel()
				ok, err := sess.Login(loginCtx, account, password)
				if err != nil || !ok {
					logger.Warn("重连后重新登录失败", zap.Error(err))
					return
				}
				if err := registry.Resubscribe(); err != nil {
					logger.Warn("重连后恢复订阅失败", zap.Error(err))
				}
			}()
		}
	})

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()

	if err := manager.Connect(startCtx); err != nil {
		logger.Error("网关连接失败", zap.Error(err))
		os.Exit(1)
	}

	// 首次拨号成功后再启动读循环，避免循环在无连接时先烧掉一次退避
	go manager.Run(ctx)

	ok, err := sess.Login(startCtx, account, password)
	if err != nil {
		logger.Error("登录失败", zap.Error(err))
		os.Exit(1)
	}
	if !ok {
		logger.Error("登录被服务端拒绝")
		os.Exit(1)
	}
	bootstrapped.Store(true)

	if len(cfg.MarketData.Symbols) > 0 {
		if err := registry.Subscribe(cfg.MarketData.Symbols); err != nil {
			logger.Error("初始订阅失败", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("初始订阅完成",
			zap.Strings("symbols", cfg.MarketData.Symbols),
			zap.Int("depth", cfg.MarketData.Depth))
	}

	<-ctx.Done()

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Close()
		if quotesWriter != nil {
			_ = quotesWriter.Close()
		}
		if ordersWriter != nil {
			_ = ordersWriter.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成", zap.Strings("cached_symbols", bookStore.Symbols()))
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
