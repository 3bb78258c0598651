// Package connection 连接管理器。
// 认证、行情、订单三类流量复用同一条连接，出站写入经 connMu 串行化
// （gorilla/websocket 不允许并发多写者），入站由单一读取循环消费。
// 断线不作为致命错误上报，只通过状态变更事件暴露，并按退避无限重试。
package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trading-terminal-core/internal/config"
	"trading-terminal-core/internal/util/backoff"
	"trading-terminal-core/internal/util/timeutil"
)

// Metrics 连接质量指标
type Metrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64
	// DroppedFrames 因队列溢出被丢弃的出站帧数
	DroppedFrames int64
	// QueuedFrames 当前排队等待重放的出站帧数
	QueuedFrames int
	// MessagesPerSec 每秒入站消息数
	MessagesPerSec float64
	// LastMessageAgeMs 最后入站消息距今时间（毫秒）
	LastMessageAgeMs int64
}

// MessageHandler 入站消息处理器
// 由读取循环同步调用，必须做有界的非阻塞工作
type MessageHandler func(data []byte)

// StateHandler 状态变更处理器
type StateHandler func(s State)

// Manager 连接管理器
// 持有唯一的物理连接：Open 时直接发送，否则入队等待重连后按 FIFO 重放。
type Manager struct {
	// cfg 网关连接配置
	cfg *config.ServerConfig
	// transport 传输层实现
	transport Transport
	// logger 日志记录器
	logger *zap.Logger

	// conn 当前连接，nil 表示断开
	conn Conn
	// connMu 连接与写入锁（单写者）
	connMu sync.Mutex
	// dialMu 串行化并发 Connect 调用
	dialMu sync.Mutex

	// state 当前生命周期状态
	state int32

	// queue 出站队列（FIFO，超限丢弃最旧）
	queue [][]byte
	// queueMu 队列锁
	queueMu sync.Mutex

	// handler 入站消息处理器（替换式注册，同一时刻仅一个生效）
	handler MessageHandler
	// stateHandler 状态变更处理器（替换式注册）
	stateHandler StateHandler
	// handlerMu 处理器锁
	handlerMu sync.RWMutex

	// backoff 重连退避
	backoff *backoff.Backoff
	// closed 是否已主动关闭
	closed int32

	// metrics 连接指标
	metrics Metrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastMsgTime 最后入站消息时间（纳秒）
	lastMsgTime int64
	// msgCount 入站消息计数（用于计算速率）
	msgCount int64
}

// NewManager 创建连接管理器
// 参数 cfg: 网关连接配置
// 参数 transport: 传输层实现
// 参数 logger: 日志记录器
func NewManager(cfg *config.ServerConfig, transport Transport, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		transport: transport,
		logger:    logger.Named("connection"),
		state:     int32(StateUninstantiated),
		backoff: backoff.New(
			time.Duration(cfg.ReconnectBaseMs)*time.Millisecond,
			time.Duration(cfg.ReconnectMaxMs)*time.Millisecond,
			cfg.ReconnectJitter,
		),
	}
}

// State 获取当前连接状态
func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

// setState 更新状态并通知处理器
// 状态未变化时不通知
func (m *Manager) setState(s State) {
	prev := State(atomic.SwapInt32(&m.state, int32(s)))
	if prev == s {
		return
	}

	m.handlerMu.RLock()
	h := m.stateHandler
	m.handlerMu.RUnlock()
	if h != nil {
		h(s)
	}
}

// OnMessage 注册入站消息处理器
// 替换式注册：新处理器取代旧处理器，不叠加
func (m *Manager) OnMessage(h MessageHandler) {
	m.handlerMu.Lock()
	m.handler = h
	m.handlerMu.Unlock()
}

// OnStateChange 注册状态变更处理器
// 替换式注册
func (m *Manager) OnStateChange(h StateHandler) {
	m.handlerMu.Lock()
	m.stateHandler = h
	m.handlerMu.Unlock()
}

// Connect 发起一次连接尝试
// 已在 Connecting/Open 状态时为 no-op。成功后迁移到 Open 并按 FIFO
// 重放出站队列；失败迁移到 Closed，由 Run 循环按退避继续重试。
// 参数 ctx: 上下文，用于取消连接
func (m *Manager) Connect(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	switch m.State() {
	case StateConnecting, StateOpen:
		return nil
	}

	// 允许 Close 之后重新 Connect
	atomic.StoreInt32(&m.closed, 0)
	m.setState(StateConnecting)

	conn, err := m.transport.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.setState(StateClosed)
		return fmt.Errorf("连接网关失败: %w", err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	m.backoff.Reset()
	m.setState(StateOpen)
	m.logger.Info("网关连接成功", zap.String("url", m.cfg.URL))

	m.flushQueue()
	return nil
}

// Send 发送一帧
// Open 状态直接写入；其余状态（包括 Close 之后）入队等待重连后重放，
// 不拒绝调用。写入失败时该帧重新入队并返回错误，连接吸收为 Closed。
// 参数 data: 序列化后的信封
func (m *Manager) Send(data []byte) error {
	if m.State() == StateOpen {
		if err := m.writeFrame(data); err != nil {
			m.logger.Warn("发送失败，帧已重新入队", zap.Error(err))
			m.enqueue(data)
			m.teardown()
			return fmt.Errorf("发送失败: %w", err)
		}
		return nil
	}

	m.enqueue(data)
	return nil
}

// writeFrame 写入一帧（connMu 串行化）
func (m *Manager) writeFrame(data []byte) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return fmt.Errorf("连接未建立")
	}
	return m.conn.WriteMessage(data)
}

// enqueue 将帧加入出站队列
// 队列达到容量上限时丢弃最旧的帧
func (m *Manager) enqueue(data []byte) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	if len(m.queue) >= m.cfg.MaxPendingFrames {
		m.queue = m.queue[1:]
		m.metricsMu.Lock()
		m.metrics.DroppedFrames++
		dropped := m.metrics.DroppedFrames
		m.metricsMu.Unlock()
		// 长时间断线期间按间隔采样告警，避免刷盘
		if dropped == 1 || dropped%100 == 0 {
			m.logger.Warn("出站队列已满，丢弃最旧帧", zap.Int64("dropped_total", dropped))
		}
	}
	m.queue = append(m.queue, data)
}

// flushQueue 按 FIFO 重放出站队列
// 重放中途写入失败时，剩余帧（含失败帧）回到队首等待下次重连
func (m *Manager) flushQueue() {
	m.queueMu.Lock()
	pending := m.queue
	m.queue = nil
	m.queueMu.Unlock()

	if len(pending) == 0 {
		return
	}

	for i, frame := range pending {
		if err := m.writeFrame(frame); err != nil {
			m.logger.Warn("重放出站队列失败",
				zap.Error(err), zap.Int("remaining", len(pending)-i))
			m.queueMu.Lock()
			m.queue = append(pending[i:], m.queue...)
			m.queueMu.Unlock()
			m.teardown()
			return
		}
	}
	m.logger.Info("出站队列重放完成", zap.Int("frames", len(pending)))
}

// Run 启动连接主循环
// 包含读取循环、心跳循环和指标统计，阻塞直到 ctx 取消或 Close
// 参数 ctx: 上下文
func (m *Manager) Run(ctx context.Context) {
	go m.pingLoop(ctx)
	go m.metricsLoop(ctx)
	m.readLoop(ctx)
}

// readLoop 读取循环（单一入站消费者）
func (m *Manager) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&m.closed) == 1 {
			return
		}

		m.connMu.Lock()
		conn := m.conn
		m.connMu.Unlock()

		if conn == nil || m.State() != StateOpen {
			m.reconnect(ctx)
			continue
		}

		data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&m.closed) == 1 {
				return
			}
			m.logger.Warn("读取网关消息失败", zap.Error(err))
			m.incrementReconnectCount()
			m.teardown()
			m.reconnect(ctx)
			continue
		}

		atomic.StoreInt64(&m.lastMsgTime, timeutil.NowNano())
		atomic.AddInt64(&m.msgCount, 1)

		m.handlerMu.RLock()
		h := m.handler
		m.handlerMu.RUnlock()
		if h != nil {
			h(data)
		}
	}
}

// reconnect 按退避等待后重连
func (m *Manager) reconnect(ctx context.Context) {
	delay := m.backoff.Next()
	m.logger.Info("准备重连网关", zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if atomic.LoadInt32(&m.closed) == 1 {
		return
	}
	if err := m.Connect(ctx); err != nil {
		m.logger.Error("重连网关失败", zap.Error(err))
	}
}

// pingLoop 心跳循环
func (m *Manager) pingLoop(ctx context.Context) {
	intervalMs := m.cfg.PingIntervalMs
	if intervalMs <= 0 {
		intervalMs = 15000
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&m.closed) == 1 {
				return
			}

			m.connMu.Lock()
			conn := m.conn
			if conn == nil {
				m.connMu.Unlock()
				continue
			}
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.Ping(deadline); err != nil {
				m.connMu.Unlock()
				m.logger.Warn("发送心跳失败", zap.Error(err))
				continue
			}
			m.connMu.Unlock()
		}
	}
}

// metricsLoop 指标统计循环
// 每秒计算入站消息速率与最后消息距今时间
func (m *Manager) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&m.closed) == 1 {
				return
			}

			count := atomic.LoadInt64(&m.msgCount)
			rate := float64(count - lastCount)
			lastCount = count

			lastMsg := atomic.LoadInt64(&m.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = (timeutil.NowNano() - lastMsg) / 1_000_000
			}

			m.queueMu.Lock()
			queued := len(m.queue)
			m.queueMu.Unlock()

			m.metricsMu.Lock()
			m.metrics.MessagesPerSec = rate
			m.metrics.LastMessageAgeMs = ageMs
			m.metrics.QueuedFrames = queued
			m.metricsMu.Unlock()
		}
	}
}

// teardown 吸收传输错误：关闭连接并迁移到 Closed
func (m *Manager) teardown() {
	m.closeConn()
	m.setState(StateClosed)
}

// closeConn 关闭底层连接
func (m *Manager) closeConn() {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Close 主动关闭连接
// 迁移 Closing → Closed；之后的 Send 仍然入队而非拒绝，
// 以容忍 Close 后紧接 Connect 的用法
func (m *Manager) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}
	m.setState(StateClosing)
	m.closeConn()
	m.setState(StateClosed)
	m.logger.Info("连接管理器已关闭")
	return nil
}

// Metrics 获取连接指标
func (m *Manager) Metrics() Metrics {
	m.metricsMu.RLock()
	defer m.metricsMu.RUnlock()
	return m.metrics
}

// incrementReconnectCount 增加重连计数
func (m *Manager) incrementReconnectCount() {
	m.metricsMu.Lock()
	m.metrics.ReconnectCount++
	m.metricsMu.Unlock()
}
