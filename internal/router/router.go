// Package router 入站消息分发。
// 连接管理器的读取循环把原始帧交给 Dispatcher，按信封 subject 分发到
// 会话、行情处理器或订单网关。无法解码的帧计数后丢弃——单条坏帧不会
// 导致连接被拆除。所有处理器在分发循环内同步执行有界工作。
package router

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trading-terminal-core/internal/order"
	"trading-terminal-core/internal/quote"
	"trading-terminal-core/internal/session"
	"trading-terminal-core/internal/util/timeutil"
	"trading-terminal-core/internal/wire"
)

// Dispatcher 入站消息分发器
type Dispatcher struct {
	// session 认证会话
	session *session.Session
	// processor 行情处理器
	processor *quote.Processor
	// gateway 订单网关
	gateway *order.Gateway
	// logger 日志记录器
	logger *zap.Logger

	// decodeErrCount 解码错误计数
	decodeErrCount uint64
	// lastDecodeErrLogNs 上次解码错误日志时间（纳秒）
	lastDecodeErrLogNs int64
}

// NewDispatcher 创建入站消息分发器
// 参数 sess: 认证会话
// 参数 processor: 行情处理器
// 参数 gateway: 订单网关
// 参数 logger: 日志记录器
func NewDispatcher(sess *session.Session, processor *quote.Processor, gateway *order.Gateway, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		session:   sess,
		processor: processor,
		gateway:   gateway,
		logger:    logger.Named("router"),
	}
}

// Handle 处理一帧入站消息
// 注册为连接管理器的消息处理器；按信封 subject 分发
// 参数 data: 原始帧
func (d *Dispatcher) Handle(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		d.recordDecodeError(err, data)
		return
	}

	switch env.Subject {
	case wire.SubjectLogonResponse:
		d.session.HandleLogonResponse(env)

	case wire.SubjectMarketData:
		ticks, err := wire.DecodeMarketData(env)
		if err != nil {
			d.recordDecodeError(err, data)
			return
		}
		d.processor.Process(ticks)

	case wire.SubjectOrderStatus:
		d.gateway.HandleOrderStatus(env)

	default:
		d.logger.Debug("忽略未知 subject", zap.String("subject", env.Subject))
	}
}

// DecodeErrorCount 获取解码错误计数
func (d *Dispatcher) DecodeErrorCount() uint64 {
	return atomic.LoadUint64(&d.decodeErrCount)
}

// recordDecodeError 记录解码错误并采样输出日志
// 采样策略：每 100 次错误记录 1 条，且同类日志至少间隔 1 分钟
func (d *Dispatcher) recordDecodeError(err error, data []byte) {
	count := atomic.AddUint64(&d.decodeErrCount, 1)
	if count != 1 && count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&d.lastDecodeErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&d.lastDecodeErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	d.logger.Warn("解码入站帧失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
