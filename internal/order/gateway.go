// Package order 订单网关：下单、撤单、改单的请求发送与回报分发。
// 调用在请求发出（或入队）后即返回，不等待服务端回报；回报与发送失败
// 统一经订单事件流异步送达，通过 clientOrderId/orderId 关联。
package order

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trading-terminal-core/internal/core/model"
	"trading-terminal-core/internal/session"
	"trading-terminal-core/internal/util/timeutil"
	"trading-terminal-core/internal/wire"
)

// Gateway 订单网关
// 所有操作要求已认证且令牌非空，否则在任何网络发送前同步失败。
type Gateway struct {
	// session 认证会话
	session *session.Session
	// sender 出站发送端口
	sender session.Sender
	// logger 日志记录器
	logger *zap.Logger
	// events 订单事件输出通道
	events chan model.OrderEvent
}

// NewGateway 创建订单网关
// 参数 sess: 认证会话
// 参数 sender: 出站发送端口
// 参数 bufferSize: 事件通道缓冲区大小
// 参数 logger: 日志记录器
func NewGateway(sess *session.Session, sender session.Sender, bufferSize int, logger *zap.Logger) *Gateway {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Gateway{
		session: sess,
		sender:  sender,
		logger:  logger.Named("order"),
		events:  make(chan model.OrderEvent, bufferSize),
	}
}

// PlaceOrder 下单
// ClientOrderID 为空时生成 UUID（会话内唯一，同毫秒内不会碰撞）。
// 请求发出或入队即返回；终态需订阅 Events()。
// 参数 req: 下单请求
// 返回: 实际使用的 clientOrderId 和可能的错误
func (g *Gateway) PlaceOrder(req model.OrderRequest) (string, error) {
	if err := g.requireAuth(); err != nil {
		return "", err
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	payload := wire.OrderRequestPayload{
		Action:        string(model.ActionNew),
		ClientOrderID: clientOrderID,
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          string(req.Type),
		Quantity:      &req.Quantity,
		TimeInForce:   string(req.TimeInForce),
	}
	if req.Price != 0 {
		payload.Price = &req.Price
	}
	if req.StopPrice != 0 {
		payload.StopPrice = &req.StopPrice
	}

	if err := g.transmit(payload, clientOrderID, ""); err != nil {
		return clientOrderID, err
	}

	g.logger.Info("下单请求已发出",
		zap.String("client_order_id", clientOrderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)))
	return clientOrderID, nil
}

// CancelOrder 撤单
// 参数 orderID: 服务端订单标识
func (g *Gateway) CancelOrder(orderID string) error {
	if err := g.requireAuth(); err != nil {
		return err
	}

	payload := wire.OrderRequestPayload{
		Action:  string(model.ActionCancel),
		OrderID: orderID,
	}
	if err := g.transmit(payload, "", orderID); err != nil {
		return err
	}

	g.logger.Info("撤单请求已发出", zap.String("order_id", orderID))
	return nil
}

// ModifyOrder 改单
// 仅上送发生变化的字段加订单标识；无变化字段时直接返回。
// 参数 orderID: 服务端订单标识
// 参数 changes: 变化字段集合
func (g *Gateway) ModifyOrder(orderID string, changes model.OrderModify) error {
	if err := g.requireAuth(); err != nil {
		return err
	}

	payload := wire.OrderRequestPayload{
		Action:    string(model.ActionModify),
		OrderID:   orderID,
		Quantity:  changes.Quantity,
		Price:     changes.Price,
		StopPrice: changes.StopPrice,
	}
	if changes.TimeInForce != nil {
		payload.TimeInForce = string(*changes.TimeInForce)
	}
	if payload.Quantity == nil && payload.Price == nil &&
		payload.StopPrice == nil && payload.TimeInForce == "" {
		return nil
	}

	if err := g.transmit(payload, "", orderID); err != nil {
		return err
	}

	g.logger.Info("改单请求已发出", zap.String("order_id", orderID))
	return nil
}

// Events 获取订单事件流
// 服务端回报与本地发送失败都经此通道送达，由 Kind 区分
func (g *Gateway) Events() <-chan model.OrderEvent {
	return g.events
}

// HandleOrderStatus 处理订单状态推送信封
// 由入站分发循环调用
// 参数 env: subject 为 orderStatus 的信封
func (g *Gateway) HandleOrderStatus(env *wire.Envelope) {
	var push wire.OrderStatusPush
	if err := wire.Payload(env, &push); err != nil {
		g.logger.Warn("解析订单状态推送失败", zap.Error(err))
		return
	}

	status := model.OrderStatus(push.Status)
	if status.IsTerminal() {
		g.logger.Info("订单到达终态",
			zap.String("order_id", push.OrderID),
			zap.String("client_order_id", push.ClientOrderID),
			zap.String("status", push.Status))
	}

	g.emit(model.OrderEvent{
		Kind:          model.EventVenueStatus,
		OrderID:       push.OrderID,
		ClientOrderID: push.ClientOrderID,
		Status:        status,
		Message:       push.Message,
		FilledQty:     push.FilledQty,
		TsUnixNs:      timeutil.NowNano(),
	})
}

// requireAuth 校验认证状态
// 未认证或令牌为空时同步失败，不产生任何网络发送
func (g *Gateway) requireAuth() error {
	if !g.session.Authenticated() || g.session.Token() == "" {
		g.logger.Warn("未认证状态下的订单操作被拒绝")
		return session.ErrNotAuthenticated
	}
	return nil
}

// transmit 编码并发送订单请求
// 发送失败（帧已由连接管理器重新入队）同时产出 transmit_failure 事件：
// 该失败对用户可见，但订单从未到达服务端，与服务端拒绝语义不同。
func (g *Gateway) transmit(payload wire.OrderRequestPayload, clientOrderID, orderID string) error {
	frame, err := wire.Encode(wire.SubjectOrderRequest, g.session.Token(), payload)
	if err != nil {
		return err
	}

	if err := g.sender.Send(frame); err != nil {
		g.emit(model.OrderEvent{
			Kind:          model.EventTransmitFailure,
			OrderID:       orderID,
			ClientOrderID: clientOrderID,
			Message:       "订单请求发送失败，已排队等待重连后重试: " + err.Error(),
			TsUnixNs:      timeutil.NowNano(),
		})
		return err
	}
	return nil
}

// emit 非阻塞产出订单事件
// 通道已满时丢弃并告警，绝不阻塞入站分发循环
func (g *Gateway) emit(ev model.OrderEvent) {
	select {
	case g.events <- ev:
	default:
		g.logger.Warn("订单事件通道已满，丢弃事件",
			zap.String("kind", string(ev.Kind)),
			zap.String("order_id", ev.OrderID))
	}
}
