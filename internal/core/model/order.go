// Package model 订单相关类型定义。
package model

// Side 买卖方向
type Side string

const (
	// SideBuy 买入
	SideBuy Side = "BUY"
	// SideSell 卖出
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	// OrderTypeLimit 限价单
	OrderTypeLimit OrderType = "LIMIT"
	// OrderTypeMarket 市价单
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeStop 止损单
	OrderTypeStop OrderType = "STOP"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	// TIFGoodTillCancel 撤销前有效
	TIFGoodTillCancel TimeInForce = "GTC"
	// TIFImmediateOrCancel 立即成交否则撤销
	TIFImmediateOrCancel TimeInForce = "IOC"
	// TIFDay 当日有效
	TIFDay TimeInForce = "DAY"
)

// OrderAction 订单动作
type OrderAction string

const (
	// ActionNew 新建订单
	ActionNew OrderAction = "NEW"
	// ActionCancel 撤销订单
	ActionCancel OrderAction = "CANCEL"
	// ActionModify 修改订单
	ActionModify OrderAction = "MODIFY"
)

// OrderStatus 订单状态（服务端推送）
type OrderStatus string

const (
	// StatusNew 已接受
	StatusNew OrderStatus = "NEW"
	// StatusPartiallyFilled 部分成交
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	// StatusFilled 全部成交（终态）
	StatusFilled OrderStatus = "FILLED"
	// StatusCanceled 已撤销（终态）
	StatusCanceled OrderStatus = "CANCELED"
	// StatusRejected 已拒绝（终态）
	StatusRejected OrderStatus = "REJECTED"
)

// IsTerminal 判断状态是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// OrderRequest 下单请求
// ClientOrderID 为空时由网关生成，会话内唯一。
type OrderRequest struct {
	// ClientOrderID 客户端订单标识
	ClientOrderID string
	// Symbol 交易对
	Symbol string
	// Side 买卖方向
	Side Side
	// Type 订单类型
	Type OrderType
	// Quantity 数量
	Quantity float64
	// Price 限价（限价单必填）
	Price float64
	// StopPrice 触发价（止损单必填）
	StopPrice float64
	// TimeInForce 有效期，空值由服务端取默认
	TimeInForce TimeInForce
}

// OrderModify 改单字段集合
// 仅携带发生变化的字段，nil 表示不修改该字段。
type OrderModify struct {
	// Quantity 新数量
	Quantity *float64
	// Price 新限价
	Price *float64
	// StopPrice 新触发价
	StopPrice *float64
	// TimeInForce 新有效期
	TimeInForce *TimeInForce
}

// OrderEventKind 订单事件来源分类
// 区分服务端回报与本地发送失败，两者对用户可见但语义不同。
type OrderEventKind string

const (
	// EventVenueStatus 服务端订单状态回报
	EventVenueStatus OrderEventKind = "venue_status"
	// EventTransmitFailure 本地发送失败（订单未到达服务端）
	EventTransmitFailure OrderEventKind = "transmit_failure"
)

// OrderEvent 订单事件
// 通过 clientOrderId/orderId 与请求关联，经订单事件流异步送达。
type OrderEvent struct {
	// Kind 事件来源分类
	Kind OrderEventKind `json:"kind"`
	// OrderID 服务端订单标识（回报中携带）
	OrderID string `json:"order_id,omitempty"`
	// ClientOrderID 客户端订单标识
	ClientOrderID string `json:"client_order_id,omitempty"`
	// Status 订单状态（仅 venue_status 事件）
	Status OrderStatus `json:"status,omitempty"`
	// Message 附加说明（拒绝原因、失败原因等）
	Message string `json:"message,omitempty"`
	// FilledQty 已成交数量
	FilledQty float64 `json:"filled_qty,omitempty"`
	// TsUnixNs 事件时间戳（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
}
