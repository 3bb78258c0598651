// Package wire 定义终端与网关之间的信封消息类型。
// 所有流量（认证、行情、订单）共用一条连接，通过 subject 字段区分。
package wire

import (
	"encoding/json"
)

// 信封 subject 常量
const (
	// SubjectLogon 登录请求
	SubjectLogon = "logon"
	// SubjectLogonResponse 登录响应
	SubjectLogonResponse = "logonResponse"
	// SubjectMDRequest 行情订阅/退订请求
	SubjectMDRequest = "mdRequest"
	// SubjectMarketData 深度行情推送
	SubjectMarketData = "marketData"
	// SubjectOrderRequest 订单请求（NEW/CANCEL/MODIFY）
	SubjectOrderRequest = "orderRequest"
	// SubjectOrderStatus 订单状态推送
	SubjectOrderStatus = "orderStatus"
)

// Envelope 信封消息
// obj 字段为任意结构化负载，部分服务端实现会把 obj 再编码成 JSON 字符串，
// 解码时需要按需做第二次解析（见 Payload）。
type Envelope struct {
	// Subject 消息类型标识
	Subject string `json:"subject"`
	// Token 会话令牌（认证后的出站消息携带）
	Token string `json:"token,omitempty"`
	// Obj 消息负载，延迟解析
	Obj json.RawMessage `json:"obj,omitempty"`
}

// LogonRequest 登录请求负载
type LogonRequest struct {
	// Account 账户名
	Account string `json:"account"`
	// Password 密码
	Password string `json:"password"`
}

// LogonResponse 登录响应负载
type LogonResponse struct {
	// Ok 登录是否成功
	Ok bool `json:"ok"`
	// Token 会话令牌（成功时携带）
	Token string `json:"token,omitempty"`
	// Message 失败原因（服务端原文）
	Message string `json:"message,omitempty"`
}

// MDRequest 行情订阅请求负载
type MDRequest struct {
	// Subscribe true=订阅，false=退订
	Subscribe bool `json:"subscribe"`
	// MarketDepth 请求的深度档数
	MarketDepth int `json:"marketDepth"`
	// Symbols 交易对列表（一次请求携带整批增量）
	Symbols []string `json:"symbols"`
}

// PriceLevel 深度档位（线上格式）
// 价格和数量为字符串，比较前必须解析为数值
type PriceLevel struct {
	// P 价格
	P string `json:"p"`
	// Q 数量
	Q string `json:"q"`
}

// DepthBook 单个交易对的深度推送
type DepthBook struct {
	// Symbol 交易对
	Symbol string `json:"symbol"`
	// Bids 买盘档位（最优在前）
	Bids []PriceLevel `json:"bids"`
	// Offers 卖盘档位（最优在前）
	Offers []PriceLevel `json:"offers"`
}

// OrderRequestPayload 订单请求负载
// MODIFY 时仅携带变化字段（指针字段为 nil 不上送）
type OrderRequestPayload struct {
	// Action 订单动作: NEW, CANCEL, MODIFY
	Action string `json:"action"`
	// ClientOrderID 客户端订单标识
	ClientOrderID string `json:"clientOrderId,omitempty"`
	// OrderID 服务端订单标识（CANCEL/MODIFY 必填）
	OrderID string `json:"orderId,omitempty"`
	// Symbol 交易对
	Symbol string `json:"symbol,omitempty"`
	// Side 买卖方向
	Side string `json:"side,omitempty"`
	// Type 订单类型
	Type string `json:"type,omitempty"`
	// Quantity 数量
	Quantity *float64 `json:"quantity,omitempty"`
	// Price 限价
	Price *float64 `json:"price,omitempty"`
	// StopPrice 触发价
	StopPrice *float64 `json:"stopPrice,omitempty"`
	// TimeInForce 有效期
	TimeInForce string `json:"timeInForce,omitempty"`
}

// OrderStatusPush 订单状态推送负载
type OrderStatusPush struct {
	// OrderID 服务端订单标识
	OrderID string `json:"orderId"`
	// ClientOrderID 客户端订单标识
	ClientOrderID string `json:"clientOrderId,omitempty"`
	// Status 订单状态
	Status string `json:"status"`
	// Message 附加说明（如拒绝原因）
	Message string `json:"message,omitempty"`
	// FilledQty 已成交数量
	FilledQty float64 `json:"filledQty,omitempty"`
}
