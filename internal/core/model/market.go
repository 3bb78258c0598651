// Package model 定义终端实时核心使用的领域数据结构。
// 包含深度快照、归一化行情、订单请求与订单事件等核心类型。
package model

import (
	"time"
)

// PriceChange 价格变动方向
// 相对上一次有效快照的三态分类
type PriceChange string

const (
	// ChangeNone 无变化（或首次观察，基线建立）
	ChangeNone PriceChange = "none"
	// ChangeUp 上涨
	ChangeUp PriceChange = "up"
	// ChangeDown 下跌
	ChangeDown PriceChange = "down"
)

// ClassifyChange 对新旧价格做三态分类
// 参数 newPx: 新价格
// 参数 prevPx: 上一次价格
// 返回: up / down / none
func ClassifyChange(newPx, prevPx float64) PriceChange {
	switch {
	case newPx > prevPx:
		return ChangeUp
	case newPx < prevPx:
		return ChangeDown
	default:
		return ChangeNone
	}
}

// Level 深度档位
// 表示某一价格档位的价格和数量
type Level struct {
	// Price 价格
	Price float64
	// Qty 数量
	Qty float64
}

// DepthTick 单个交易对的深度快照
// 最新快照整体替换上一条（不做增量合并），按优到劣排序。
type DepthTick struct {
	// Symbol 交易对，如 EURUSD
	Symbol string
	// Bids 买盘档位（最优在前）
	Bids []Level
	// Offers 卖盘档位（最优在前）
	Offers []Level
	// ArrivedAtUnixNs 本机收到消息的时间戳（纳秒）
	ArrivedAtUnixNs int64
}

// BestBid 获取最优买档
// 返回: 档位与是否存在
func (t *DepthTick) BestBid() (Level, bool) {
	if len(t.Bids) == 0 {
		return Level{}, false
	}
	return t.Bids[0], true
}

// BestOffer 获取最优卖档
// 返回: 档位与是否存在
func (t *DepthTick) BestOffer() (Level, bool) {
	if len(t.Offers) == 0 {
		return Level{}, false
	}
	return t.Offers[0], true
}

// TwoSided 检查快照是否同时包含买卖双边
// 单边快照不参与行情方向分类，但仍可被深度展示使用
func (t *DepthTick) TwoSided() bool {
	return len(t.Bids) > 0 && len(t.Offers) > 0
}

// ArrivedAt 获取到达时间的 time.Time 表示
func (t *DepthTick) ArrivedAt() time.Time {
	return time.Unix(0, t.ArrivedAtUnixNs)
}

// Clone 创建 DepthTick 的深拷贝
// 用于向 UI 消费者提供快照，避免读到写入中的数据
func (t *DepthTick) Clone() *DepthTick {
	clone := *t
	if t.Bids != nil {
		clone.Bids = make([]Level, len(t.Bids))
		copy(clone.Bids, t.Bids)
	}
	if t.Offers != nil {
		clone.Offers = make([]Level, len(t.Offers))
		copy(clone.Offers, t.Offers)
	}
	return &clone
}

// Quote 归一化行情记录
// 每个处理批次内每个交易对至多产出一条，数值字段用于比较与计算，
// Spread 为展示用字符串（固定 5 位小数），仅在产出时格式化。
type Quote struct {
	// Symbol 交易对
	Symbol string `json:"symbol"`
	// TsUnixNs 产出时间戳（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// BidPrice 最优买价
	BidPrice float64 `json:"bid_price"`
	// AskPrice 最优卖价
	AskPrice float64 `json:"ask_price"`
	// MidPrice 中间价: (BidPrice + AskPrice) / 2
	MidPrice float64 `json:"mid_price"`
	// Spread 买卖价差展示字符串，固定 5 位小数
	Spread string `json:"spread"`
	// PriceChange 中间价变动方向
	PriceChange PriceChange `json:"price_change"`
	// BidPriceChange 最优买价变动方向
	BidPriceChange PriceChange `json:"bid_price_change"`
	// AskPriceChange 最优卖价变动方向
	AskPriceChange PriceChange `json:"ask_price_change"`
}
