// Package wire 实现信封消息的编解码。
// 已知协议不规范点：部分消息的 obj 字段本身是一段 JSON 编码后的字符串，
// 需要第二次解析。解码采取防御策略：仅当第一层值是字符串且内容看起来
// 是结构化 JSON（以 { 或 [ 开头）时才做第二次解析，绝不假定总是双重编码。
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"trading-terminal-core/internal/core/model"
	"trading-terminal-core/internal/util/fastparse"
	"trading-terminal-core/internal/util/timeutil"
)

// Encode 编码一条信封消息
// 参数 subject: 消息类型标识
// 参数 token: 会话令牌，空串则不携带
// 参数 payload: 负载对象，nil 则不携带 obj
// 返回: 序列化后的字节和可能的错误
func Encode(subject, token string, payload any) ([]byte, error) {
	env := Envelope{
		Subject: subject,
		Token:   token,
	}

	if payload != nil {
		obj, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化 %s 负载失败: %w", subject, err)
		}
		env.Obj = obj
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("序列化 %s 信封失败: %w", subject, err)
	}
	return data, nil
}

// Decode 解码一条信封消息
// 参数 data: 原始消息字节
// 返回: 信封对象（obj 保持延迟解析）和可能的错误
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析信封失败: %w", err)
	}
	if env.Subject == "" {
		return nil, fmt.Errorf("信封缺少 subject 字段")
	}
	return &env, nil
}

// Payload 解析信封负载到目标对象
// 处理双重编码：obj 为字符串且去除空白后以 { 或 [ 开头时，
// 先解出字符串再对其内容做第二次解析。
// 参数 env: 信封对象
// 参数 v: 负载目标对象指针
func Payload(env *Envelope, v any) error {
	if len(env.Obj) == 0 {
		return fmt.Errorf("%s 信封缺少 obj 负载", env.Subject)
	}

	raw := env.Obj
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("解析 %s 字符串负载失败: %w", env.Subject, err)
		}
		trimmed := strings.TrimSpace(inner)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			raw = []byte(trimmed)
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("解析 %s 负载失败: %w", env.Subject, err)
	}
	return nil
}

// DecodeMarketData 解析行情推送信封为深度快照列表
// 负载可能是单个 DepthBook 对象，也可能是对象数组（同一批次多个交易对），
// 两种形态都接受。
// 参数 env: subject 为 marketData 的信封
// 返回: 深度快照列表（到达时间取当前时刻）
func DecodeMarketData(env *Envelope) ([]*model.DepthTick, error) {
	arrivedAt := timeutil.NowNano()

	var books []DepthBook
	if err := Payload(env, &books); err != nil {
		// 回退：尝试按单对象解析
		var single DepthBook
		if err2 := Payload(env, &single); err2 != nil {
			return nil, fmt.Errorf("解析行情推送失败: %w", err)
		}
		books = []DepthBook{single}
	}

	ticks := make([]*model.DepthTick, 0, len(books))
	for i := range books {
		tick, err := bookToTick(&books[i], arrivedAt)
		if err != nil {
			return nil, err
		}
		if tick != nil {
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

// bookToTick 将线上深度格式转换为领域快照
// 参数 b: 线上深度对象
// 参数 arrivedAt: 到达时间（纳秒）
// 返回: 深度快照；symbol 为空时忽略返回 nil
func bookToTick(b *DepthBook, arrivedAt int64) (*model.DepthTick, error) {
	if b.Symbol == "" {
		return nil, nil
	}

	bids, err := parseLevels(b.Symbol, b.Bids)
	if err != nil {
		return nil, err
	}
	offers, err := parseLevels(b.Symbol, b.Offers)
	if err != nil {
		return nil, err
	}

	return &model.DepthTick{
		Symbol:          b.Symbol,
		Bids:            bids,
		Offers:          offers,
		ArrivedAtUnixNs: arrivedAt,
	}, nil
}

// parseLevels 解析档位列表
// 价格无法解析视为协议错误；数量解析失败按 0 处理
func parseLevels(symbol string, raw []PriceLevel) ([]model.Level, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]model.Level, 0, len(raw))
	for _, l := range raw {
		px, err := fastparse.ParseFloat(l.P)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 档位价格 %q 失败: %w", symbol, l.P, err)
		}
		levels = append(levels, model.Level{
			Price: px,
			Qty:   fastparse.MustParseFloat(l.Q),
		})
	}
	return levels, nil
}
