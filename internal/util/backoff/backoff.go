// Package backoff 实现重连退避延迟计算。
// 终端与行情/交易网关之间只有一条连接，断线后按指数退避重试，
// 避免在服务端故障期间形成重连风暴。重试没有次数上限。
package backoff

import (
	"math/rand"
	"time"
)

// maxShift 指数位移上限，防止 attempt 过大时位移溢出
const maxShift = 30

// Backoff 指数退避计算器
// 每次 Next() 返回下一次重连前的等待时间，连接成功后调用 Reset()。
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// jitter 抖动比例（0-1），0.2 表示 ±20%
	jitter float64
	// attempt 当前连续失败次数
	attempt int
}

// New 创建退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间
// 参数 jitter: 抖动比例（0-1）
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		base:   base,
		max:    max,
		jitter: jitter,
	}
}

// NewDefault 创建默认配置的退避计算器
// 基础间隔 1s，最大间隔 30s，抖动 ±20%
func NewDefault() *Backoff {
	return New(time.Second, 30*time.Second, 0.2)
}

// Next 获取下次重连前的等待时间
// 计算公式: base * 2^attempt，超过 max 时取 max，再应用 ±jitter 抖动
func (b *Backoff) Next() time.Duration {
	shift := b.attempt
	if shift > maxShift {
		shift = maxShift
	}
	delay := b.base * time.Duration(int64(1)<<shift)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}

	if b.jitter > 0 {
		// 抖动范围: [delay * (1 - jitter), delay * (1 + jitter)]
		factor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}

	b.attempt++
	return delay
}

// Reset 重置退避计算器
// 连接建立成功后调用，使下一次断线从基础间隔重新开始
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 获取当前连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
