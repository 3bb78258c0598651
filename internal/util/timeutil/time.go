// Package timeutil 提供时间戳工具函数。
// 行情与订单事件统一使用 Unix 纳秒时间戳记录。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 使用单调时钟 + 启动时 Unix 时间组合，系统时间跳变（NTP/手动调整）
// 不会影响事件间隔的单调性。
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前时间的毫秒时间戳
// 返回: 当前时间的 Unix 毫秒时间戳
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// NanoToTime 将纳秒时间戳转换为 time.Time
// 参数 ns: 纳秒时间戳
func NanoToTime(ns int64) time.Time {
	return time.Unix(0, ns)
}

// SinceNano 计算从指定纳秒时间戳到现在的时间差
// 参数 startNs: 开始时间（纳秒）
func SinceNano(startNs int64) time.Duration {
	return time.Duration(NowNano() - startNs)
}
