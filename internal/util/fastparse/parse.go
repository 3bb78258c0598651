// Package fastparse 提供行情热路径使用的字符串转换函数。
// 网关推送的深度消息中价格与数量为字符串字段，比较必须使用数值类型，
// 展示用的字符串仅在行情归一化输出时生成。
package fastparse

import (
	"strconv"
)

// ParseFloat 解析浮点数字符串
// 参数 s: 待解析的字符串，如 "1.10500"
// 返回: 解析后的浮点数和可能的错误
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// MustParseFloat 解析浮点数，失败时返回 0
// 仅用于已验证过格式的字段
// 参数 s: 待解析的字符串
func MustParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatFloat 格式化浮点数为字符串
// 参数 f: 待格式化的浮点数
// 参数 prec: 小数位数，-1 表示最短表示
// 返回: 格式化后的字符串，如 FormatFloat(0.0002, 5) = "0.00020"
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
