// Package connection 管理终端与网关之间唯一的一条物理连接。
package connection

// State 连接生命周期状态
// 状态仅由传输层事件驱动迁移：
// Uninstantiated → Connecting → Open → Closing → Closed，
// Closed → Connecting 表示重连。任何传输错误直接吸收为 Closed，
// 不存在非法迁移错误。
type State int32

const (
	// StateUninstantiated 尚未发起过连接
	StateUninstantiated State = iota
	// StateConnecting 连接建立中
	StateConnecting
	// StateOpen 连接已建立，可直接发送
	StateOpen
	// StateClosing 主动关闭中
	StateClosing
	// StateClosed 连接已断开（可重连）
	StateClosed
)

// String 返回状态的可读名称
func (s State) String() string {
	switch s {
	case StateUninstantiated:
		return "uninstantiated"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
