// Package session 管理终端的认证会话状态。
// 登录通过信封交换完成：发送 logon 请求，等待同一连接上的下一条
// logonResponse（假定同一时刻只有一个在途登录，第二个并发登录立即失败）。
// 令牌经 TokenStore 端口持久化，进程重启后恢复到内存，但 authenticated
// 始终从 false 开始——协议未提供令牌恢复消息，重连后必须重新登录。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trading-terminal-core/internal/wire"
)

var (
	// ErrLoginInProgress 已有登录请求在途
	ErrLoginInProgress = errors.New("已有登录请求进行中")
	// ErrNotAuthenticated 未登录或登录已失效
	ErrNotAuthenticated = errors.New("未登录或登录已失效")
)

// loginFallbackMessage 服务端未返回失败原因时的兜底提示
const loginFallbackMessage = "登录失败：服务端未返回原因"

// Sender 出站发送端口
// 由连接管理器实现：Open 时直接发送，否则入队
type Sender interface {
	Send(data []byte) error
}

// Session 认证会话
// token/authenticated 仅由登录成功/失败/登出修改；
// 传输断开时 authenticated 置回 false（服务端会话随连接消失）。
type Session struct {
	// store 令牌持久化端口
	store TokenStore
	// sender 出站发送端口
	sender Sender
	// logger 日志记录器
	logger *zap.Logger
	// loginTimeout 登录响应等待超时
	loginTimeout time.Duration

	// mu 状态锁
	mu sync.RWMutex
	// token 会话令牌
	token string
	// authenticated 是否已认证
	authenticated bool
	// pending 在途登录的响应通道，nil 表示空闲
	pending chan *wire.LogonResponse
}

// NewSession 创建认证会话
// 启动时从存储恢复令牌（仅恢复令牌本身，不恢复认证状态）。
// 参数 store: 令牌持久化端口
// 参数 sender: 出站发送端口
// 参数 loginTimeoutMs: 登录响应等待超时（毫秒）
// 参数 logger: 日志记录器
func NewSession(store TokenStore, sender Sender, loginTimeoutMs int, logger *zap.Logger) *Session {
	s := &Session{
		store:        store,
		sender:       sender,
		logger:       logger.Named("session"),
		loginTimeout: time.Duration(loginTimeoutMs) * time.Millisecond,
	}

	token, err := store.Load()
	if err != nil {
		s.logger.Warn("恢复持久化令牌失败", zap.Error(err))
	} else if token != "" {
		s.token = token
		s.logger.Info("已恢复持久化令牌，等待重新登录验证")
	}

	return s
}

// Login 发起登录
// 阻塞等待 logonResponse 或超时。同一时刻仅允许一个在途登录，
// 重复调用立即返回 ErrLoginInProgress。
// 参数 ctx: 上下文
// 参数 account: 账户名
// 参数 password: 密码
// 返回: 登录是否成功；失败时错误携带服务端原文或兜底提示
func (s *Session) Login(ctx context.Context, account, password string) (bool, error) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return false, ErrLoginInProgress
	}
	pending := make(chan *wire.LogonResponse, 1)
	s.pending = pending
	s.mu.Unlock()

	clearPending := func() {
		s.mu.Lock()
		if s.pending == pending {
			s.pending = nil
		}
		s.mu.Unlock()
	}

	frame, err := wire.Encode(wire.SubjectLogon, "", wire.LogonRequest{
		Account:  account,
		Password: password,
	})
	if err != nil {
		clearPending()
		return false, err
	}
	if err := s.sender.Send(frame); err != nil {
		clearPending()
		return false, fmt.Errorf("发送登录请求失败: %w", err)
	}

	select {
	case <-ctx.Done():
		clearPending()
		return false, fmt.Errorf("登录被取消: %w", ctx.Err())
	case <-time.After(s.loginTimeout):
		clearPending()
		return false, fmt.Errorf("登录超时（%v 内未收到响应）", s.loginTimeout)
	case resp := <-pending:
		return s.applyLogonResponse(resp)
	}
}

// applyLogonResponse 应用登录结果
func (s *Session) applyLogonResponse(resp *wire.LogonResponse) (bool, error) {
	if resp.Ok {
		s.mu.Lock()
		s.token = resp.Token
		s.authenticated = true
		s.mu.Unlock()

		// 持久化交给后台，不阻塞调用方
		go func(token string) {
			if err := s.store.Save(token); err != nil {
				s.logger.Warn("持久化令牌失败", zap.Error(err))
			}
		}(resp.Token)

		s.logger.Info("登录成功")
		return true, nil
	}

	// 失败：清除可能过期的旧令牌
	s.mu.Lock()
	s.token = ""
	s.authenticated = false
	s.mu.Unlock()

	go func() {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("清除持久化令牌失败", zap.Error(err))
		}
	}()

	msg := resp.Message
	if msg == "" {
		msg = loginFallbackMessage
	}
	s.logger.Warn("登录失败", zap.String("reason", msg))
	return false, errors.New(msg)
}

// HandleLogonResponse 处理登录响应信封
// 由入站分发循环调用；无在途登录时仅告警并丢弃
// 参数 env: subject 为 logonResponse 的信封
func (s *Session) HandleLogonResponse(env *wire.Envelope) {
	var resp wire.LogonResponse
	if err := wire.Payload(env, &resp); err != nil {
		s.logger.Warn("解析登录响应失败", zap.Error(err))
		return
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending == nil {
		s.logger.Warn("收到未匹配的登录响应，已丢弃")
		return
	}
	pending <- &resp
}

// Logout 登出
// 清除内存与持久化令牌；不发送任何网络消息（客户端对称操作）
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.authenticated = false
	s.mu.Unlock()

	go func() {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("清除持久化令牌失败", zap.Error(err))
		}
	}()

	s.logger.Info("已登出")
}

// HandleDisconnect 处理传输断开
// 服务端会话随连接消失，认证状态置回 false；令牌保留待重新登录
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	wasAuthenticated := s.authenticated
	s.authenticated = false
	s.mu.Unlock()

	if wasAuthenticated {
		s.logger.Warn("连接断开，认证状态已失效")
	}
}

// HandleReconnect 处理传输重连
// 存在持久化令牌但未认证时仅记录日志：协议未定义令牌恢复消息，
// 不能假定静默恢复是安全的，必须由上层重新走登录流程
func (s *Session) HandleReconnect() {
	s.mu.RLock()
	hasToken := s.token != ""
	authenticated := s.authenticated
	s.mu.RUnlock()

	if hasToken && !authenticated {
		s.logger.Info("重连完成，存在持久化令牌但协议无恢复消息，需要重新登录")
	}
}

// Authenticated 获取认证状态
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Token 获取当前令牌
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
