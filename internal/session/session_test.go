// Package session 认证会话测试
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"trading-terminal-core/internal/wire"
)

// fakeSender 测试用发送端口
// respond 非 nil 时在 Send 内同步回调，模拟服务端即时响应
type fakeSender struct {
	mu sync.Mutex
	// frames 已发送的帧
	frames [][]byte
	// sendErr 发送时返回的错误
	sendErr error
	// respond 发送后的回调
	respond func(frame []byte)
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		defer f.mu.Unlock()
		return f.sendErr
	}
	f.frames = append(f.frames, data)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		respond(data)
	}
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// respondWith 构造自动回复 logonResponse 的回调
func respondWith(s **Session, resp wire.LogonResponse) func([]byte) {
	return func(frame []byte) {
		env, err := wire.Decode(frame)
		if err != nil || env.Subject != wire.SubjectLogon {
			return
		}
		data, _ := wire.Encode(wire.SubjectLogonResponse, "", resp)
		respEnv, _ := wire.Decode(data)
		(*s).HandleLogonResponse(respEnv)
	}
}

// waitStoredToken 轮询等待后台持久化完成
func waitStoredToken(t *testing.T, store TokenStore, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		token, err := store.Load()
		if err == nil && token == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	token, _ := store.Load()
	t.Fatalf("持久化令牌 = %q, want %q", token, want)
}

// TestSession_LoginSuccess 测试登录成功
func TestSession_LoginSuccess(t *testing.T) {
	store := NewMemoryStore()
	sender := &fakeSender{}
	var sess *Session
	sender.respond = respondWith(&sess, wire.LogonResponse{Ok: true, Token: "tok-123"})
	sess = NewSession(store, sender, 1000, zap.NewNop())

	ok, err := sess.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login 失败: %v", err)
	}
	if !ok {
		t.Fatal("Login 返回 false, want true")
	}
	if !sess.Authenticated() {
		t.Error("登录成功后应处于认证状态")
	}
	if sess.Token() != "tok-123" {
		t.Errorf("Token = %q, want tok-123", sess.Token())
	}

	// 令牌应被后台持久化
	waitStoredToken(t, store, "tok-123")

	// 登录请求不应携带令牌
	env, err := wire.Decode(sender.frames[0])
	if err != nil {
		t.Fatalf("解析登录帧失败: %v", err)
	}
	if env.Token != "" {
		t.Errorf("登录请求携带了令牌: %q", env.Token)
	}
	var req wire.LogonRequest
	if err := wire.Payload(env, &req); err != nil {
		t.Fatalf("解析登录负载失败: %v", err)
	}
	if req.Account != "alice" || req.Password != "secret" {
		t.Errorf("登录负载不符: %+v", req)
	}
}

// TestSession_LoginFailure 测试登录失败的原因透传
func TestSession_LoginFailure(t *testing.T) {
	t.Run("服务端原文透传", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save("stale-token")
		sender := &fakeSender{}
		var sess *Session
		sender.respond = respondWith(&sess, wire.LogonResponse{Ok: false, Message: "账户或密码错误"})
		sess = NewSession(store, sender, 1000, zap.NewNop())

		ok, err := sess.Login(context.Background(), "alice", "wrong")
		if ok {
			t.Fatal("Login 返回 true, want false")
		}
		if err == nil || err.Error() != "账户或密码错误" {
			t.Errorf("错误信息 = %v, want 服务端原文", err)
		}
		if sess.Authenticated() || sess.Token() != "" {
			t.Error("登录失败后状态应被清除")
		}
		// 旧令牌应被后台清除
		waitStoredToken(t, store, "")
	})

	t.Run("无原因时使用兜底提示", func(t *testing.T) {
		store := NewMemoryStore()
		sender := &fakeSender{}
		var sess *Session
		sender.respond = respondWith(&sess, wire.LogonResponse{Ok: false})
		sess = NewSession(store, sender, 1000, zap.NewNop())

		_, err := sess.Login(context.Background(), "alice", "wrong")
		if err == nil || err.Error() != loginFallbackMessage {
			t.Errorf("错误信息 = %v, want 兜底提示", err)
		}
	})
}

// TestSession_LoginInProgress 测试并发登录快速失败
func TestSession_LoginInProgress(t *testing.T) {
	store := NewMemoryStore()
	sender := &fakeSender{} // 不回复，第一个登录保持在途
	sess := NewSession(store, sender, 5000, zap.NewNop())

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = sess.Login(context.Background(), "alice", "secret")
	}()

	// 等待第一个登录请求实际发出
	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sender.sentCount() == 0 {
		t.Fatal("第一个登录请求未发出")
	}

	_, err := sess.Login(context.Background(), "bob", "other")
	if !errors.Is(err, ErrLoginInProgress) {
		t.Fatalf("err = %v, want ErrLoginInProgress", err)
	}

	// 放行第一个登录
	data, _ := wire.Encode(wire.SubjectLogonResponse, "", wire.LogonResponse{Ok: true, Token: "t"})
	env, _ := wire.Decode(data)
	sess.HandleLogonResponse(env)
	<-firstDone
}

// TestSession_LoginTimeout 测试登录超时
func TestSession_LoginTimeout(t *testing.T) {
	sess := NewSession(NewMemoryStore(), &fakeSender{}, 20, zap.NewNop())

	_, err := sess.Login(context.Background(), "alice", "secret")
	if err == nil || !strings.Contains(err.Error(), "超时") {
		t.Fatalf("err = %v, want 超时错误", err)
	}

	// 超时后在途登录应被清理，可以立即再次登录
	_, err = sess.Login(context.Background(), "alice", "secret")
	if errors.Is(err, ErrLoginInProgress) {
		t.Fatal("超时后仍报在途登录")
	}
}

// TestSession_UnmatchedResponse 测试无在途登录时的响应丢弃
func TestSession_UnmatchedResponse(t *testing.T) {
	sess := NewSession(NewMemoryStore(), &fakeSender{}, 1000, zap.NewNop())

	data, _ := wire.Encode(wire.SubjectLogonResponse, "", wire.LogonResponse{Ok: true, Token: "t"})
	env, _ := wire.Decode(data)
	sess.HandleLogonResponse(env) // 不应 panic

	if sess.Authenticated() {
		t.Error("未匹配的响应不应改变认证状态")
	}
}

// TestSession_Logout 测试登出清除状态
func TestSession_Logout(t *testing.T) {
	store := NewMemoryStore()
	sender := &fakeSender{}
	var sess *Session
	sender.respond = respondWith(&sess, wire.LogonResponse{Ok: true, Token: "tok-1"})
	sess = NewSession(store, sender, 1000, zap.NewNop())

	if _, err := sess.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login 失败: %v", err)
	}
	waitStoredToken(t, store, "tok-1")

	sent := sender.sentCount()
	sess.Logout()

	if sess.Authenticated() || sess.Token() != "" {
		t.Error("登出后状态应被清除")
	}
	waitStoredToken(t, store, "")
	if sender.sentCount() != sent {
		t.Error("登出不应发送任何网络消息")
	}
}

// TestSession_DisconnectInvalidatesAuth 测试断开使认证失效但保留令牌
func TestSession_DisconnectInvalidatesAuth(t *testing.T) {
	store := NewMemoryStore()
	sender := &fakeSender{}
	var sess *Session
	sender.respond = respondWith(&sess, wire.LogonResponse{Ok: true, Token: "tok-1"})
	sess = NewSession(store, sender, 1000, zap.NewNop())

	if _, err := sess.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login 失败: %v", err)
	}

	sess.HandleDisconnect()

	if sess.Authenticated() {
		t.Error("断开后认证状态应失效")
	}
	if sess.Token() != "tok-1" {
		t.Errorf("断开后令牌应保留, got %q", sess.Token())
	}

	sess.HandleReconnect() // 仅记录日志，不应改变状态
	if sess.Authenticated() {
		t.Error("重连本身不应恢复认证状态")
	}
}

// TestSession_RestoresPersistedToken 测试启动时恢复持久化令牌
func TestSession_RestoresPersistedToken(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save("persisted-token")

	sess := NewSession(store, &fakeSender{}, 1000, zap.NewNop())

	if sess.Token() != "persisted-token" {
		t.Errorf("Token = %q, want persisted-token", sess.Token())
	}
	if sess.Authenticated() {
		t.Error("恢复令牌不应恢复认证状态")
	}
}
