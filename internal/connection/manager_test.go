// Package connection 连接管理器测试
package connection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"trading-terminal-core/internal/config"
)

// fakeConn 测试用连接
type fakeConn struct {
	mu sync.Mutex
	// written 已写入的帧
	written [][]byte
	// writeErr 写入时返回的错误
	writeErr error
	// readCh 读取阻塞通道，关闭后 ReadMessage 返回错误
	readCh chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{readCh: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.readCh
	if !ok {
		return nil, fmt.Errorf("连接已断开")
	}
	return data, nil
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Ping(deadline time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, f := range c.written {
		out[i] = string(f)
	}
	return out
}

// fakeTransport 测试用传输层
type fakeTransport struct {
	mu sync.Mutex
	// conns 依次返回的连接
	conns []*fakeConn
	// dialErr 拨号错误
	dialErr   error
	dialCount int
}

func (t *fakeTransport) Dial(ctx context.Context, endpoint string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialCount++
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	if len(t.conns) == 0 {
		return nil, fmt.Errorf("没有可用的测试连接")
	}
	conn := t.conns[0]
	t.conns = t.conns[1:]
	return conn, nil
}

// newTestManager 创建测试用管理器
func newTestManager(t *testing.T, transport Transport, maxPending int) *Manager {
	t.Helper()
	cfg := &config.ServerConfig{
		URL:              "wss://gateway.test/ws",
		ReconnectBaseMs:  1,
		ReconnectMaxMs:   10,
		ReconnectJitter:  0,
		MaxPendingFrames: maxPending,
		PingIntervalMs:   60000,
	}
	return NewManager(cfg, transport, zap.NewNop())
}

// stateRecorder 记录状态变更序列
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// TestManager_ConnectLifecycle 测试连接生命周期状态迁移
func TestManager_ConnectLifecycle(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	if m.State() != StateUninstantiated {
		t.Fatalf("初始状态 = %v, want Uninstantiated", m.State())
	}

	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}
	if m.State() != StateOpen {
		t.Fatalf("连接后状态 = %v, want Open", m.State())
	}

	got := rec.snapshot()
	want := []State{StateConnecting, StateOpen}
	if len(got) != len(want) {
		t.Fatalf("状态序列 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("状态序列 = %v, want %v", got, want)
		}
	}
}

// TestManager_Connect_Idempotent 测试 Open 状态下 Connect 为 no-op
func TestManager_Connect_Idempotent(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("重复 Connect 失败: %v", err)
	}
	if transport.dialCount != 1 {
		t.Errorf("dialCount = %d, want 1（重复 Connect 不应重新拨号）", transport.dialCount)
	}
}

// TestManager_DialFailure 测试拨号失败迁移到 Closed
func TestManager_DialFailure(t *testing.T) {
	transport := &fakeTransport{dialErr: fmt.Errorf("网络不可达")}
	m := newTestManager(t, transport, 10)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("期望连接失败，实际成功")
	}
	if m.State() != StateClosed {
		t.Errorf("失败后状态 = %v, want Closed", m.State())
	}
}

// TestManager_Send_QueueAndReplay 测试断线入队与重连后 FIFO 重放
func TestManager_Send_QueueAndReplay(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	// 未连接时发送不报错，帧排队
	for _, frame := range []string{"a", "b", "c"} {
		if err := m.Send([]byte(frame)); err != nil {
			t.Fatalf("断线发送失败: %v", err)
		}
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	got := conn.frames()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("重放帧 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("重放顺序不符: %v, want %v", got, want)
		}
	}

	// Open 状态直接写入
	if err := m.Send([]byte("d")); err != nil {
		t.Fatalf("在线发送失败: %v", err)
	}
	if frames := conn.frames(); frames[len(frames)-1] != "d" {
		t.Errorf("在线发送的帧未写入: %v", frames)
	}
}

// TestManager_Send_DropOldest 测试队列溢出丢弃最旧帧
func TestManager_Send_DropOldest(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 3)

	for i := 0; i < 5; i++ {
		_ = m.Send([]byte(fmt.Sprintf("f%d", i)))
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	got := conn.frames()
	want := []string{"f2", "f3", "f4"}
	if len(got) != len(want) {
		t.Fatalf("重放帧 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("丢弃策略不符: %v, want %v", got, want)
		}
	}

	if dropped := m.Metrics().DroppedFrames; dropped != 2 {
		t.Errorf("DroppedFrames = %d, want 2", dropped)
	}
}

// TestManager_Send_WriteFailure 测试写入失败吸收为 Closed 且帧重新入队
func TestManager_Send_WriteFailure(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	conn.mu.Lock()
	conn.writeErr = fmt.Errorf("管道破裂")
	conn.mu.Unlock()

	if err := m.Send([]byte("x")); err == nil {
		t.Fatal("期望发送失败，实际成功")
	}
	if m.State() != StateClosed {
		t.Errorf("写入失败后状态 = %v, want Closed", m.State())
	}

	// 失败帧应在下次重连后重放
	conn2 := newFakeConn()
	transport.mu.Lock()
	transport.conns = []*fakeConn{conn2}
	transport.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("重连失败: %v", err)
	}
	got := conn2.frames()
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("失败帧未重放: %v", got)
	}
}

// TestManager_CloseThenSend 测试主动关闭后发送仍然入队
func TestManager_CloseThenSend(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close 失败: %v", err)
	}
	if m.State() != StateClosed {
		t.Fatalf("关闭后状态 = %v, want Closed", m.State())
	}

	if err := m.Send([]byte("late")); err != nil {
		t.Fatalf("关闭后发送应入队而非报错: %v", err)
	}

	// Close 之后允许再次 Connect，队列照常重放
	conn2 := newFakeConn()
	transport.mu.Lock()
	transport.conns = []*fakeConn{conn2}
	transport.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("重新 Connect 失败: %v", err)
	}
	got := conn2.frames()
	if len(got) != 1 || got[0] != "late" {
		t.Errorf("关闭期间的帧未重放: %v", got)
	}
}

// TestManager_ReadLoop_DispatchesMessages 测试读取循环分发入站消息
func TestManager_ReadLoop_DispatchesMessages(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn}}
	m := newTestManager(t, transport, 10)

	received := make(chan string, 4)
	m.OnMessage(func(data []byte) {
		received <- string(data)
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	conn.readCh <- []byte("msg1")
	conn.readCh <- []byte("msg2")

	for _, want := range []string{"msg1", "msg2"} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("收到 %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("等待消息 %q 超时", want)
		}
	}

	// Connect 之后启动的读取循环直接消费现有连接，不触发退避重拨
	transport.mu.Lock()
	dials := transport.dialCount
	transport.mu.Unlock()
	if dials != 1 {
		t.Errorf("dialCount = %d, want 1", dials)
	}
	if got := m.Metrics().ReconnectCount; got != 0 {
		t.Errorf("ReconnectCount = %d, want 0", got)
	}
}

// TestManager_ReadFailure_Reconnects 测试读取失败后自动重连
func TestManager_ReadFailure_Reconnects(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{conn1, conn2}}
	m := newTestManager(t, transport, 10)

	received := make(chan string, 4)
	m.OnMessage(func(data []byte) {
		received <- string(data)
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// 断开第一条连接，读取循环应按退避重连到第二条
	close(conn1.readCh)

	conn2.readCh <- []byte("after-reconnect")
	select {
	case got := <-received:
		if got != "after-reconnect" {
			t.Fatalf("收到 %q, want after-reconnect", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("等待重连后消息超时")
	}

	if m.Metrics().ReconnectCount != 1 {
		t.Errorf("ReconnectCount = %d, want 1", m.Metrics().ReconnectCount)
	}
}
