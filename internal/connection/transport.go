// Package connection 传输层抽象与 WebSocket 实现。
// Manager 只依赖 Transport/Conn 接口，便于测试时注入假传输。
package connection

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trading-terminal-core/internal/config"
)

// Conn 一条已建立的双向连接
type Conn interface {
	// ReadMessage 阻塞读取一帧，连接失效时返回错误
	ReadMessage() ([]byte, error)
	// WriteMessage 发送一帧；调用方负责串行化（单写者）
	WriteMessage(data []byte) error
	// Ping 发送协议层心跳
	Ping(deadline time.Time) error
	// Close 关闭连接
	Close() error
}

// Transport 负责建立连接
type Transport interface {
	// Dial 建立一条到 endpoint 的连接
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WSTransport 基于 gorilla/websocket 的传输实现
type WSTransport struct {
	// handshakeTimeout 握手超时
	handshakeTimeout time.Duration
	// readTimeout 读取超时，pong 到达时重置
	readTimeout time.Duration
}

// NewWSTransport 创建 WebSocket 传输
// 参数 cfg: 网关连接配置
func NewWSTransport(cfg *config.ServerConfig) *WSTransport {
	return &WSTransport{
		handshakeTimeout: time.Duration(cfg.HandshakeTimeoutMs) * time.Millisecond,
		readTimeout:      time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
	}
}

// Dial 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
// 参数 endpoint: WebSocket 地址
func (t *WSTransport) Dial(ctx context.Context, endpoint string) (Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "trading-terminal-core/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: t.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("建立 WebSocket 连接失败: %w", err)
	}

	if t.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		})
	}

	return &wsConn{conn: conn, readTimeout: t.readTimeout}, nil
}

// wsConn gorilla/websocket 连接包装
type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// ReadMessage 读取一帧并刷新读取超时
func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return data, nil
}

// WriteMessage 发送一帧文本消息
func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping 发送协议层 ping 控制帧
func (c *wsConn) Ping(deadline time.Time) error {
	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
}

// Close 关闭底层连接
func (c *wsConn) Close() error {
	return c.conn.Close()
}
