// Package session 令牌持久化端口定义。
// 具体实现（SQLite、内存）作为可替换的适配器注入 Session。
package session

import (
	"sync"
)

// TokenStore 令牌持久化端口
// 令牌需在进程重启后存活，由外部持久化存储承载
type TokenStore interface {
	// Save 保存令牌
	Save(token string) error
	// Load 读取令牌，不存在时返回空串且无错误
	Load() (string, error)
	// Clear 清除令牌
	Clear() error
}

// MemoryStore 内存令牌存储
// 仅用于测试与无持久化需求的场景
type MemoryStore struct {
	// mu 读写锁
	mu sync.RWMutex
	// token 当前令牌
	token string
}

// NewMemoryStore 创建内存令牌存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save 保存令牌
func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Load 读取令牌
func (s *MemoryStore) Load() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Clear 清除令牌
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
