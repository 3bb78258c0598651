// Package quote 最新深度快照缓存。
// 由入站分发循环单 goroutine 写入；UI 消费者通过深拷贝快照读取，
// 不会观察到写入中的数据。
package quote

import (
	"sync"

	"trading-terminal-core/internal/core/model"
)

// Store 最新深度快照缓存
// 单边快照同样缓存（供深度展示使用），仅行情方向分类会忽略它们。
type Store struct {
	// mu 读写锁
	mu sync.RWMutex
	// books 按交易对缓存最新 DepthTick
	books map[string]*model.DepthTick
}

// NewStore 创建深度快照缓存
func NewStore() *Store {
	return &Store{
		books: make(map[string]*model.DepthTick),
	}
}

// Update 更新缓存
// 最新快照整体替换旧值（快照语义，不做增量合并）
// 参数 tick: 深度快照
func (s *Store) Update(tick *model.DepthTick) {
	if tick == nil || tick.Symbol == "" {
		return
	}
	s.mu.Lock()
	s.books[tick.Symbol] = tick
	s.mu.Unlock()
}

// Snapshot 获取指定交易对的最新深度快照
// 返回深拷贝；不存在时返回 nil
// 参数 symbol: 交易对
func (s *Store) Snapshot(symbol string) *model.DepthTick {
	s.mu.RLock()
	tick, ok := s.books[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return tick.Clone()
}

// Symbols 获取当前已缓存的交易对列表
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbols := make([]string, 0, len(s.books))
	for sym := range s.books {
		symbols = append(symbols, sym)
	}
	return symbols
}
