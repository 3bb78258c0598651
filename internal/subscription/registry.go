// Package subscription 维护期望订阅集合与服务端活跃订阅的对账。
// 订阅/退订按批次发送（一次请求携带整批增量），活跃集合采取乐观更新：
// 行情推送本身即事实上的确认。服务端订阅不跨连接存活，重连并重新登录后
// 必须对整个活跃集合重发一次订阅请求。
package subscription

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"trading-terminal-core/internal/session"
	"trading-terminal-core/internal/wire"
)

// Registry 订阅注册表
// active 的读-过滤-写在单次持锁内完成，避免并发调用丢失更新。
type Registry struct {
	// session 认证会话（订阅操作的前置校验）
	session *session.Session
	// sender 出站发送端口
	sender session.Sender
	// logger 日志记录器
	logger *zap.Logger
	// depth 订阅的深度档数
	depth int

	// mu 活跃集合锁
	mu sync.Mutex
	// active 活跃订阅集合（乐观维护）
	active map[string]struct{}
}

// NewRegistry 创建订阅注册表
// 参数 sess: 认证会话
// 参数 sender: 出站发送端口
// 参数 depth: 深度档数
// 参数 logger: 日志记录器
func NewRegistry(sess *session.Session, sender session.Sender, depth int, logger *zap.Logger) *Registry {
	return &Registry{
		session: sess,
		sender:  sender,
		logger:  logger.Named("subscription"),
		depth:   depth,
		active:  make(map[string]struct{}),
	}
}

// Subscribe 订阅交易对
// 过滤掉已活跃的交易对，剩余部分合并为一次订阅请求；
// 无新增时不发送任何请求。未认证时告警并返回错误，不产生网络发送。
// 参数 symbols: 期望订阅的交易对列表
func (r *Registry) Subscribe(symbols []string) error {
	if !r.session.Authenticated() {
		r.logger.Warn("未认证状态下的订阅请求被拒绝", zap.Strings("symbols", symbols))
		return session.ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if _, ok := r.active[sym]; ok {
			continue
		}
		fresh = append(fresh, sym)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := r.sendRequest(true, fresh); err != nil {
		return err
	}

	// 乐观更新：行情推送即确认
	for _, sym := range fresh {
		r.active[sym] = struct{}{}
	}
	r.logger.Info("已发送订阅请求", zap.Strings("symbols", fresh))
	return nil
}

// Unsubscribe 退订交易对
// 仅对当前活跃的交易对发送一次退订请求并乐观移除。
// 参数 symbols: 退订的交易对列表
func (r *Registry) Unsubscribe(symbols []string) error {
	if !r.session.Authenticated() {
		r.logger.Warn("未认证状态下的退订请求被拒绝", zap.Strings("symbols", symbols))
		return session.ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stale := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if _, ok := r.active[sym]; ok {
			stale = append(stale, sym)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.sendRequest(false, stale); err != nil {
		return err
	}

	for _, sym := range stale {
		delete(r.active, sym)
	}
	r.logger.Info("已发送退订请求", zap.Strings("symbols", stale))
	return nil
}

// Resubscribe 重连后重发整个活跃集合
// 恰好发送一次订阅请求，内容为完整的活跃集合；集合为空时不发送。
// 须在重新登录成功后调用。
func (r *Registry) Resubscribe() error {
	if !r.session.Authenticated() {
		r.logger.Warn("未认证状态下的重订阅被拒绝")
		return session.ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.active) == 0 {
		return nil
	}

	symbols := r.sortedActiveLocked()
	if err := r.sendRequest(true, symbols); err != nil {
		return err
	}
	r.logger.Info("重连后已重发订阅", zap.Strings("symbols", symbols))
	return nil
}

// ActiveSymbols 获取活跃订阅集合的有序拷贝
// 拷贝式读取：调用方不会读到写入中的集合
func (r *Registry) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedActiveLocked()
}

// sortedActiveLocked 生成活跃集合的有序拷贝（须持锁调用）
func (r *Registry) sortedActiveLocked() []string {
	symbols := make([]string, 0, len(r.active))
	for sym := range r.active {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// sendRequest 构建并发送一次行情订阅请求（须持锁调用）
// 写入失败时连接管理器已把该帧重新入队，重连后照常重放到服务端，
// 因此视作已入队成功返回 nil，避免活跃集合与服务端实际收到的订阅
// 永久脱节。断线本身只通过连接状态变更暴露。
func (r *Registry) sendRequest(subscribe bool, symbols []string) error {
	frame, err := wire.Encode(wire.SubjectMDRequest, r.session.Token(), wire.MDRequest{
		Subscribe:   subscribe,
		MarketDepth: r.depth,
		Symbols:     symbols,
	})
	if err != nil {
		return err
	}
	if err := r.sender.Send(frame); err != nil {
		r.logger.Warn("订阅请求发送失败，帧已入队等待重连重放",
			zap.Error(err), zap.Bool("subscribe", subscribe), zap.Strings("symbols", symbols))
	}
	return nil
}
