// Package quote 将原始深度快照转换为带方向分类的归一化行情。
// 方向分类依赖每个交易对保留的上一组最优买卖价（memento）：
// 缺少任一边的快照不更新 memento 也不产出行情，但仍写入深度缓存。
// 同一处理批次内的多个交易对合并为一次批量产出，抑制下游刷新频率。
package quote

import (
	"sync"

	"go.uber.org/zap"

	"trading-terminal-core/internal/core/model"
	"trading-terminal-core/internal/util/fastparse"
	"trading-terminal-core/internal/util/timeutil"
)

// spreadPrecision 价差展示的小数位数
const spreadPrecision = 5

// memento 上一组最优买卖价
// 仅用于计算下一次快照的变动方向
type memento struct {
	// bid 上次最优买价
	bid float64
	// ask 上次最优卖价
	ask float64
}

// BatchHandler 行情批量产出处理器
// 每个处理批次至多调用一次，携带该批次内全部产出的行情
type BatchHandler func(quotes []model.Quote)

// Processor 行情处理器
// memento 仅由入站分发循环写入，外部读取走拷贝接口。
type Processor struct {
	// store 最新深度快照缓存
	store *Store
	// logger 日志记录器
	logger *zap.Logger

	// handler 行情批量产出处理器（替换式注册）
	handler BatchHandler
	// handlerMu 处理器锁
	handlerMu sync.RWMutex

	// mu memento 表锁
	mu sync.RWMutex
	// mementos 按交易对保留的上一组最优买卖价
	mementos map[string]memento
}

// NewProcessor 创建行情处理器
// 参数 store: 深度快照缓存
// 参数 logger: 日志记录器
func NewProcessor(store *Store, logger *zap.Logger) *Processor {
	return &Processor{
		store:    store,
		logger:   logger.Named("quote"),
		mementos: make(map[string]memento),
	}
}

// OnBatch 注册行情批量产出处理器
// 替换式注册
func (p *Processor) OnBatch(h BatchHandler) {
	p.handlerMu.Lock()
	p.handler = h
	p.handlerMu.Unlock()
}

// Process 处理一个批次的深度快照
// 算法（每个快照）：
//  1. 快照先写入深度缓存（单边快照同样缓存）
//  2. 缺少最优买价或最优卖价时跳过行情产出，memento 不更新
//  3. 计算 mid=(bid+ask)/2、spread=ask-bid（展示固定 5 位小数）
//  4. 无 memento 时三项方向均为 none（首次观察建立基线）
//  5. 有 memento 时买价、卖价独立三态分类，整体方向按新旧 mid 分类
//  6. 分类后无条件覆盖 memento（即使方向为 none）
//
// 批次内所有产出合并为一次 handler 调用。
// 参数 ticks: 同一处理批次的深度快照列表
func (p *Processor) Process(ticks []*model.DepthTick) {
	if len(ticks) == 0 {
		return
	}

	quotes := make([]model.Quote, 0, len(ticks))
	for _, tick := range ticks {
		if tick == nil || tick.Symbol == "" {
			continue
		}

		p.store.Update(tick)

		bestBid, okBid := tick.BestBid()
		bestOffer, okOffer := tick.BestOffer()
		if !okBid || !okOffer {
			p.logger.Debug("单边深度快照，跳过行情产出",
				zap.String("symbol", tick.Symbol),
				zap.Time("arrived_at", tick.ArrivedAt()))
			continue
		}

		quotes = append(quotes, p.classify(tick.Symbol, bestBid.Price, bestOffer.Price))
	}

	if len(quotes) == 0 {
		return
	}

	p.handlerMu.RLock()
	h := p.handler
	p.handlerMu.RUnlock()
	if h != nil {
		h(quotes)
	}
}

// classify 对单个交易对做方向分类并覆盖 memento
func (p *Processor) classify(symbol string, bid, ask float64) model.Quote {
	mid := (bid + ask) / 2
	spread := ask - bid

	q := model.Quote{
		Symbol:         symbol,
		TsUnixNs:       timeutil.NowNano(),
		BidPrice:       bid,
		AskPrice:       ask,
		MidPrice:       mid,
		Spread:         fastparse.FormatFloat(spread, spreadPrecision),
		PriceChange:    model.ChangeNone,
		BidPriceChange: model.ChangeNone,
		AskPriceChange: model.ChangeNone,
	}

	p.mu.Lock()
	prev, ok := p.mementos[symbol]
	if ok {
		q.BidPriceChange = model.ClassifyChange(bid, prev.bid)
		q.AskPriceChange = model.ClassifyChange(ask, prev.ask)
		prevMid := (prev.bid + prev.ask) / 2
		q.PriceChange = model.ClassifyChange(mid, prevMid)
	}
	p.mementos[symbol] = memento{bid: bid, ask: ask}
	p.mu.Unlock()

	return q
}

// Memento 获取指定交易对的上一组最优买卖价
// 拷贝式读取，供测试与诊断使用
// 参数 symbol: 交易对
// 返回: 上次最优买价、卖价与是否存在
func (p *Processor) Memento(symbol string) (bid, ask float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.mementos[symbol]
	return m.bid, m.ask, ok
}
