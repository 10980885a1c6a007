package backtest

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"bitbacktest/config"
	"bitbacktest/market"
	"bitbacktest/strategy"
)

// Backtester 单次回测的执行器
// 按固定顺序驱动每个 tick：取价 -> 产生信号 -> 准入检查 -> 执行 -> 检查挂单 -> 记录
// 顺序不可调整：指标状态、挂单触发和估值都是 tick 同步的
type Backtester struct {
	strat   strategy.Strategy
	mkt     *market.BacktestMarket
	limiter *strategy.TradeLimiter

	// HoldParams 每个 tick 结束后从动态状态采样的键（如布林带的 upper_band）
	HoldParams []string

	holdSeries map[string][]float64
	log        *logrus.Entry
}

// New 创建回测执行器
func New(strat strategy.Strategy, mkt *market.BacktestMarket, settings *config.Settings) *Backtester {
	return &Backtester{
		strat:   strat,
		mkt:     mkt,
		limiter: strategy.NewTradeLimiter(settings, mkt),
		log:     logrus.WithField("strategy", strat.Name()),
	}
}

// ResetAll 回测前的原子重置（静态参数 + 动态状态 + 组合 + 历史）
func (b *Backtester) ResetAll(p strategy.Params, startCash, startCoin float64) error {
	return strategy.ResetAll(b.strat, p, startCash, startCoin)
}

// Run 回放整条价格序列，返回最终组合快照
func (b *Backtester) Run() (market.Portfolio, error) {
	return b.RunN(b.mkt.Len())
}

// RunN 回放前 ticks 个价格点
// 请求长度超过价格序列时直接报错，不做部分回放
func (b *Backtester) RunN(ticks int) (market.Portfolio, error) {
	if ticks > b.mkt.Len() {
		return market.Portfolio{}, fmt.Errorf("price feed has %d ticks, requested %d: %w",
			b.mkt.Len(), ticks, market.ErrIndexOutOfRange)
	}
	b.holdSeries = make(map[string][]float64, len(b.HoldParams))

	for i := 0; i < ticks; i++ {
		b.mkt.SetIndex(i)
		price, err := b.mkt.GetCurrentPrice()
		if err != nil {
			return market.Portfolio{}, fmt.Errorf("tick %d: %w", i, err)
		}
		sig := b.strat.GenerateSignal(price)
		if b.limiter.Allow() {
			b.strat.ExecuteTrade(price, sig)
		}
		b.mkt.CheckPendingOrders()
		b.mkt.RecordTick(price)

		if len(b.HoldParams) > 0 {
			b.captureHoldParams()
		}
	}
	return b.mkt.Portfolio(), nil
}

// History 最近一次回测的历史记录
func (b *Backtester) History() *market.History {
	return b.mkt.History()
}

// HoldSeries 最近一次回测采样到的动态状态序列
func (b *Backtester) HoldSeries() map[string][]float64 {
	return b.holdSeries
}

func (b *Backtester) captureHoldParams() {
	snap := b.strat.Snapshot()
	for _, key := range b.HoldParams {
		v, ok := snap[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			b.holdSeries[key] = append(b.holdSeries[key], t)
		case int64:
			b.holdSeries[key] = append(b.holdSeries[key], float64(t))
		case int:
			b.holdSeries[key] = append(b.holdSeries[key], float64(t))
		}
	}
}
