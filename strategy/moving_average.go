package strategy

import (
	"bitbacktest/market"
)

// MovingAverageCrossover 均线交叉策略
// 维护一个上限为 long_window+1 的价格环形缓冲
// 金叉（短均线上穿长均线且长均线自身在上行）买入，死叉卖出
type MovingAverageCrossover struct {
	mkt market.Market

	shortWindow   int
	longWindow    int
	orderQuantity float64
	profitRatio   float64 // >0 时买入成交后挂 price*profitRatio 的止盈限价卖单

	priceHist []float64
	count     int64
}

// NewMovingAverageCrossover 创建均线交叉策略
func NewMovingAverageCrossover(mkt market.Market) *MovingAverageCrossover {
	return &MovingAverageCrossover{mkt: mkt}
}

func (s *MovingAverageCrossover) Name() string          { return "ma_crossover" }
func (s *MovingAverageCrossover) Market() market.Market { return s.mkt }

// ResetParam 设置静态参数并清空动态状态
// 必需: short_window, long_window, one_order_quantity
// 可选: profit（止盈倍率）
func (s *MovingAverageCrossover) ResetParam(p Params) error {
	var err error
	if s.shortWindow, err = p.Int("short_window"); err != nil {
		return err
	}
	if s.longWindow, err = p.Int("long_window"); err != nil {
		return err
	}
	if s.orderQuantity, err = p.Float("one_order_quantity"); err != nil {
		return err
	}
	s.profitRatio = p.FloatOr("profit", 0)

	s.priceHist = nil
	s.count = 0
	return nil
}

// GenerateSignal 产生交易信号
// 样本不足 long_window+1 个时恒为 Hold
// 新旧两组均线比较，额外要求长均线上行才允许买入
func (s *MovingAverageCrossover) GenerateSignal(price float64) Signal {
	s.count++
	s.priceHist = append(s.priceHist, price)
	if len(s.priceHist) < s.longWindow+1 {
		return SignalHold
	}

	n := len(s.priceHist)
	shortMavg := mean(s.priceHist[n-s.shortWindow:])
	longMavg := mean(s.priceHist[n-s.longWindow:])
	shortMavgOld := mean(s.priceHist[n-s.shortWindow-1 : n-1])
	longMavgOld := mean(s.priceHist[n-s.longWindow-1 : n-1])

	// 计算完成后淘汰最旧样本，缓冲长度保持在 long_window
	s.priceHist = s.priceHist[1:]

	switch {
	case shortMavg > longMavg && shortMavgOld < longMavgOld && longMavg > longMavgOld:
		return SignalBuy
	case shortMavg < longMavg && shortMavgOld > longMavgOld:
		return SignalSell
	default:
		return SignalHold
	}
}

// ExecuteTrade 执行信号
// Buy 成交且配置了 profit 时，立即挂保护性止盈限价卖单
func (s *MovingAverageCrossover) ExecuteTrade(price float64, sig Signal) {
	side, ok := sig.Side()
	if !ok {
		return
	}
	filled, err := s.mkt.PlaceMarketOrder(side, s.orderQuantity)
	if err != nil || !filled {
		return
	}
	if sig == SignalBuy && s.profitRatio > 0 {
		s.mkt.PlaceLimitOrder(market.SideSell, s.orderQuantity, price*s.profitRatio)
	}
}

// Snapshot 导出动态状态
func (s *MovingAverageCrossover) Snapshot() map[string]any {
	hist := make([]float64, len(s.priceHist))
	copy(hist, s.priceHist)
	return map[string]any{
		"count":      s.count,
		"price_hist": hist,
	}
}

// Restore 恢复动态状态，任何一个键类型不符则整体失败
func (s *MovingAverageCrossover) Restore(state map[string]any) error {
	count, err := stateInt64(state, "count")
	if err != nil {
		return err
	}
	hist, err := stateFloats(state, "price_hist")
	if err != nil {
		return err
	}
	s.count = count
	s.priceHist = hist
	return nil
}
