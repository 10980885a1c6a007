package strategy

import (
	"math"

	"bitbacktest/market"
)

// BollingerBands 布林带策略
// 价格突破上轨卖出、跌破下轨买入，并用 buy_count 对本策略自身的建仓数量封顶
// buy_count 独立于组合的原始持仓，只统计本策略成交的买卖
type BollingerBands struct {
	mkt market.Market

	windowSize    int
	numStdDev     float64
	orderQuantity float64
	buyCountLimit int

	prices     []float64
	buyCount   int64
	upperBand  float64
	lowerBand  float64
	bandsValid bool
	count      int64
}

// NewBollingerBands 创建布林带策略
func NewBollingerBands(mkt market.Market) *BollingerBands {
	return &BollingerBands{mkt: mkt}
}

func (s *BollingerBands) Name() string          { return "bollinger_bands" }
func (s *BollingerBands) Market() market.Market { return s.mkt }

// ResetParam 设置静态参数并清空动态状态
// 必需: window_size, num_std_dev, one_order_quantity, buy_count_limit
func (s *BollingerBands) ResetParam(p Params) error {
	var err error
	if s.windowSize, err = p.Int("window_size"); err != nil {
		return err
	}
	if s.numStdDev, err = p.Float("num_std_dev"); err != nil {
		return err
	}
	if s.orderQuantity, err = p.Float("one_order_quantity"); err != nil {
		return err
	}
	limit, err := p.Int("buy_count_limit")
	if err != nil {
		return err
	}
	s.buyCountLimit = limit

	s.prices = nil
	s.buyCount = 0
	s.upperBand, s.lowerBand = 0, 0
	s.bandsValid = false
	s.count = 0
	return nil
}

// GenerateSignal 产生交易信号
// 缓冲不足 window_size 个样本时带未定义，恒为 Hold
func (s *BollingerBands) GenerateSignal(price float64) Signal {
	s.count++
	s.prices = append(s.prices, price)
	if len(s.prices) > s.windowSize {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.windowSize {
		s.bandsValid = false
		return SignalHold
	}

	m := mean(s.prices)
	variance := 0.0
	for _, p := range s.prices {
		variance += (p - m) * (p - m)
	}
	stdDev := math.Sqrt(variance / float64(len(s.prices)))

	s.upperBand = m + s.numStdDev*stdDev
	s.lowerBand = m - s.numStdDev*stdDev
	s.bandsValid = true

	switch {
	case price > s.upperBand:
		return SignalSell
	case price < s.lowerBand:
		return SignalBuy
	default:
		return SignalHold
	}
}

// ExecuteTrade 执行信号并维护建仓计数
// Buy 只在 buyCount < buy_count_limit 时提交，成交后加一
// Sell 只在 buyCount > 0 时提交，成交后减一
func (s *BollingerBands) ExecuteTrade(price float64, sig Signal) {
	switch {
	case sig == SignalBuy && s.buyCount < int64(s.buyCountLimit):
		if ok, _ := s.mkt.PlaceMarketOrder(market.SideBuy, s.orderQuantity); ok {
			s.buyCount++
		}
	case sig == SignalSell && s.buyCount > 0:
		if ok, _ := s.mkt.PlaceMarketOrder(market.SideSell, s.orderQuantity); ok {
			s.buyCount--
		}
	}
}

// Snapshot 导出动态状态
// 窗口未满时带尚未定义，upper_band/lower_band 两个键不导出
func (s *BollingerBands) Snapshot() map[string]any {
	prices := make([]float64, len(s.prices))
	copy(prices, s.prices)
	state := map[string]any{
		"count":     s.count,
		"prices":    prices,
		"buy_count": s.buyCount,
	}
	if s.bandsValid {
		state["upper_band"] = s.upperBand
		state["lower_band"] = s.lowerBand
	}
	return state
}

// Restore 恢复动态状态
// 带的有效性由键是否存在决定，和 Snapshot 对偶
func (s *BollingerBands) Restore(state map[string]any) error {
	count, err := stateInt64(state, "count")
	if err != nil {
		return err
	}
	prices, err := stateFloats(state, "prices")
	if err != nil {
		return err
	}
	buyCount, err := stateInt64(state, "buy_count")
	if err != nil {
		return err
	}
	upper, lower := 0.0, 0.0
	valid := false
	if _, ok := state["upper_band"]; ok {
		if upper, err = stateFloat(state, "upper_band"); err != nil {
			return err
		}
		if lower, err = stateFloat(state, "lower_band"); err != nil {
			return err
		}
		valid = true
	}
	s.count = count
	s.prices = prices
	s.buyCount = buyCount
	s.upperBand = upper
	s.lowerBand = lower
	s.bandsValid = valid
	return nil
}
