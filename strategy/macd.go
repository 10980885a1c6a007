package strategy

import "bitbacktest/market"

// MACD 指数平滑异同移动平均策略
// 增量维护长短两条 EMA，macd = emaShort - emaLong
// 信号线是 macd 自身的 EMA，交叉判定必须用上一 tick 的存量值和本 tick 的新值比较
type MACD struct {
	mkt market.Market

	shortWindow   int
	longWindow    int
	signalWindow  int
	orderQuantity float64

	initialized bool
	emaShort    float64
	emaLong     float64
	macd        float64
	signalLine  float64
	macdOld     float64
	signalOld   float64
	count       int64
}

// NewMACD 创建 MACD 策略
func NewMACD(mkt market.Market) *MACD {
	return &MACD{mkt: mkt}
}

func (s *MACD) Name() string { return "macd" }
func (s *MACD) Market() market.Market { return s.mkt }

// ResetParam 设置静态参数并清空动态状态
// 必需: short_window, long_window, signal_window, one_order_quantity
func (s *MACD) ResetParam(p Params) error {
	var err error
	if s.shortWindow, err = p.Int("short_window"); err != nil {
		return err
	}
	if s.longWindow, err = p.Int("long_window"); err != nil {
		return err
	}
	if s.signalWindow, err = p.Int("signal_window"); err != nil {
		return err
	}
	if s.orderQuantity, err = p.Float("one_order_quantity"); err != nil {
		return err
	}

	s.initialized = false
	s.emaShort, s.emaLong = 0, 0
	s.macd, s.signalLine = 0, 0
	s.macdOld, s.signalOld = 0, 0
	s.count = 0
	return nil
}

// alpha = 2/(window+1)
func ema(current, previous float64, window int) float64 {
	alpha := 2 / (float64(window) + 1)
	return alpha*current + (1-alpha)*previous
}

// GenerateSignal 产生交易信号
// 第一个 tick 只做初始化：两条 EMA 取当前价，macd 和信号线归零
// 之后 macd 为 0 按普通值处理，不再触发初始化
func (s *MACD) GenerateSignal(price float64) Signal {
	s.count++
	if !s.initialized {
		s.initialized = true
		s.emaShort = price
		s.emaLong = price
		s.macd = 0
		s.signalLine = 0
		return SignalHold
	}

	emaShort := ema(price, s.emaShort, s.shortWindow)
	emaLong := ema(price, s.emaLong, s.longWindow)
	macd := emaShort - emaLong
	signalLine := ema(macd, s.signalLine, s.signalWindow)

	// 先留存上一 tick 的值再覆盖，交叉判定依赖这对新旧值
	s.macdOld = s.macd
	s.signalOld = s.signalLine
	s.emaShort = emaShort
	s.emaLong = emaLong
	s.macd = macd
	s.signalLine = signalLine

	switch {
	case s.macdOld <= s.signalOld && macd > signalLine:
		return SignalBuy
	case s.macdOld >= s.signalOld && macd < signalLine:
		return SignalSell
	default:
		return SignalHold
	}
}

// ExecuteTrade 按固定下单量执行信号
func (s *MACD) ExecuteTrade(price float64, sig Signal) {
	side, ok := sig.Side()
	if !ok {
		return
	}
	s.mkt.PlaceMarketOrder(side, s.orderQuantity)
}

// Snapshot 导出动态状态
func (s *MACD) Snapshot() map[string]any {
	return map[string]any{
		"count":           s.count,
		"initialized":     s.initialized,
		"ema_short":       s.emaShort,
		"ema_long":        s.emaLong,
		"macd":            s.macd,
		"signal_line":     s.signalLine,
		"macd_old":        s.macdOld,
		"signal_line_old": s.signalOld,
	}
}

// Restore 恢复动态状态
func (s *MACD) Restore(state map[string]any) error {
	count, err := stateInt64(state, "count")
	if err != nil {
		return err
	}
	initialized, err := stateBool(state, "initialized")
	if err != nil {
		return err
	}
	fields := map[string]*float64{
		"ema_short":       &s.emaShort,
		"ema_long":        &s.emaLong,
		"macd":            &s.macd,
		"signal_line":     &s.signalLine,
		"macd_old":        &s.macdOld,
		"signal_line_old": &s.signalOld,
	}
	values := make(map[string]float64, len(fields))
	for key := range fields {
		v, err := stateFloat(state, key)
		if err != nil {
			return err
		}
		values[key] = v
	}
	for key, dst := range fields {
		*dst = values[key]
	}
	s.count = count
	s.initialized = initialized
	return nil
}
