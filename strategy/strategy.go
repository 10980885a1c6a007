package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"bitbacktest/config"
	"bitbacktest/market"
)

// Signal 交易信号
type Signal string

const (
	SignalBuy  Signal = "Buy"
	SignalSell Signal = "Sell"
	SignalHold Signal = "Hold"
)

// Side 把信号转换为订单方向，Hold 返回 false
func (s Signal) Side() (market.Side, bool) {
	switch s {
	case SignalBuy:
		return market.SideBuy, true
	case SignalSell:
		return market.SideSell, true
	default:
		return "", false
	}
}

// Params 策略静态参数
// 一次回测内不可变，缺少必要参数在 ResetParam 阶段直接报错中止
type Params map[string]any

// Float 取必需的浮点参数
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", key, v)
	}
}

// Int 取必需的整型参数
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// FloatOr 取可选的浮点参数
func (p Params) FloatOr(key string, def float64) float64 {
	if _, ok := p[key]; !ok {
		return def
	}
	f, err := p.Float(key)
	if err != nil {
		return def
	}
	return f
}

// Strategy 策略能力接口
// 一个策略实例独占一份动态状态，并引用恰好一个市场实例
type Strategy interface {
	// Name 策略名（用于日志和运行记录）
	Name() string
	// Market 策略绑定的市场
	Market() market.Market
	// ResetParam 重置静态参数，缺参数时返回错误且不得进入 tick 循环
	ResetParam(p Params) error
	// GenerateSignal 消费一个价格 tick，更新动态状态并产生信号
	GenerateSignal(price float64) Signal
	// ExecuteTrade 按策略自身的下单规则执行信号
	ExecuteTrade(price float64, sig Signal)
	// Snapshot 导出动态状态（扁平映射，可整体持久化）
	Snapshot() map[string]any
	// Restore 从持久化映射恢复动态状态，类型不符返回错误
	Restore(state map[string]any) error
}

// ResetAll 原子地重置静态参数、动态状态、组合和历史
// 任何一次回测开始前必须调用，禁止复用上一次运行的残留状态
func ResetAll(s Strategy, p Params, startCash, startCoin float64) error {
	if err := s.ResetParam(p); err != nil {
		return err
	}
	if r, ok := s.Market().(market.Resetter); ok {
		r.ResetPortfolio(startCash, startCoin)
	}
	return nil
}

// New 按名称构建策略
func New(name string, mkt market.Market) (Strategy, error) {
	switch strings.ToLower(name) {
	case "ma", "ma_crossover", "moving_average":
		return NewMovingAverageCrossover(mkt), nil
	case "macd":
		return NewMACD(mkt), nil
	case "bb", "bollinger", "bollinger_bands":
		return NewBollingerBands(mkt), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// TradeLimiter 下单准入控制
// 全局开关 + 挂单数量上限，两者都满足才允许提交订单
type TradeLimiter struct {
	settings *config.Settings
	mkt      market.Market
}

// NewTradeLimiter 创建 limiter，settings 由进程启动时构建并传引用
func NewTradeLimiter(settings *config.Settings, mkt market.Market) *TradeLimiter {
	return &TradeLimiter{settings: settings, mkt: mkt}
}

// Allow 当前是否允许提交订单
// 查询挂单失败时保守拒绝
func (l *TradeLimiter) Allow() bool {
	if l.settings == nil || !l.settings.TradeEnable {
		return false
	}
	orders, err := l.mkt.GetOpenOrders()
	if err != nil {
		return false
	}
	return len(orders) < l.settings.OrderNumMax
}

// ---- 动态状态恢复用的类型辅助 ----

func stateInt64(state map[string]any, key string) (int64, error) {
	v, ok := state[key]
	if !ok {
		return 0, fmt.Errorf("missing state key %q", key)
	}
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("state key %q has unsupported type %T", key, v)
	}
}

func stateFloat(state map[string]any, key string) (float64, error) {
	v, ok := state[key]
	if !ok {
		return 0, fmt.Errorf("missing state key %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("state key %q has unsupported type %T", key, v)
	}
}

func stateBool(state map[string]any, key string) (bool, error) {
	v, ok := state[key]
	if !ok {
		return false, fmt.Errorf("missing state key %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("state key %q has unsupported type %T", key, v)
	}
	return b, nil
}

func stateFloats(state map[string]any, key string) ([]float64, error) {
	v, ok := state[key]
	if !ok {
		return nil, fmt.Errorf("missing state key %q", key)
	}
	switch t := v.(type) {
	case []float64:
		out := make([]float64, len(t))
		copy(out, t)
		return out, nil
	case []any:
		out := make([]float64, 0, len(t))
		for _, e := range t {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("state key %q contains non-numeric element %T", key, e)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("state key %q has unsupported type %T", key, v)
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
