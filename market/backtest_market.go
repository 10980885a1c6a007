package market

import (
	"github.com/google/uuid"
)

// BacktestMarket 回放市场模拟器
// 持有一条价格序列、一个组合、一组挂单和一份历史记录
// 严格单线程使用：一次回测独占一个实例
type BacktestMarket struct {
	data      []float64
	index     int
	portfolio Portfolio
	hist      *History
	orders    []Order // 按插入顺序保存，同一 tick 多个触发时先进先出
}

// NewBacktestMarket 创建回放市场
func NewBacktestMarket(data []float64) *BacktestMarket {
	m := &BacktestMarket{data: data}
	m.ResetPortfolio(0, 0)
	return m
}

// ResetPortfolio 重置组合、挂单和历史
// 每次回测开始前必须调用，禁止跨两次回测复用旧状态
func (m *BacktestMarket) ResetPortfolio(startCash, startCoin float64) {
	m.portfolio = Portfolio{
		TradeCount: 0,
		Cash:       startCash,
		Position:   startCoin,
		TotalValue: startCash,
	}
	m.hist = NewHistory()
	m.orders = nil
	m.index = 0
}

// SetIndex 设置当前回放索引
func (m *BacktestMarket) SetIndex(index int) {
	m.index = index
}

// Index 当前回放索引
func (m *BacktestMarket) Index() int {
	return m.index
}

// Len 价格序列长度
func (m *BacktestMarket) Len() int {
	return len(m.data)
}

// Data 完整价格序列
func (m *BacktestMarket) Data() []float64 {
	return m.data
}

// GetCurrentPrice 当前 tick 的价格，索引越界时报 ErrIndexOutOfRange
func (m *BacktestMarket) GetCurrentPrice() (float64, error) {
	if m.index < 0 || m.index >= len(m.data) {
		return 0, ErrIndexOutOfRange
	}
	return m.data[m.index], nil
}

// GetPriceHist 当前索引之前的价格历史
func (m *BacktestMarket) GetPriceHist() []float64 {
	if m.index > len(m.data) {
		return m.data
	}
	return m.data[:m.index]
}

// Portfolio 当前组合快照
func (m *BacktestMarket) Portfolio() Portfolio {
	return m.portfolio
}

// History 历史记录
func (m *BacktestMarket) History() *History {
	return m.hist
}

func (m *BacktestMarket) executeBuy(quantity, price float64) bool {
	if m.portfolio.Cash >= quantity*price {
		m.portfolio.Cash -= quantity * price
		m.portfolio.Position += quantity
		m.portfolio.TradeCount++
		return true
	}
	return false // 资金不足
}

func (m *BacktestMarket) executeSell(quantity, price float64) bool {
	if m.portfolio.Position >= quantity {
		m.portfolio.Cash += quantity * price
		m.portfolio.Position -= quantity
		m.portfolio.TradeCount++
		return true
	}
	return false // 持仓不足
}

// PlaceMarketOrder 以当前价格立即执行市价单
// 无论是否成交都记录原始信号，成交的额外记录到 ExecuteSignals
func (m *BacktestMarket) PlaceMarketOrder(side Side, quantity float64) (bool, error) {
	price, err := m.GetCurrentPrice()
	if err != nil {
		return false, err
	}
	point := SignalPoint{Tick: m.index, Price: price}
	m.hist.Signals[side] = append(m.hist.Signals[side], point)

	var ok bool
	switch side {
	case SideBuy:
		ok = m.executeBuy(quantity, price)
	case SideSell:
		ok = m.executeSell(quantity, price)
	default:
		return false, nil
	}
	if ok {
		m.hist.ExecuteSignals[side] = append(m.hist.ExecuteSignals[side], point)
	}
	return ok, nil
}

// PlaceLimitOrder 挂一个限价单，等待价格触发
func (m *BacktestMarket) PlaceLimitOrder(side Side, quantity, price float64) (bool, error) {
	if quantity <= 0 || price <= 0 {
		return false, nil
	}
	m.orders = append(m.orders, Order{
		ID:           uuid.NewString(),
		Side:         side,
		Quantity:     quantity,
		TriggerPrice: price,
		CreatedAt:    m.index,
	})
	return true, nil
}

// GetOpenOrders 未成交挂单列表（插入顺序）
func (m *BacktestMarket) GetOpenOrders() ([]Order, error) {
	orders := make([]Order, len(m.orders))
	copy(orders, m.orders)
	return orders, nil
}

// CancelOrder 撤销挂单
func (m *BacktestMarket) CancelOrder(id string) (bool, error) {
	for i, o := range m.orders {
		if o.ID == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// CheckPendingOrders 用当前价格检查所有挂单
// Sell 单在 price >= trigger 时触发，Buy 单在 price <= trigger 时触发
// 先收集成交的订单 ID 再统一移除，避免遍历中修改集合
// 触发但执行失败（资金/持仓不足）的挂单保留，等待后续 tick
func (m *BacktestMarket) CheckPendingOrders() {
	price, err := m.GetCurrentPrice()
	if err != nil {
		return
	}
	executed := make(map[string]struct{})
	for _, o := range m.orders {
		triggered := (o.Side == SideSell && price >= o.TriggerPrice) ||
			(o.Side == SideBuy && price <= o.TriggerPrice)
		if !triggered {
			continue
		}
		if ok, _ := m.PlaceMarketOrder(o.Side, o.Quantity); ok {
			executed[o.ID] = struct{}{}
		}
	}
	if len(executed) == 0 {
		return
	}
	kept := m.orders[:0]
	for _, o := range m.orders {
		if _, ok := executed[o.ID]; !ok {
			kept = append(kept, o)
		}
	}
	m.orders = kept
}

// RecordTick 用当前价格重新计算总市值并追加到历史序列
// 每个 tick 恰好调用一次，且必须在该 tick 的订单检查之后
func (m *BacktestMarket) RecordTick(price float64) {
	m.portfolio.TotalValue = m.portfolio.Cash + m.portfolio.Position*price
	m.hist.TotalValueHist = append(m.hist.TotalValueHist, m.portfolio.TotalValue)
	m.hist.TotalPosHist = append(m.hist.TotalPosHist, m.portfolio.Position)
}
