package market

import "errors"

// Side 订单方向
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ErrIndexOutOfRange 回放索引越过了价格序列末尾
var ErrIndexOutOfRange = errors.New("price index out of range")

// Order 挂单（限价单）
// 市价单立即成交，不会以 Order 的形式存在
type Order struct {
	ID           string  `json:"id"`            // 唯一标识 (uuid)
	Side         Side    `json:"side"`          // Buy / Sell
	Quantity     float64 `json:"quantity"`      // 数量
	TriggerPrice float64 `json:"trigger_price"` // 触发价格
	CreatedAt    int     `json:"created_at"`    // 创建时的 tick 索引
}

// Portfolio 账户组合状态
// 不允许负现金、负持仓（不支持保证金和做空）
type Portfolio struct {
	TradeCount uint64  `json:"trade_count"`
	Cash       float64 `json:"cash"`
	Position   float64 `json:"position"`
	TotalValue float64 `json:"total_value"`
}

// SignalPoint 信号发生点 (tick, price)
type SignalPoint struct {
	Tick  int     `json:"tick"`
	Price float64 `json:"price"`
}

// History 单次回测的历史记录，只增不改
// Signals 记录所有提交到市场的原始信号，ExecuteSignals 只记录实际成交的
type History struct {
	Signals        map[Side][]SignalPoint `json:"signals"`
	ExecuteSignals map[Side][]SignalPoint `json:"execute_signals"`
	TotalValueHist []float64              `json:"total_value_hist"`
	TotalPosHist   []float64              `json:"total_pos_hist"`
}

// NewHistory 初始化空历史
func NewHistory() *History {
	return &History{
		Signals: map[Side][]SignalPoint{
			SideBuy:  {},
			SideSell: {},
		},
		ExecuteSignals: map[Side][]SignalPoint{
			SideBuy:  {},
			SideSell: {},
		},
		TotalValueHist: []float64{},
		TotalPosHist:   []float64{},
	}
}

// Market 市场能力接口
// 回测由 BacktestMarket 实现，实盘由 trader 包的交易所适配器实现
type Market interface {
	// GetCurrentPrice 获取当前价格
	GetCurrentPrice() (float64, error)
	// PlaceMarketOrder 下市价单。资金/持仓不足返回 false（业务结果，不是错误）
	PlaceMarketOrder(side Side, quantity float64) (bool, error)
	// PlaceLimitOrder 下限价单
	PlaceLimitOrder(side Side, quantity, price float64) (bool, error)
	// CancelOrder 按 ID 撤单。找不到返回 false
	CancelOrder(id string) (bool, error)
	// GetOpenOrders 获取当前未成交的挂单
	GetOpenOrders() ([]Order, error)
}

// OrderType 下单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// Resetter 可重置组合状态的市场（回测市场实现此接口，实盘不实现）
type Resetter interface {
	ResetPortfolio(startCash, startCoin float64)
}

// PlaceOrder 按类型分发下单请求
// Limit 单要求 price > 0，否则直接拒绝
func PlaceOrder(m Market, orderType OrderType, side Side, quantity, price float64) (bool, error) {
	switch {
	case orderType == OrderTypeLimit && price > 0:
		return m.PlaceLimitOrder(side, quantity, price)
	case orderType == OrderTypeMarket:
		return m.PlaceMarketOrder(side, quantity)
	default:
		return false, nil
	}
}
