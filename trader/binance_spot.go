package trader

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"bitbacktest/market"
)

// BinanceSpotMarket 币安现货适配器，实现 market.Market
// 签名、时间戳等鉴权细节由官方 SDK 处理
type BinanceSpotMarket struct {
	client *binance.Client
	symbol string
	ctx    context.Context
}

// NewBinanceSpotMarket 创建现货适配器
// 例: symbol = "BTCUSDT"
func NewBinanceSpotMarket(apiKey, apiSecret, symbol string) *BinanceSpotMarket {
	return &BinanceSpotMarket{
		client: binance.NewClient(apiKey, apiSecret),
		symbol: symbol,
		ctx:    context.Background(),
	}
}

// SetBaseURL 切换接口地址（测试网或 httptest）
func (m *BinanceSpotMarket) SetBaseURL(baseURL string) {
	m.client.BaseURL = baseURL
}

// GetCurrentPrice 最新成交价
func (m *BinanceSpotMarket) GetCurrentPrice() (float64, error) {
	prices, err := m.client.NewListPricesService().Symbol(m.symbol).Do(m.ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", m.symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

func binanceSide(side market.Side) binance.SideType {
	if side == market.SideBuy {
		return binance.SideTypeBuy
	}
	return binance.SideTypeSell
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// PlaceMarketOrder 市价单
// 交易所明确拒绝（余额不足等）返回 false，网络/鉴权失败返回错误
func (m *BinanceSpotMarket) PlaceMarketOrder(side market.Side, quantity float64) (bool, error) {
	_, err := m.client.NewCreateOrderService().
		Symbol(m.symbol).
		Side(binanceSide(side)).
		Type(binance.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		Do(m.ctx)
	if err != nil {
		if common.IsAPIError(err) {
			// 交易所的业务拒绝不是异常
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PlaceLimitOrder 限价单 (GTC)
func (m *BinanceSpotMarket) PlaceLimitOrder(side market.Side, quantity, price float64) (bool, error) {
	_, err := m.client.NewCreateOrderService().
		Symbol(m.symbol).
		Side(binanceSide(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatQuantity(quantity)).
		Price(formatQuantity(price)).
		Do(m.ctx)
	if err != nil {
		if common.IsAPIError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetOpenOrders 未成交挂单
func (m *BinanceSpotMarket) GetOpenOrders() ([]market.Order, error) {
	raw, err := m.client.NewListOpenOrdersService().Symbol(m.symbol).Do(m.ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	orders := make([]market.Order, 0, len(raw))
	for _, o := range raw {
		side := market.SideSell
		if o.Side == binance.SideTypeBuy {
			side = market.SideBuy
		}
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		price, _ := strconv.ParseFloat(o.Price, 64)
		orders = append(orders, market.Order{
			ID:           strconv.FormatInt(o.OrderID, 10),
			Side:         side,
			Quantity:     qty,
			TriggerPrice: price,
		})
	}
	return orders, nil
}

// CancelOrder 撤单，订单不存在返回 false
func (m *BinanceSpotMarket) CancelOrder(id string) (bool, error) {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid order id %q: %w", id, err)
	}
	_, err = m.client.NewCancelOrderService().
		Symbol(m.symbol).
		OrderID(orderID).
		Do(m.ctx)
	if err != nil {
		if common.IsAPIError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
