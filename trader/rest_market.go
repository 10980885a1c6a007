package trader

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"bitbacktest/market"
)

// DefaultBitflyerBaseURL bitFlyer REST API
const DefaultBitflyerBaseURL = "https://api.bitflyer.jp"

// RESTMarket bitFlyer 风格的实盘交易所适配器，实现 market.Market
// 每个私有请求都带时间戳 + HMAC-SHA256 签名（对 method+endpoint+body 签名）
// BaseURL 可替换，测试时指向 httptest 服务器
type RESTMarket struct {
	apiKey      string
	apiSecret   string
	baseURL     string
	productCode string
	client      *http.Client
	stream      *PriceStream
}

// NewRESTMarket 创建适配器，baseURL 为空时用官方地址
func NewRESTMarket(baseURL, productCode string) *RESTMarket {
	if baseURL == "" {
		baseURL = DefaultBitflyerBaseURL
	}
	return &RESTMarket{
		baseURL:     baseURL,
		productCode: productCode,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// SetAPIKey 设置鉴权凭证，下单和查单前必须调用
func (m *RESTMarket) SetAPIKey(apiKey, apiSecret string) {
	m.apiKey = apiKey
	m.apiSecret = apiSecret
}

// AttachStream 挂接 WebSocket 行情流
// 挂接后 GetCurrentPrice 优先用流内缓存的最新价，减少 REST 轮询
func (m *RESTMarket) AttachStream(ps *PriceStream) {
	m.stream = ps
}

// header 生成签名后的私有请求头
// message = timestamp + method + endpoint + body
func (m *RESTMarket) header(method, endpoint, body string) http.Header {
	timestamp := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', 6, 64)
	message := timestamp + method + endpoint + body

	mac := hmac.New(sha256.New, []byte(m.apiSecret))
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("ACCESS-KEY", m.apiKey)
	h.Set("ACCESS-TIMESTAMP", timestamp)
	h.Set("ACCESS-SIGN", signature)
	return h
}

func (m *RESTMarket) requireCredentials() error {
	if m.apiKey == "" || m.apiSecret == "" {
		return fmt.Errorf("api key and secret must be set before placing an order")
	}
	return nil
}

func (m *RESTMarket) doSigned(method, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, m.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = m.header(method, endpoint, string(body))

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("exchange returned %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// GetCurrentPrice 最新成交价
// 行情流可用时直接取流内缓存，否则走 REST ticker
func (m *RESTMarket) GetCurrentPrice() (float64, error) {
	if m.stream != nil {
		if price, ok := m.stream.Last(); ok {
			return price, nil
		}
	}
	resp, err := m.client.Get(fmt.Sprintf("%s/v1/ticker?product_code=%s", m.baseURL, m.productCode))
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	defer resp.Body.Close()
	var ticker struct {
		LTP float64 `json:"ltp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	return ticker.LTP, nil
}

func sideToExchange(side market.Side) string {
	if side == market.SideBuy {
		return "BUY"
	}
	return "SELL"
}

type childOrderRequest struct {
	ProductCode    string  `json:"product_code"`
	ChildOrderType string  `json:"child_order_type"`
	Side           string  `json:"side"`
	Size           float64 `json:"size"`
	Price          float64 `json:"price,omitempty"`
}

type childOrderResponse struct {
	AcceptanceID string `json:"child_order_acceptance_id"`
}

func (m *RESTMarket) sendChildOrder(reqBody childOrderRequest) (bool, error) {
	if err := m.requireCredentials(); err != nil {
		return false, err
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return false, err
	}
	data, err := m.doSigned(http.MethodPost, "/v1/me/sendchildorder", body)
	if err != nil {
		return false, err
	}
	var resp childOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("decode order response: %w", err)
	}
	if resp.AcceptanceID == "" {
		logrus.WithField("response", string(data)).Warn("order rejected by exchange")
		return false, nil
	}
	return true, nil
}

// PlaceMarketOrder 市价单
func (m *RESTMarket) PlaceMarketOrder(side market.Side, quantity float64) (bool, error) {
	return m.sendChildOrder(childOrderRequest{
		ProductCode:    m.productCode,
		ChildOrderType: "MARKET",
		Side:           sideToExchange(side),
		Size:           quantity,
	})
}

// PlaceLimitOrder 限价单
func (m *RESTMarket) PlaceLimitOrder(side market.Side, quantity, price float64) (bool, error) {
	return m.sendChildOrder(childOrderRequest{
		ProductCode:    m.productCode,
		ChildOrderType: "LIMIT",
		Side:           sideToExchange(side),
		Size:           quantity,
		Price:          price,
	})
}

type childOrder struct {
	AcceptanceID string  `json:"child_order_acceptance_id"`
	Side         string  `json:"side"`
	Size         float64 `json:"size"`
	Price        float64 `json:"price"`
}

// GetOpenOrders 查询 ACTIVE 状态的挂单
func (m *RESTMarket) GetOpenOrders() ([]market.Order, error) {
	if err := m.requireCredentials(); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("/v1/me/getchildorders?product_code=%s&child_order_state=ACTIVE", m.productCode)
	data, err := m.doSigned(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var raw []childOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	orders := make([]market.Order, 0, len(raw))
	for _, o := range raw {
		side := market.SideSell
		if o.Side == "BUY" {
			side = market.SideBuy
		}
		orders = append(orders, market.Order{
			ID:           o.AcceptanceID,
			Side:         side,
			Quantity:     o.Size,
			TriggerPrice: o.Price,
		})
	}
	return orders, nil
}

// CancelOrder 撤单
func (m *RESTMarket) CancelOrder(id string) (bool, error) {
	if err := m.requireCredentials(); err != nil {
		return false, err
	}
	body, err := json.Marshal(map[string]string{
		"product_code":              m.productCode,
		"child_order_acceptance_id": id,
	})
	if err != nil {
		return false, err
	}
	if _, err := m.doSigned(http.MethodPost, "/v1/me/cancelchildorder", body); err != nil {
		return false, err
	}
	return true, nil
}
