package trader

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbacktest/market"
)

func newSpotMarket(srv *httptest.Server) *BinanceSpotMarket {
	m := NewBinanceSpotMarket("key", "secret", "BTCUSDT")
	m.SetBaseURL(srv.URL)
	return m
}

func TestBinanceSpotMarket_GetCurrentPrice(t *testing.T) {
	t.Run("should parse the ticker price", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "42000.50"})
		}))
		defer srv.Close()

		price, err := newSpotMarket(srv).GetCurrentPrice()
		require.NoError(t, err)
		assert.Equal(t, 42000.50, price)
	})
}

func TestBinanceSpotMarket_Orders(t *testing.T) {
	t.Run("market order should submit and report fill", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/order", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "BUY", r.FormValue("side"))
			assert.Equal(t, "MARKET", r.FormValue("type"))
			assert.Equal(t, "0.01", r.FormValue("quantity"))
			assert.NotEmpty(t, r.FormValue("signature"), "sdk must sign order requests")
			json.NewEncoder(w).Encode(map[string]any{
				"symbol": "BTCUSDT", "orderId": 1234, "status": "FILLED",
			})
		}))
		defer srv.Close()

		ok, err := newSpotMarket(srv).PlaceMarketOrder(market.SideBuy, 0.01)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("limit order should carry price and time in force", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "LIMIT", r.FormValue("type"))
			assert.Equal(t, "GTC", r.FormValue("timeInForce"))
			assert.Equal(t, "43000", r.FormValue("price"))
			json.NewEncoder(w).Encode(map[string]any{
				"symbol": "BTCUSDT", "orderId": 1235, "status": "NEW",
			})
		}))
		defer srv.Close()

		ok, err := newSpotMarket(srv).PlaceLimitOrder(market.SideSell, 0.01, 43000)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("exchange business rejection should return false without error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"code": -2010, "msg": "Account has insufficient balance for requested action.",
			})
		}))
		defer srv.Close()

		ok, err := newSpotMarket(srv).PlaceMarketOrder(market.SideBuy, 100)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBinanceSpotMarket_GetOpenOrders(t *testing.T) {
	t.Run("should map open orders into the shared order shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/openOrders", r.URL.Path)
			json.NewEncoder(w).Encode([]map[string]any{
				{"orderId": 11, "side": "BUY", "origQty": "0.5", "price": "41000"},
				{"orderId": 12, "side": "SELL", "origQty": "0.25", "price": "44000"},
			})
		}))
		defer srv.Close()

		orders, err := newSpotMarket(srv).GetOpenOrders()
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "11", orders[0].ID)
		assert.Equal(t, market.SideBuy, orders[0].Side)
		assert.Equal(t, 0.5, orders[0].Quantity)
		assert.Equal(t, 44000.0, orders[1].TriggerPrice)
	})
}

func TestBinanceSpotMarket_CancelOrder(t *testing.T) {
	t.Run("should cancel by numeric id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			// DELETE 的表单参数在请求体里，ParseForm 不会读
			body, _ := io.ReadAll(r.Body)
			params, err := url.ParseQuery(string(body))
			require.NoError(t, err)
			assert.Equal(t, "11", params.Get("orderId"))
			json.NewEncoder(w).Encode(map[string]any{"symbol": "BTCUSDT", "orderId": 11})
		}))
		defer srv.Close()

		ok, err := newSpotMarket(srv).CancelOrder("11")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown order should return false without error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"code": -2011, "msg": "Unknown order sent."})
		}))
		defer srv.Close()

		ok, err := newSpotMarket(srv).CancelOrder("99")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non numeric id should error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		_, err := newSpotMarket(srv).CancelOrder("JRF1")
		assert.Error(t, err)
	})
}
