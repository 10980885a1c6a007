package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbacktest/market"
)

func TestMovingAverageCrossover_GenerateSignal(t *testing.T) {
	t.Run("should hold until buffer reaches long window plus one", func(t *testing.T) {
		s := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))

		for _, p := range []float64{12, 11, 10} {
			assert.Equal(t, SignalHold, s.GenerateSignal(p))
		}
	})

	t.Run("should emit golden cross buy then dead cross sell", func(t *testing.T) {
		s := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))

		// 先跌后急涨再急跌：tick 4 金叉（长均线同时上行），tick 5 死叉
		prices := []float64{12, 11, 10, 9, 14, 3}
		want := []Signal{SignalHold, SignalHold, SignalHold, SignalHold, SignalBuy, SignalSell}
		for i, p := range prices {
			assert.Equal(t, want[i], s.GenerateSignal(p), "tick %d price %.0f", i, p)
		}
	})

	t.Run("should require rising long mavg for buy", func(t *testing.T) {
		s := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))

		// tick 3 短均线上穿，但长均线 13.33 -> 12 在下行，不买
		for _, p := range []float64{20, 10, 10} {
			s.GenerateSignal(p)
		}
		assert.Equal(t, SignalHold, s.GenerateSignal(16))
	})
}

func TestMovingAverageCrossover_ResetParam(t *testing.T) {
	s := NewMovingAverageCrossover(market.NewBacktestMarket(nil))

	t.Run("should reject missing required parameter", func(t *testing.T) {
		err := s.ResetParam(Params{"short_window": 2, "long_window": 3})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "one_order_quantity")
	})

	t.Run("should clear dynamic state", func(t *testing.T) {
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))
		s.GenerateSignal(100)
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))
		snap := s.Snapshot()
		assert.Equal(t, int64(0), snap["count"])
		assert.Empty(t, snap["price_hist"])
	})
}

func TestMovingAverageCrossover_ExecuteTrade(t *testing.T) {
	t.Run("buy fill with profit ratio should place take profit limit sell", func(t *testing.T) {
		mkt := market.NewBacktestMarket([]float64{100})
		mkt.ResetPortfolio(1000, 0)
		mkt.SetIndex(0)

		s := NewMovingAverageCrossover(mkt)
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0, "profit": 1.1,
		}))

		s.ExecuteTrade(100, SignalBuy)

		orders, err := mkt.GetOpenOrders()
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, market.SideSell, orders[0].Side)
		assert.Equal(t, 110.0, orders[0].TriggerPrice)
		assert.Equal(t, 900.0, mkt.Portfolio().Cash)
	})

	t.Run("failed buy should not place limit order", func(t *testing.T) {
		mkt := market.NewBacktestMarket([]float64{100})
		mkt.ResetPortfolio(10, 0)
		mkt.SetIndex(0)

		s := NewMovingAverageCrossover(mkt)
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0, "profit": 1.1,
		}))

		s.ExecuteTrade(100, SignalBuy)

		orders, _ := mkt.GetOpenOrders()
		assert.Empty(t, orders)
	})

	t.Run("hold should do nothing", func(t *testing.T) {
		mkt := market.NewBacktestMarket([]float64{100})
		mkt.ResetPortfolio(1000, 0)
		mkt.SetIndex(0)

		s := NewMovingAverageCrossover(mkt)
		require.NoError(t, s.ResetParam(Params{
			"short_window": 2, "long_window": 3, "one_order_quantity": 1.0,
		}))
		s.ExecuteTrade(100, SignalHold)
		assert.Equal(t, uint64(0), mkt.Portfolio().TradeCount)
	})
}

func TestMovingAverageCrossover_SnapshotRestore(t *testing.T) {
	t.Run("restored instance should continue the signal stream identically", func(t *testing.T) {
		params := Params{"short_window": 2, "long_window": 3, "one_order_quantity": 1.0}
		prices := []float64{12, 11, 10, 9}

		a := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		require.NoError(t, a.ResetParam(params))
		for _, p := range prices {
			a.GenerateSignal(p)
		}

		b := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		require.NoError(t, b.ResetParam(params))
		require.NoError(t, b.Restore(a.Snapshot()))

		for _, p := range []float64{14, 3} {
			assert.Equal(t, a.GenerateSignal(p), b.GenerateSignal(p))
		}
	})

	t.Run("restore should fail on wrong typed state", func(t *testing.T) {
		s := NewMovingAverageCrossover(market.NewBacktestMarket(nil))
		err := s.Restore(map[string]any{"count": "not-a-number", "price_hist": []float64{}})
		assert.Error(t, err)
	})
}
