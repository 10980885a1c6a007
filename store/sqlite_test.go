package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState() map[string]any {
	return map[string]any{
		"count":       int64(3),
		"initialized": true,
		"ema_short":   10.5,
		"price_hist":  []float64{10, 12, 12},
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Run("read of absent key should return empty without error", func(t *testing.T) {
		s := newTestStore(t)
		state, version, err := s.Read("macd/BTC_JPY")
		require.NoError(t, err)
		assert.Nil(t, state)
		assert.Equal(t, int64(0), version)
	})

	t.Run("write then read should round trip with version 1", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("macd/BTC_JPY", sampleState(), 0))

		state, version, err := s.Read("macd/BTC_JPY")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		assert.Equal(t, int64(3), state["count"])
		assert.Equal(t, true, state["initialized"])
		assert.Equal(t, 10.5, state["ema_short"])
		assert.Equal(t, []float64{10, 12, 12}, state["price_hist"])
	})

	t.Run("insert should conflict when the key already exists", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("k", sampleState(), 0))

		err := s.Write("k", sampleState(), 0)
		assert.True(t, errors.Is(err, ErrVersionConflict))
	})

	t.Run("versioned update should advance the version", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("k", sampleState(), 0))

		next := sampleState()
		next["count"] = int64(4)
		require.NoError(t, s.Write("k", next, 1))

		state, version, err := s.Read("k")
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
		assert.Equal(t, int64(4), state["count"])
	})

	t.Run("stale version write must be rejected", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("k", sampleState(), 0))
		require.NoError(t, s.Write("k", sampleState(), 1))

		// 拿着旧版本 1 再写，等价于两个并发激活相互覆盖，必须拒绝
		err := s.Write("k", sampleState(), 1)
		assert.True(t, errors.Is(err, ErrVersionConflict))

		_, version, err := s.Read("k")
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
	})

	t.Run("corrupted payload should surface error but keep version", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("k", sampleState(), 0))

		_, err := s.db.Exec(`UPDATE strategy_state SET payload = 'not-json' WHERE key = 'k'`)
		require.NoError(t, err)

		state, version, err := s.Read("k")
		assert.Error(t, err)
		assert.Nil(t, state)
		assert.Equal(t, int64(1), version, "caller needs the version to overwrite the bad record")
	})

	t.Run("keys should be isolated", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Write("a", map[string]any{"v": int64(1)}, 0))
		require.NoError(t, s.Write("b", map[string]any{"v": int64(2)}, 0))

		state, _, err := s.Read("b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), state["v"])
	})
}

func TestMemoryStore(t *testing.T) {
	t.Run("should behave like the sqlite store for the version protocol", func(t *testing.T) {
		s := NewMemoryStore()

		_, version, err := s.Read("k")
		require.NoError(t, err)
		assert.Equal(t, int64(0), version)

		require.NoError(t, s.Write("k", sampleState(), 0))
		assert.True(t, errors.Is(s.Write("k", sampleState(), 0), ErrVersionConflict))

		state, version, err := s.Read("k")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		assert.Equal(t, []float64{10, 12, 12}, state["price_hist"])

		require.NoError(t, s.Write("k", sampleState(), 1))
		assert.True(t, errors.Is(s.Write("k", sampleState(), 1), ErrVersionConflict))
	})

	t.Run("read should return a codec processed copy", func(t *testing.T) {
		s := NewMemoryStore()
		original := map[string]any{"prices": []float64{1, 2}}
		require.NoError(t, s.Write("k", original, 0))

		state, _, err := s.Read("k")
		require.NoError(t, err)
		state["prices"].([]float64)[0] = 99

		again, _, err := s.Read("k")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, again["prices"], "mutating a read result must not leak back")
	})
}
