package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalk(t *testing.T) {
	t.Run("same seed must generate identical series", func(t *testing.T) {
		a := RandomWalk(1000, 0.01, 100, 42)
		b := RandomWalk(1000, 0.01, 100, 42)
		assert.Equal(t, a, b)
	})

	t.Run("different seeds should diverge", func(t *testing.T) {
		a := RandomWalk(1000, 0.01, 100, 1)
		b := RandomWalk(1000, 0.01, 100, 2)
		assert.NotEqual(t, a, b)
	})

	t.Run("each step should stay within the price range", func(t *testing.T) {
		data := RandomWalk(1000, 0.05, 500, 7)
		require.Len(t, data, 500)

		prev := 1000.0
		for i, p := range data {
			ratio := p / prev
			assert.GreaterOrEqual(t, ratio, 0.95, "tick %d", i)
			assert.LessOrEqual(t, ratio, 1.05, "tick %d", i)
			prev = p
		}
	})

	t.Run("zero length should give empty series", func(t *testing.T) {
		assert.Empty(t, RandomWalk(1000, 0.01, 0, 1))
	})
}

func TestLoadPricesCSV(t *testing.T) {
	writeCSV := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "prices.csv")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("should read the requested column and skip the header", func(t *testing.T) {
		path := writeCSV(t, "time,price\n1,100.5\n2,101.5\n3,99.0\n")
		prices, err := LoadPricesCSV(path, 1, 1, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{100.5, 101.5, 99.0}, prices)
	})

	t.Run("step should thin the series", func(t *testing.T) {
		path := writeCSV(t, "p\n1\n2\n3\n4\n5\n")
		prices, err := LoadPricesCSV(path, 0, 2, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 3, 5}, prices)
	})

	t.Run("should write a cache sidecar and reuse it", func(t *testing.T) {
		path := writeCSV(t, "p\n10\n20\n30\n")
		first, err := LoadPricesCSV(path, 0, 1, false)
		require.NoError(t, err)

		cachePath := cacheFileName(path)
		_, err = os.Stat(cachePath)
		require.NoError(t, err, "cache sidecar must exist after first load")

		// 原始文件换掉，带缓存读取仍返回旧数据，证明走的是缓存
		require.NoError(t, os.WriteFile(path, []byte("p\n999\n"), 0o644))
		cached, err := LoadPricesCSV(path, 0, 1, true)
		require.NoError(t, err)
		assert.Equal(t, first, cached)
	})

	t.Run("corrupted cache should fall back to the csv", func(t *testing.T) {
		path := writeCSV(t, "p\n10\n20\n")
		require.NoError(t, os.WriteFile(cacheFileName(path), []byte("xx"), 0o644))

		prices, err := LoadPricesCSV(path, 0, 1, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20}, prices)
	})

	t.Run("malformed data row should error", func(t *testing.T) {
		path := writeCSV(t, "p\n10\nabc\n")
		_, err := LoadPricesCSV(path, 0, 1, false)
		assert.Error(t, err)
	})

	t.Run("missing file or empty data should error", func(t *testing.T) {
		_, err := LoadPricesCSV(filepath.Join(t.TempDir(), "absent.csv"), 0, 1, false)
		assert.Error(t, err)

		path := writeCSV(t, "header\n")
		_, err = LoadPricesCSV(path, 0, 1, false)
		assert.Error(t, err)
	})
}
