package market

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoadPricesCSV 从 CSV 文件读取价格列
// column 指定价格所在的列（从 0 开始），step 用于抽稀（每 step 个点取一个）
// 首次读取后在同目录写入二进制缓存（.cache），useCache 为 true 时优先读缓存
func LoadPricesCSV(path string, column, step int, useCache bool) ([]float64, error) {
	if step < 1 {
		step = 1
	}
	cachePath := cacheFileName(path)

	if useCache {
		if prices, err := readPriceCache(cachePath); err == nil {
			logrus.WithField("cache", cachePath).Debug("loading prices from cache")
			return thin(prices, step), nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}

	prices := make([]float64, 0, len(records))
	for i, rec := range records {
		if column >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[column]), 64)
		if err != nil {
			if i == 0 {
				continue // 表头行
			}
			return nil, fmt.Errorf("parse price at line %d: %w", i+1, err)
		}
		prices = append(prices, v)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no price data in %s", path)
	}

	if err := writePriceCache(cachePath, prices); err != nil {
		// 缓存写失败不影响主流程
		logrus.WithError(err).Warn("failed to write price cache")
	}
	return thin(prices, step), nil
}

func cacheFileName(path string) string {
	if i := strings.LastIndex(path, "."); i > 0 {
		return path[:i] + ".cache"
	}
	return path + ".cache"
}

func thin(prices []float64, step int) []float64 {
	if step <= 1 {
		return prices
	}
	out := make([]float64, 0, len(prices)/step+1)
	for i := 0; i < len(prices); i += step {
		out = append(out, prices[i])
	}
	return out
}

// 缓存格式: 小端 uint64 长度 + 连续的小端 float64
func writePriceCache(path string, prices []float64) error {
	buf := make([]byte, 8+8*len(prices))
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(prices)))
	for i, p := range prices {
		binary.LittleEndian.PutUint64(buf[8+i*8:], math.Float64bits(p))
	}
	return os.WriteFile(path, buf, 0o644)
}

func readPriceCache(path string) ([]float64, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 {
		return nil, fmt.Errorf("cache file too short")
	}
	n := binary.LittleEndian.Uint64(buf[:8])
	if uint64(len(buf)-8) != n*8 {
		return nil, fmt.Errorf("cache file corrupted")
	}
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8+i*8:]))
	}
	return prices, nil
}
