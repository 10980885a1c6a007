package market

import "math/rand"

// RandomWalk 生成随机游走价格序列
// 每个点在前一个点的基础上乘以 1 + U(-priceRange, +priceRange)
// 相同 seed 生成完全一致的序列，保证回测可复现
func RandomWalk(startPrice, priceRange float64, length int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	price := startPrice
	data := make([]float64, 0, length)
	for i := 0; i < length; i++ {
		price *= 1 + (rng.Float64()*2-1)*priceRange
		data = append(data, price)
	}
	return data
}
