package backtest

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"bitbacktest/config"
	"bitbacktest/market"
	"bitbacktest/strategy"
)

// GridBacktest 顺序跑完一组候选参数
// 每个候选都从 ResetAll 开始，互相之间没有任何状态残留
func (b *Backtester) GridBacktest(paramSets []strategy.Params, startCash, startCoin float64) ([]market.Portfolio, error) {
	results := make([]market.Portfolio, 0, len(paramSets))
	for i, p := range paramSets {
		b.log.WithFields(logrus.Fields{
			"run":   i + 1,
			"total": len(paramSets),
		}).Info("running grid backtest")
		if err := b.ResetAll(p, startCash, startCoin); err != nil {
			return nil, err
		}
		pf, err := b.Run()
		if err != nil {
			return nil, err
		}
		results = append(results, pf)
	}
	return results, nil
}

// Factory 为并行回测构建一对全新的策略/市场实例
// 并行运行之间禁止共享任何可变状态，每个 goroutine 都必须拿到独立实例
type Factory func() (strategy.Strategy, *market.BacktestMarket, error)

// ParallelGridBacktest 并行跑一组候选参数
// 单次回测内部仍是严格单线程，这里只在 "一次完整回测" 的粒度上并行
func ParallelGridBacktest(factory Factory, settings *config.Settings, paramSets []strategy.Params, startCash, startCoin float64) ([]market.Portfolio, error) {
	results := make([]market.Portfolio, len(paramSets))
	errs := make([]error, len(paramSets))

	var wg sync.WaitGroup
	for i, p := range paramSets {
		wg.Add(1)
		go func(i int, p strategy.Params) {
			defer wg.Done()
			strat, mkt, err := factory()
			if err != nil {
				errs[i] = err
				return
			}
			bt := New(strat, mkt, settings)
			if err := bt.ResetAll(p, startCash, startCoin); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = bt.Run()
		}(i, p)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

// Objective 把回测结果转成黑盒优化器的目标值
// 优化器做最小化，因此取最终市值的相反数
func Objective(p market.Portfolio) float64 {
	return -p.TotalValue
}

// Evaluate 优化器协作边界：一次 ResetAll + 完整回测，返回目标值
// 相同 (价格序列, 参数, 起始资金) 必然得到相同结果，否则参数搜索无意义
func (b *Backtester) Evaluate(p strategy.Params, startCash, startCoin float64) (float64, error) {
	if err := b.ResetAll(p, startCash, startCoin); err != nil {
		return 0, err
	}
	pf, err := b.Run()
	if err != nil {
		return 0, err
	}
	return Objective(pf), nil
}
