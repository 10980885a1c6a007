package manager

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"bitbacktest/config"
	"bitbacktest/market"
	"bitbacktest/store"
	"bitbacktest/strategy"
)

// LiveRunner 实盘单 tick 激活器
// 一次激活 = 读持久化状态 -> 跑恰好一个 tick 的信号/执行 -> 写回状态
// 写回带版本条件：两次激活重叠时后写的一方收到 ErrActivationConflict，
// 由调用方决定是否重跑，避免静默丢失状态更新
type LiveRunner struct {
	key     string
	st      store.Store
	strat   strategy.Strategy
	mkt     market.Market
	limiter *strategy.TradeLimiter
	log     *logrus.Entry
}

// ErrActivationConflict 本次激活与另一次重叠，状态写回被拒绝
// 此时订单可能已经发出，重跑前应先人工确认
var ErrActivationConflict = errors.New("live activation overlapped, state not saved")

// NewLiveRunner 创建激活器
// 策略的静态参数必须在调用 RunOnce 之前通过 ResetParam 设置好
func NewLiveRunner(key string, st store.Store, strat strategy.Strategy, settings *config.Settings) *LiveRunner {
	mkt := strat.Market()
	return &LiveRunner{
		key:     key,
		st:      st,
		strat:   strat,
		mkt:     mkt,
		limiter: strategy.NewTradeLimiter(settings, mkt),
		log: logrus.WithFields(logrus.Fields{
			"key":      key,
			"strategy": strat.Name(),
		}),
	}
}

// RunOnce 执行一次激活，返回本 tick 产生的信号
func (r *LiveRunner) RunOnce() (strategy.Signal, error) {
	state, version, err := r.st.Read(r.key)
	if err != nil {
		// 持久化数据损坏时退回全新默认状态，而不是带着半截数据继续跑
		r.log.WithError(err).Warn("failed to read dynamic state, starting fresh")
	} else if state != nil {
		if err := r.strat.Restore(state); err != nil {
			r.log.WithError(err).Warn("failed to restore dynamic state, starting fresh")
		}
	}

	price, err := r.mkt.GetCurrentPrice()
	if err != nil {
		return strategy.SignalHold, fmt.Errorf("get current price: %w", err)
	}

	sig := r.strat.GenerateSignal(price)
	if r.limiter.Allow() {
		r.strat.ExecuteTrade(price, sig)
	}

	if err := r.st.Write(r.key, r.strat.Snapshot(), version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return sig, ErrActivationConflict
		}
		return sig, fmt.Errorf("save dynamic state: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"price":  price,
		"signal": sig,
	}).Info("live tick completed")
	return sig, nil
}
