package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 预留的环境变量键
const (
	EnvTradeEnable = "TRADE_ENABLE"
	EnvOrderNumMax = "ORDER_NUM_MAX"

	// DefaultOrderNumMax 未配置时的挂单数量上限（回测默认不限制）
	DefaultOrderNumMax = 99999
)

// Settings 进程启动时构建一次的全局配置
// 显式传引用给 Trade Policy 和回测循环，核心代码不读环境变量
type Settings struct {
	TradeEnable bool           // 交易总开关（kill switch）
	OrderNumMax int            // 允许的最大挂单数量
	Values      map[string]any // 其余标量参数：能解析成数字的按 float64 存，否则存字符串
}

// Load 加载配置
// 先尝试读取 .env（不存在则忽略），再合并进程环境变量
func Load() *Settings {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	s := &Settings{
		TradeEnable: true,
		OrderNumMax: DefaultOrderNumMax,
		Values:      map[string]any{},
	}

	if v, ok := os.LookupEnv(EnvTradeEnable); ok {
		s.TradeEnable = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv(EnvOrderNumMax); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.OrderNumMax = n
		} else {
			logrus.WithField("value", v).Warn("invalid ORDER_NUM_MAX, using default")
		}
	}
	return s
}

// ParamsFromEnv 收集带前缀的环境变量作为策略静态参数
// 键名去掉前缀并转小写，值能解析为数字时存 float64，否则原样存字符串
// 例: STRATEGY_SHORT_WINDOW=30 -> {"short_window": 30.0}
func ParamsFromEnv(prefix string) map[string]any {
	params := map[string]any{}
	for _, kv := range os.Environ() {
		i := strings.Index(kv, "=")
		if i < 0 {
			continue
		}
		key, value := kv[:i], kv[i+1:]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		if name == "" {
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[name] = f
		} else {
			params[name] = value
		}
	}
	return params
}
