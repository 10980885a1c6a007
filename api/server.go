package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbacktest/backtest"
	"bitbacktest/config"
	"bitbacktest/logger"
	"bitbacktest/market"
	"bitbacktest/strategy"
)

// Server 回测 HTTP API
type Server struct {
	engine    *gin.Engine
	settings  *config.Settings
	runLogger logger.IRunLogger
	port      int
}

// NewServer 创建 API 服务器
func NewServer(settings *config.Settings, runLogger logger.IRunLogger, port int) *Server {
	s := &Server{
		engine:    gin.New(),
		settings:  settings,
		runLogger: runLogger,
		port:      port,
	}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/api/health", s.handleHealth)
	s.engine.POST("/api/backtest", s.handleBacktest)
	s.engine.GET("/api/backtest/history", s.handleHistory)
	s.engine.GET("/api/backtest/statistics", s.handleStatistics)
}

// Engine 暴露给测试用
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run 阻塞启动
func (s *Server) Run() error {
	logrus.WithField("port", s.port).Info("starting api server")
	return s.engine.Run(fmt.Sprintf(":%d", s.port))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GeneratorSpec 随机游走数据生成参数
type GeneratorSpec struct {
	StartPrice float64 `json:"start_price"`
	PriceRange float64 `json:"price_range"`
	Length     int     `json:"length"`
	Seed       int64   `json:"seed"`
}

// BacktestRequest 回测请求
// 价格数据二选一：直接给 prices，或给 generator 生成随机游走
type BacktestRequest struct {
	Strategy   string         `json:"strategy" binding:"required"`
	Params     map[string]any `json:"params" binding:"required"`
	StartCash  float64        `json:"start_cash"`
	StartCoin  float64        `json:"start_coin"`
	Prices     []float64      `json:"prices"`
	Generator  *GeneratorSpec `json:"generator"`
	HoldParams []string       `json:"hold_params"`
}

// BacktestResponse 回测结果
type BacktestResponse struct {
	RunID        string               `json:"run_id"`
	Strategy     string               `json:"strategy"`
	Ticks        int                  `json:"ticks"`
	Portfolio    market.Portfolio     `json:"portfolio"`
	BuySignals   int                  `json:"buy_signals"`
	SellSignals  int                  `json:"sell_signals"`
	ExecutedBuys int                  `json:"executed_buys"`
	ExecutedSell int                  `json:"executed_sells"`
	HoldSeries   map[string][]float64 `json:"hold_series,omitempty"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	prices := req.Prices
	if len(prices) == 0 {
		if req.Generator == nil || req.Generator.Length <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "either prices or generator is required",
				"code":  "NO_PRICE_DATA",
			})
			return
		}
		g := req.Generator
		prices = market.RandomWalk(g.StartPrice, g.PriceRange, g.Length, g.Seed)
	}

	mkt := market.NewBacktestMarket(prices)
	strat, err := strategy.New(req.Strategy, mkt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "UNKNOWN_STRATEGY"})
		return
	}

	bt := backtest.New(strat, mkt, s.settings)
	bt.HoldParams = req.HoldParams
	if err := bt.ResetAll(strategy.Params(req.Params), req.StartCash, req.StartCoin); err != nil {
		// 配置错误在进入 tick 循环之前就中止
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_PARAMS"})
		return
	}

	started := time.Now()
	portfolio, err := bt.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "BACKTEST_FAILED"})
		return
	}

	hist := bt.History()
	resp := BacktestResponse{
		RunID:        uuid.NewString(),
		Strategy:     strat.Name(),
		Ticks:        len(prices),
		Portfolio:    portfolio,
		BuySignals:   len(hist.Signals[market.SideBuy]),
		SellSignals:  len(hist.Signals[market.SideSell]),
		ExecutedBuys: len(hist.ExecuteSignals[market.SideBuy]),
		ExecutedSell: len(hist.ExecuteSignals[market.SideSell]),
		HoldSeries:   bt.HoldSeries(),
	}

	if s.runLogger != nil {
		record := &logger.RunRecord{
			Timestamp:    time.Now().UTC(),
			RunID:        resp.RunID,
			Strategy:     resp.Strategy,
			Params:       req.Params,
			StartCash:    req.StartCash,
			StartCoin:    req.StartCoin,
			Ticks:        resp.Ticks,
			Portfolio:    portfolio,
			BuySignals:   resp.BuySignals,
			SellSignals:  resp.SellSignals,
			ExecutedBuys: resp.ExecutedBuys,
			ExecutedSell: resp.ExecutedSell,
			DurationMs:   time.Since(started).Milliseconds(),
		}
		if err := s.runLogger.LogRun(record); err != nil {
			logrus.WithError(err).Warn("failed to persist run record")
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.runLogger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run logger not configured", "code": "HISTORY_UNAVAILABLE"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "code": "INVALID_LIMIT"})
			return
		}
		limit = n
	}
	records, err := s.runLogger.GetLatestRecords(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "HISTORY_READ_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) handleStatistics(c *gin.Context) {
	if s.runLogger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run logger not configured", "code": "STATISTICS_UNAVAILABLE"})
		return
	}
	stats, err := s.runLogger.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "STATISTICS_FAILED"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
