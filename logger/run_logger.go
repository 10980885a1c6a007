package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bitbacktest/market"
)

// RunRecord 一次回测运行的记录
type RunRecord struct {
	Timestamp    time.Time        `json:"timestamp"`               // 运行结束时间
	RunID        string           `json:"run_id"`                  // 运行标识
	Strategy     string           `json:"strategy"`                // 策略名
	Params       map[string]any   `json:"params"`                  // 静态参数
	StartCash    float64          `json:"start_cash"`              // 起始现金
	StartCoin    float64          `json:"start_coin"`              // 起始持仓
	Ticks        int              `json:"ticks"`                   // 回放的 tick 数
	Portfolio    market.Portfolio `json:"portfolio"`               // 最终组合
	BuySignals   int              `json:"buy_signals"`             // 原始买入信号数
	SellSignals  int              `json:"sell_signals"`            // 原始卖出信号数
	ExecutedBuys int              `json:"executed_buys"`           // 成交买入数
	ExecutedSell int              `json:"executed_sells"`          // 成交卖出数
	DurationMs   int64            `json:"duration_ms,omitempty"`   // 运行耗时（毫秒）
	ErrorMessage string           `json:"error_message,omitempty"` // 失败原因
}

// Statistics 运行记录的汇总统计
type Statistics struct {
	TotalRuns      int     `json:"total_runs"`
	TotalTrades    uint64  `json:"total_trades"`
	BestTotalValue float64 `json:"best_total_value"`
	AvgTotalValue  float64 `json:"avg_total_value"`
}

// IRunLogger 运行记录器接口
type IRunLogger interface {
	// LogRun 追加一条运行记录
	LogRun(record *RunRecord) error
	// GetLatestRecords 获取最近 N 条记录（按时间正序：从旧到新）
	GetLatestRecords(n int) ([]*RunRecord, error)
	// GetStatistics 汇总全部记录
	GetStatistics() (*Statistics, error)
}

// RunLogger 按天分文件的 JSONL 运行记录器
type RunLogger struct {
	dir string
	mu  sync.Mutex
}

// NewRunLogger 创建记录器，目录不存在时自动创建
func NewRunLogger(dir string) *RunLogger {
	os.MkdirAll(dir, 0o755)
	return &RunLogger{dir: dir}
}

func (l *RunLogger) fileForDate(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("runs_%s.jsonl", t.Format("2006-01-02")))
}

// LogRun 实现 IRunLogger
func (l *RunLogger) LogRun(record *RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	f, err := os.OpenFile(l.fileForDate(record.Timestamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

func (l *RunLogger) logFiles() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "runs_") && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Strings(files) // 文件名含日期，字典序即时间序
	return files, nil
}

func readRecords(path string) ([]*RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// 坏行跳过，不让单条损坏记录拖垮整个查询
			continue
		}
		records = append(records, &r)
	}
	return records, scanner.Err()
}

// GetLatestRecords 实现 IRunLogger
func (l *RunLogger) GetLatestRecords(n int) ([]*RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []*RunRecord
	// 从最新的文件往回收集，攒够 n 条为止
	for i := len(files) - 1; i >= 0 && len(all) < n; i-- {
		records, err := readRecords(files[i])
		if err != nil {
			return nil, err
		}
		all = append(records, all...)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// GetStatistics 实现 IRunLogger
func (l *RunLogger) GetStatistics() (*Statistics, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	stats := &Statistics{}
	sum := 0.0
	for _, path := range files {
		records, err := readRecords(path)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			stats.TotalRuns++
			stats.TotalTrades += r.Portfolio.TradeCount
			sum += r.Portfolio.TotalValue
			if r.Portfolio.TotalValue > stats.BestTotalValue {
				stats.BestTotalValue = r.Portfolio.TotalValue
			}
		}
	}
	if stats.TotalRuns > 0 {
		stats.AvgTotalValue = sum / float64(stats.TotalRuns)
	}
	return stats, nil
}
