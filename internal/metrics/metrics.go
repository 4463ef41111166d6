package metrics

import (
	"math"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/logger"
)

// OperationRecord is one completed operation as the collector sees it.
type OperationRecord struct {
	ID          string        `json:"id"`
	Token       string        `json:"token"`
	Symbol      string        `json:"symbol"`
	ProfitUSD   float64       `json:"profit_usd"`
	ReturnFrac  float64       `json:"return_frac"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Success     bool          `json:"success"`
	ExitReason  string        `json:"exit_reason"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Collector accumulates per-operation results into session statistics.
// Histories are capped so a long-running session holds bounded memory.
type Collector struct {
	mu  sync.Mutex
	cfg config.MetricsConfig
	now func() time.Time

	records []OperationRecord
	returns []float64

	netProfit   float64
	peakEquity  float64
	maxDrawdown float64
	holdTotal   time.Duration
	wins        int
	total       int
}

func New(cfg config.MetricsConfig) *Collector {
	return &Collector{
		cfg:        cfg,
		now:        time.Now,
		peakEquity: cfg.StartingCapital,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Collector) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Record folds one completed operation into the running statistics.
func (c *Collector) Record(rec OperationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = c.now()
	}
	c.total++
	if rec.Success {
		c.wins++
	}
	c.netProfit += rec.ProfitUSD
	c.holdTotal += rec.Duration

	equity := c.cfg.StartingCapital + c.netProfit
	if equity > c.peakEquity {
		c.peakEquity = equity
	}
	if c.peakEquity > 0 {
		if dd := (c.peakEquity - equity) / c.peakEquity; dd > c.maxDrawdown {
			c.maxDrawdown = dd
		}
	}

	c.records = append(c.records, rec)
	if len(c.records) > c.cfg.HistoryCap {
		c.records = c.records[len(c.records)-c.cfg.HistoryCap:]
	}
	c.returns = append(c.returns, rec.ReturnFrac)
	if len(c.returns) > c.cfg.ReturnsCap {
		c.returns = c.returns[len(c.returns)-c.cfg.ReturnsCap:]
	}

	logger.Infof("operation recorded: %s %+.2f USD (%s), session net %+.2f",
		rec.Symbol, rec.ProfitUSD, rec.ExitReason, c.netProfit)
}

// Summary is the session-level statistics snapshot.
type Summary struct {
	TotalOperations int     `json:"total_operations"`
	Wins            int     `json:"wins"`
	WinRate         float64 `json:"win_rate"`
	NetProfitUSD    float64 `json:"net_profit_usd"`
	AvgProfitUSD    float64 `json:"avg_profit_usd"`
	Equity          float64 `json:"equity"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	AvgHoldMinutes  float64 `json:"avg_hold_minutes"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	OpsLastHour     int     `json:"ops_last_hour"`
	OpsLastDay      int     `json:"ops_last_day"`
	ProfitLastHour  float64 `json:"profit_last_hour"`
	ProfitLastDay   float64 `json:"profit_last_day"`
}

// Summarize computes the current snapshot.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalOperations: c.total,
		Wins:            c.wins,
		NetProfitUSD:    c.netProfit,
		Equity:          c.cfg.StartingCapital + c.netProfit,
		MaxDrawdown:     c.maxDrawdown,
		SharpeRatio:     sharpe(c.returns),
	}
	if c.peakEquity > 0 {
		if dd := (c.peakEquity - s.Equity) / c.peakEquity; dd > 0 {
			s.CurrentDrawdown = dd
		}
	}
	if c.total > 0 {
		s.WinRate = float64(c.wins) / float64(c.total)
		s.AvgProfitUSD = c.netProfit / float64(c.total)
		s.AvgHoldMinutes = c.holdTotal.Minutes() / float64(c.total)
	}

	now := c.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	for _, rec := range c.records {
		if rec.CompletedAt.After(dayAgo) {
			s.OpsLastDay++
			s.ProfitLastDay += rec.ProfitUSD
			if rec.CompletedAt.After(hourAgo) {
				s.OpsLastHour++
				s.ProfitLastHour += rec.ProfitUSD
			}
		}
	}
	return s
}

// sharpe is the mean over standard deviation of the recorded returns. Not
// annualized: operations are minutes long and the ratio is only compared
// against itself across sessions.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// History returns a copy of the retained operation records, newest last.
func (c *Collector) History() []OperationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OperationRecord, len(c.records))
	copy(out, c.records)
	return out
}
