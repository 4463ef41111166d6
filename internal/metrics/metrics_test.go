package metrics

import (
	"fmt"
	"testing"
	"time"

	"blitz/internal/config"

	"github.com/stretchr/testify/assert"
)

func newTestCollector() (*Collector, *time.Time) {
	c := New(config.Default().Metrics)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func record(profit float64, ret float64) OperationRecord {
	return OperationRecord{
		ID:         fmt.Sprintf("op-%f-%f", profit, ret),
		Symbol:     "TOK",
		ProfitUSD:  profit,
		ReturnFrac: ret,
		Success:    profit > 0,
		ExitReason: "take profit",
		Duration:   20 * time.Minute,
	}
}

func TestEmptySummary(t *testing.T) {
	c, _ := newTestCollector()
	s := c.Summarize()
	assert.Equal(t, 0, s.TotalOperations)
	assert.Equal(t, 0.0, s.WinRate)
	assert.InDelta(t, 20.0, s.Equity, 1e-9)
	assert.Equal(t, 0.0, s.SharpeRatio)
}

func TestWinRateAndNetProfit(t *testing.T) {
	c, _ := newTestCollector()
	c.Record(record(2.0, 0.4))
	c.Record(record(-1.0, -0.2))
	c.Record(record(3.0, 0.6))

	s := c.Summarize()
	assert.Equal(t, 3, s.TotalOperations)
	assert.Equal(t, 2, s.Wins)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)
	assert.InDelta(t, 4.0, s.NetProfitUSD, 1e-9)
	assert.InDelta(t, 4.0/3.0, s.AvgProfitUSD, 1e-9)
	assert.InDelta(t, 24.0, s.Equity, 1e-9)
}

func TestMaxDrawdownFromPeak(t *testing.T) {
	c, _ := newTestCollector()
	c.Record(record(5.0, 1.0))  // equity 25, peak 25
	c.Record(record(-5.0, -1.0)) // equity 20, drawdown 5/25
	c.Record(record(10.0, 2.0)) // recovery does not shrink the max

	s := c.Summarize()
	assert.InDelta(t, 0.2, s.MaxDrawdown, 1e-9)
}

func TestCurrentDrawdownTracksRecovery(t *testing.T) {
	c, _ := newTestCollector()
	c.Record(record(5.0, 1.0))   // equity 25, peak 25
	c.Record(record(-5.0, -1.0)) // equity 20

	s := c.Summarize()
	assert.InDelta(t, 0.2, s.CurrentDrawdown, 1e-9)
	assert.InDelta(t, 0.2, s.MaxDrawdown, 1e-9)

	// Partial recovery shrinks the current drawdown but never the max.
	c.Record(record(3.0, 0.6)) // equity 23
	s = c.Summarize()
	assert.InDelta(t, 0.08, s.CurrentDrawdown, 1e-9)
	assert.InDelta(t, 0.2, s.MaxDrawdown, 1e-9)
	assert.GreaterOrEqual(t, s.MaxDrawdown, s.CurrentDrawdown)
}

func TestAvgHoldMinutes(t *testing.T) {
	c, _ := newTestCollector()
	short := record(1.0, 0.1)
	short.Duration = 10 * time.Minute
	long := record(2.0, 0.2)
	long.Duration = 30 * time.Minute
	c.Record(short)
	c.Record(long)
	assert.InDelta(t, 20.0, c.Summarize().AvgHoldMinutes, 1e-9)
}

func TestRecordKeepsPrices(t *testing.T) {
	c, _ := newTestCollector()
	rec := record(1.0, 0.1)
	rec.EntryPrice = 0.001
	rec.ExitPrice = 0.0012
	c.Record(rec)

	got := c.History()[0]
	assert.InDelta(t, 0.001, got.EntryPrice, 1e-12)
	assert.InDelta(t, 0.0012, got.ExitPrice, 1e-12)
}

func TestSharpeRatio(t *testing.T) {
	c, _ := newTestCollector()
	c.Record(record(1.0, 0.1))
	c.Record(record(1.0, 0.3))

	// mean 0.2, sample std 0.1414...
	s := c.Summarize()
	assert.InDelta(t, 1.4142, s.SharpeRatio, 1e-3)
}

func TestSharpeZeroVariance(t *testing.T) {
	c, _ := newTestCollector()
	c.Record(record(1.0, 0.1))
	c.Record(record(1.0, 0.1))
	assert.Equal(t, 0.0, c.Summarize().SharpeRatio)
}

func TestRollingWindows(t *testing.T) {
	c, nowPtr := newTestCollector()
	base := *nowPtr

	old := record(1.0, 0.1)
	old.CompletedAt = base.Add(-25 * time.Hour)
	c.Record(old)

	recent := record(2.0, 0.2)
	recent.CompletedAt = base.Add(-2 * time.Hour)
	c.Record(recent)

	fresh := record(3.0, 0.3)
	fresh.CompletedAt = base.Add(-10 * time.Minute)
	c.Record(fresh)

	s := c.Summarize()
	assert.Equal(t, 1, s.OpsLastHour)
	assert.InDelta(t, 3.0, s.ProfitLastHour, 1e-9)
	assert.Equal(t, 2, s.OpsLastDay)
	assert.InDelta(t, 5.0, s.ProfitLastDay, 1e-9)
}

func TestHistoryCaps(t *testing.T) {
	cfg := config.Default().Metrics
	cfg.HistoryCap = 10
	cfg.ReturnsCap = 5
	c := New(cfg)
	for i := 0; i < 50; i++ {
		c.Record(record(1.0, 0.1))
	}
	assert.Len(t, c.History(), 10)
	assert.Equal(t, 50, c.Summarize().TotalOperations)
}
