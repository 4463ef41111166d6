package mining

import (
	"sync"
	"testing"
	"time"

	"blitz/internal/config"
	"blitz/internal/exitplan"
	"blitz/internal/types"
	"blitz/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestEngine() (*Engine, *wallet.Wallet, *fakeClock) {
	cfg := config.Default()
	funds := wallet.New(cfg.Wallet, cfg.Control.PsychologyTaxRate)
	e := New(cfg.Mining, funds)
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e.SetClock(clock.Now)
	return e, funds, clock
}

func testToken() types.TokenData {
	return types.TokenData{
		Address:    "tok",
		Symbol:     "TOK",
		AgeMinutes: 12,
		Liquidity:  5000,
		Holders:    200,
		EntryPrice: 0.001,
		Volume24h:  10000,
	}
}

func TestEntryOrderSizing(t *testing.T) {
	e, funds, _ := newTestEngine()

	order, err := e.EntryOrder(testToken())
	require.NoError(t, err)

	// 80% of the 4.0 lightning bucket.
	assert.InDelta(t, 3.2, order.AmountUSD, 1e-9)
	assert.Equal(t, "raydium", order.Venue)
	assert.InDelta(t, 3.5, order.SlippagePct, 1e-9)
	assert.InDelta(t, 0.8, funds.Balance(wallet.BucketLightning), 1e-9)
	assert.InDelta(t, 0.001, e.EntryPrice(), 1e-12)
}

func TestPriorityFeeScaling(t *testing.T) {
	e, _, _ := newTestEngine()

	base := testToken() // age 12, volume 10000: no multipliers
	assert.InDelta(t, 0.001, e.PriorityFee(base), 1e-9)

	hot := base
	hot.Volume24h = 60000
	assert.InDelta(t, 0.002, e.PriorityFee(hot), 1e-9)

	warm := base
	warm.Volume24h = 30000
	assert.InDelta(t, 0.0015, e.PriorityFee(warm), 1e-9)

	fresh := base
	fresh.AgeMinutes = 3
	assert.InDelta(t, 0.0018, e.PriorityFee(fresh), 1e-9)

	young := base
	young.AgeMinutes = 8
	assert.InDelta(t, 0.0013, e.PriorityFee(young), 1e-9)

	// Multipliers stack.
	frenzied := base
	frenzied.Volume24h = 60000
	frenzied.AgeMinutes = 2
	assert.InDelta(t, 0.0036, e.PriorityFee(frenzied), 1e-9)
}

func TestReentryGates(t *testing.T) {
	e, _, clock := newTestEngine()
	_, err := e.EntryOrder(testToken())
	require.NoError(t, err)

	// Below the +15% threshold: no reentry.
	_, ok := e.EvaluateReentry(0.00114)
	assert.False(t, ok)

	// Above the threshold: first reentry fires.
	order, ok := e.EvaluateReentry(0.00116)
	require.True(t, ok)
	assert.InDelta(t, 2.7, order.AmountUSD, 1e-9) // 60% of the 4.5 reentry bucket
	assert.Equal(t, 1, e.Reentries())

	// Cooldown blocks an immediate second add.
	_, ok = e.EvaluateReentry(0.0013)
	assert.False(t, ok)

	clock.Advance(301 * time.Second)
	_, ok = e.EvaluateReentry(0.0013)
	require.True(t, ok)
	assert.Equal(t, 2, e.Reentries())

	// Cap reached.
	clock.Advance(301 * time.Second)
	_, ok = e.EvaluateReentry(0.002)
	assert.False(t, ok)
}

func TestShouldReenterIsPure(t *testing.T) {
	e, funds, _ := newTestEngine()
	_, err := e.EntryOrder(testToken())
	require.NoError(t, err)

	// Polling the predicate never commits capital or advances the count.
	before := funds.Balance(wallet.BucketReentry)
	for i := 0; i < 5; i++ {
		assert.True(t, e.ShouldReenter("tok", 0.00116, 0.001))
	}
	assert.Equal(t, 0, e.Reentries())
	assert.InDelta(t, before, funds.Balance(wallet.BucketReentry), 1e-9)

	assert.False(t, e.ShouldReenter("tok", 0.00114, 0.001), "below threshold")
	assert.False(t, e.ShouldReenter("tok", 1.0, 0), "no entry price")
}

func TestShouldReenterHonorsCapAndCooldown(t *testing.T) {
	e, _, clock := newTestEngine()
	_, err := e.EntryOrder(testToken())
	require.NoError(t, err)

	_, ok := e.EvaluateReentry(0.0012)
	require.True(t, ok)
	assert.False(t, e.ShouldReenter("tok", 0.0013, 0.001), "cooldown running")

	clock.Advance(301 * time.Second)
	assert.True(t, e.ShouldReenter("tok", 0.0013, 0.001))

	_, ok = e.EvaluateReentry(0.0013)
	require.True(t, ok)
	clock.Advance(301 * time.Second)
	assert.False(t, e.ShouldReenter("tok", 0.002, 0.001), "cap reached")
}

func TestExecuteAssemblesTradePlan(t *testing.T) {
	e, funds, _ := newTestEngine()

	plan, err := e.Execute(testToken())
	require.NoError(t, err)

	assert.InDelta(t, 3.2, plan.Entry.AmountUSD, 1e-9)
	assert.Equal(t, "raydium", plan.Entry.Venue)
	assert.InDelta(t, 0.8, funds.Balance(wallet.BucketLightning), 1e-9)

	assert.InDelta(t, 0.15, plan.Reentry.Threshold, 1e-9)
	assert.Equal(t, 2, plan.Reentry.MaxCount)
	assert.Equal(t, 300, plan.Reentry.CooldownSec)

	assert.InDelta(t, 0.95, plan.LP.Low, 1e-9)
	assert.InDelta(t, 1.25, plan.LP.High, 1e-9)
	assert.Equal(t, 10.0, plan.Risk.MaxSlippagePct)

	require.NotEmpty(t, plan.ExitLadder.Rungs)
	assert.InDelta(t, 0.15, plan.ExitLadder.Rungs[0].TriggerProfit, 1e-9)
}

func TestExecuteCarriesConfiguredLadder(t *testing.T) {
	e, _, _ := newTestEngine()
	e.SetLadder(exitplan.Ladder{ID: "tight", Rungs: []exitplan.Rung{
		{TriggerProfit: 0.10, ExitFraction: 0.5},
	}})

	plan, err := e.Execute(testToken())
	require.NoError(t, err)
	assert.Equal(t, "tight", plan.ExitLadder.ID)
	require.Len(t, plan.ExitLadder.Rungs, 1)
	assert.InDelta(t, 0.5, plan.ExitLadder.Rungs[0].ExitFraction, 1e-9)
}

func TestReentryRequiresOpenPosition(t *testing.T) {
	e, _, _ := newTestEngine()
	_, ok := e.EvaluateReentry(1.0)
	assert.False(t, ok)
}

func TestLPBand(t *testing.T) {
	e, _, _ := newTestEngine()
	_, err := e.EntryOrder(testToken())
	require.NoError(t, err)

	_, ok := e.LPEligible(0.001 * 0.90) // below the band
	assert.False(t, ok)

	alloc, ok := e.LPEligible(0.001 * 1.10)
	require.True(t, ok)
	assert.InDelta(t, 1.5, alloc, 1e-9) // 37.5% of the 4.0 tactical bucket

	_, ok = e.LPEligible(0.001 * 1.30) // above the band
	assert.False(t, ok)
}

func TestResetClearsPositionState(t *testing.T) {
	e, _, clock := newTestEngine()
	_, err := e.EntryOrder(testToken())
	require.NoError(t, err)
	_, ok := e.EvaluateReentry(0.0012)
	require.True(t, ok)

	e.Reset()
	assert.Equal(t, 0, e.Reentries())
	assert.Equal(t, 0.0, e.EntryPrice())
	clock.Advance(time.Hour)
	_, ok = e.EvaluateReentry(0.002)
	assert.False(t, ok, "no entry price, no reentry")
}

func TestRiskParams(t *testing.T) {
	e, _, _ := newTestEngine()
	rp := e.RiskParams()
	assert.Equal(t, 10.0, rp.MaxSlippagePct)
	assert.Equal(t, 0.25, rp.EmergencyThreshold)
	assert.Equal(t, 0.15, rp.StopLossFraction)
}
