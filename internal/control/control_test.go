package control

import (
	"sync"
	"testing"
	"time"

	"blitz/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
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

type fundsSpy struct {
	mu    sync.Mutex
	taxed []float64
}

func (f *fundsSpy) ApplyTax(profit float64) float64 {
	f.mu.Lock()
	f.taxed = append(f.taxed, profit)
	f.mu.Unlock()
	return profit * 0.9
}

func newTestControl(t *testing.T) (*Control, *fakeClock, *fundsSpy) {
	t.Helper()
	cfg := config.Default().Control
	clock := newFakeClock()
	funds := &fundsSpy{}
	c := New(cfg, funds)
	c.SetClock(clock.Now)
	return c, clock, funds
}

// runOperation starts and settles one operation, advancing the clock past
// the minimum spacing afterwards.
func runOperation(t *testing.T, c *Control, clock *fakeClock, profit float64, success bool) {
	t.Helper()
	require.NoError(t, c.StartOperation())
	require.NoError(t, c.CompleteOperation(profit, success))
	clock.Advance(56 * time.Minute)
}

func TestCheckConditionsFreshSession(t *testing.T) {
	c, _, _ := newTestControl(t)
	assert.NoError(t, c.CheckConditions())
}

func TestHoldTimeSpacing(t *testing.T) {
	c, clock, _ := newTestControl(t)
	require.NoError(t, c.StartOperation())
	require.NoError(t, c.CompleteOperation(1.0, true))

	assert.ErrorIs(t, c.CheckConditions(), ErrHoldTimeViolation)

	clock.Advance(54 * time.Minute)
	assert.ErrorIs(t, c.CheckConditions(), ErrHoldTimeViolation)

	clock.Advance(2 * time.Minute)
	assert.NoError(t, c.CheckConditions())
}

func TestWalletRotationAfterThreeOperations(t *testing.T) {
	c, clock, _ := newTestControl(t)
	for i := 0; i < 3; i++ {
		runOperation(t, c, clock, 1.0, true)
	}
	assert.ErrorIs(t, c.CheckConditions(), ErrWalletRotationRequired)
	assert.ErrorIs(t, c.StartOperation(), ErrWalletRotationRequired)
	assert.Equal(t, 0, c.RemainingOperations())

	c.RotateWallet()
	assert.NoError(t, c.CheckConditions())
	assert.Equal(t, 3, c.RemainingOperations())
	assert.Equal(t, 2, c.Statistics().CurrentWallet)
}

func TestCooldownAfterConsecutiveLosses(t *testing.T) {
	cfg := config.Default().Control
	cfg.LossCooldownMinutes = 120
	clock := newFakeClock()
	c := New(cfg, nil)
	c.SetClock(clock.Now)

	for i := 0; i < 2; i++ {
		runOperation(t, c, clock, -0.5, false)
	}
	assert.NoError(t, c.CheckConditions())

	c.RotateWallet() // third op would hit the per-wallet cap first
	require.NoError(t, c.StartOperation())
	require.NoError(t, c.CompleteOperation(-0.5, false))

	// Past the spacing rule the cooldown is still holding the gate.
	clock.Advance(56 * time.Minute)
	assert.ErrorIs(t, c.CheckConditions(), ErrCoolDownPeriod)
	assert.ErrorIs(t, c.StartOperation(), ErrCoolDownPeriod)

	// Expiry is evaluated lazily at read time.
	clock.Advance(70 * time.Minute)
	assert.NoError(t, c.CheckConditions())
}

func TestWinResetsLossStreak(t *testing.T) {
	c, clock, _ := newTestControl(t)
	runOperation(t, c, clock, -0.5, false)
	runOperation(t, c, clock, -0.5, false)
	runOperation(t, c, clock, 2.0, true)
	assert.Equal(t, 0, c.Statistics().CurrentLossStreak)
	assert.NoError(t, c.CheckConditions())
}

func TestPsychologyTaxExactAmount(t *testing.T) {
	c, clock, funds := newTestControl(t)
	before := c.Statistics().PsychologyFund
	runOperation(t, c, clock, 10.0, true)
	after := c.Statistics().PsychologyFund

	assert.InDelta(t, 1.0, after-before, 1e-9) // 10% of 10.0
	require.Len(t, funds.taxed, 1)
	assert.InDelta(t, 10.0, funds.taxed[0], 1e-9)
}

func TestLossIsNotTaxed(t *testing.T) {
	c, clock, funds := newTestControl(t)
	before := c.Statistics().PsychologyFund
	runOperation(t, c, clock, -3.0, false)
	assert.Equal(t, before, c.Statistics().PsychologyFund)
	assert.Empty(t, funds.taxed)
}

func TestValidateBattlefield(t *testing.T) {
	c, _, _ := newTestControl(t)

	assert.NoError(t, c.ValidateBattlefield(5000, 200))

	var bfErr *BattlefieldValidationError
	assert.ErrorAs(t, c.ValidateBattlefield(1500, 200), &bfErr)
	assert.ErrorAs(t, c.ValidateBattlefield(15000, 200), &bfErr)
	assert.ErrorAs(t, c.ValidateBattlefield(5000, 20), &bfErr)
	assert.ErrorAs(t, c.ValidateBattlefield(5000, 800), &bfErr)
}

func TestStartOperationExclusive(t *testing.T) {
	c, _, _ := newTestControl(t)
	require.NoError(t, c.StartOperation())
	assert.ErrorIs(t, c.StartOperation(), ErrOperationInProgress)
}

func TestCompleteWithoutActiveOperation(t *testing.T) {
	c, _, _ := newTestControl(t)
	assert.ErrorIs(t, c.CompleteOperation(1.0, true), ErrNoActiveOperation)
}

func TestAbortOperationReturnsWalletSlot(t *testing.T) {
	c, _, _ := newTestControl(t)
	require.NoError(t, c.StartOperation())
	require.NoError(t, c.AbortOperation())

	st := c.Statistics()
	assert.Equal(t, 0, st.TotalOperations)
	assert.Equal(t, 0, st.OperationsThisWallet)
	assert.False(t, st.OperationActive)
	// No trade happened, so the spacing rule must not arm.
	assert.NoError(t, c.CheckConditions())
}

func TestMEVWarning(t *testing.T) {
	c, clock, _ := newTestControl(t)
	assert.False(t, c.HasMEVWarning())
	runOperation(t, c, clock, -1, false)
	runOperation(t, c, clock, -1, false)
	assert.True(t, c.HasMEVWarning())
}
