package mining

import (
	"fmt"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/exitplan"
	"blitz/internal/gateway/exchange"
	"blitz/internal/logger"
	"blitz/internal/types"
	"blitz/internal/wallet"
)

// Risk limits applied to every order the engine emits.
const (
	maxSlippagePct     = 10.0
	emergencyThreshold = 0.25
	stopLossFraction   = 0.15
)

// Reentry and liquidity-provision price bands relative to entry.
const (
	lpBandLow  = 0.95 // entry -5%
	lpBandHigh = 1.25 // entry +25%
)

// Engine sizes entries, prices execution urgency and gates reentries for one
// position at a time.
type Engine struct {
	mu  sync.Mutex
	cfg config.MiningConfig
	now func() time.Time

	funds *wallet.Wallet

	ladder       exitplan.Ladder
	entryPrice   float64
	reentryCount int
	lastReentry  time.Time
}

func New(cfg config.MiningConfig, funds *wallet.Wallet) *Engine {
	return &Engine{cfg: cfg, now: time.Now, funds: funds, ladder: exitplan.DefaultLadder()}
}

// SetLadder swaps the take-profit ladder carried on future trade plans.
func (e *Engine) SetLadder(l exitplan.Ladder) {
	e.mu.Lock()
	e.ladder = l
	e.mu.Unlock()
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Reset rearms the engine for a new position.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entryPrice = 0
	e.reentryCount = 0
	e.lastReentry = time.Time{}
}

// EntryOrder builds the initial buy for a candidate. Capital comes from the
// lightning bucket at the configured ratio; the allocation is actually
// withdrawn, so a failed order must be Returned by the caller.
func (e *Engine) EntryOrder(token types.TokenData) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entryOrderLocked(token)
}

func (e *Engine) entryOrderLocked(token types.TokenData) (exchange.Order, error) {
	size := e.funds.PositionSize(e.cfg.PositionSizeRatio)
	if size <= 0 {
		return exchange.Order{}, fmt.Errorf("lightning bucket empty, cannot size entry")
	}
	amount, err := e.funds.Allocate(wallet.BucketLightning, size)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("entry allocation failed: %w", err)
	}
	e.entryPrice = token.EntryPrice

	order := exchange.Order{
		Token:       token.Address,
		Symbol:      token.Symbol,
		Venue:       e.cfg.PreferredVenue,
		AmountUSD:   amount,
		SlippagePct: e.slippageLocked(),
		PriorityFee: e.priorityFeeLocked(token),
	}
	logger.Infof("entry order sized: %s %.2f USD on %s (slippage %.1f%%, fee %.4f)",
		token.Symbol, amount, order.Venue, order.SlippagePct, order.PriorityFee)
	return order, nil
}

func (e *Engine) slippageLocked() float64 {
	if e.cfg.DefaultSlippage > maxSlippagePct {
		return maxSlippagePct
	}
	return e.cfg.DefaultSlippage
}

// priorityFeeLocked scales the base fee by how contested the token is likely
// to be: heavy volume or a very young launch both mean more competing bots.
func (e *Engine) priorityFeeLocked(token types.TokenData) float64 {
	fee := e.cfg.PriorityFeeBase
	switch {
	case token.Volume24h > 50000:
		fee *= 2.0
	case token.Volume24h > 20000:
		fee *= e.cfg.PriorityFeeFactor
	}
	switch {
	case token.AgeMinutes < 5:
		fee *= 1.8
	case token.AgeMinutes < 10:
		fee *= 1.3
	}
	return fee
}

// ReentryConditions snapshots the gates every add must clear.
type ReentryConditions struct {
	Threshold   float64 `json:"threshold"`
	MaxCount    int     `json:"max_count"`
	CooldownSec int     `json:"cooldown_sec"`
}

// LPBand is the price band, relative to entry, where providing liquidity pays.
type LPBand struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// TradeExecution is the complete plan for one operation: the sized entry
// order plus the reentry gates, liquidity band, take-profit ladder and hard
// risk limits that govern it. The caller mirrors ExitLadder into the exit
// system when the entry fills.
type TradeExecution struct {
	Entry      exchange.Order
	Reentry    ReentryConditions
	LP         LPBand
	ExitLadder exitplan.Ladder
	Risk       RiskParams
}

// Execute sizes the entry for a candidate and assembles the trade plan.
// Capital is withdrawn like EntryOrder; a failed buy must be Returned.
func (e *Engine) Execute(token types.TokenData) (TradeExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.entryOrderLocked(token)
	if err != nil {
		return TradeExecution{}, err
	}
	return TradeExecution{
		Entry: order,
		Reentry: ReentryConditions{
			Threshold:   e.cfg.ReentryThreshold,
			MaxCount:    e.cfg.MaxReentries,
			CooldownSec: e.cfg.ReentryCooldownSec,
		},
		LP:         LPBand{Low: lpBandLow, High: lpBandHigh},
		ExitLadder: e.ladder,
		Risk:       e.RiskParams(),
	}, nil
}

// PriorityFee exposes the fee calculation for monitoring and tests.
func (e *Engine) PriorityFee(token types.TokenData) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.priorityFeeLocked(token)
}

// ShouldReenter is the pure reentry predicate: price above entry by the
// threshold, reentry count under the cap, cooldown elapsed since the last
// add. It never mutates state or touches capital, so callers can poll it
// freely.
func (e *Engine) ShouldReenter(token string, currentPrice, entryPrice float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shouldReenterLocked(currentPrice, entryPrice)
}

func (e *Engine) shouldReenterLocked(currentPrice, entryPrice float64) bool {
	if entryPrice <= 0 {
		return false
	}
	if currentPrice < entryPrice*(1+e.cfg.ReentryThreshold) {
		return false
	}
	if e.reentryCount >= e.cfg.MaxReentries {
		return false
	}
	cooldown := time.Duration(e.cfg.ReentryCooldownSec) * time.Second
	if !e.lastReentry.IsZero() && e.now().Sub(e.lastReentry) < cooldown {
		return false
	}
	return true
}

// EvaluateReentry commits a reentry when ShouldReenter holds: capital is
// allocated from the reentry bucket and the count and cooldown advance.
func (e *Engine) EvaluateReentry(currentPrice float64) (exchange.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.shouldReenterLocked(currentPrice, e.entryPrice) {
		return exchange.Order{}, false
	}

	size := e.funds.ReentryAllocation(e.cfg.ReentryBoostRatio)
	if size <= 0 {
		return exchange.Order{}, false
	}
	amount, err := e.funds.Allocate(wallet.BucketReentry, size)
	if err != nil {
		logger.Warnf("reentry blocked: %v", err)
		return exchange.Order{}, false
	}
	e.reentryCount++
	e.lastReentry = e.now()
	logger.Infof("reentry %d/%d: %.2f USD at price %.8f (+%.1f%% over entry)",
		e.reentryCount, e.cfg.MaxReentries, amount, currentPrice, (currentPrice/e.entryPrice-1)*100)
	return exchange.Order{
		Venue:       e.cfg.PreferredVenue,
		AmountUSD:   amount,
		SlippagePct: e.slippageLocked(),
		PriorityFee: e.cfg.PriorityFeeBase,
	}, true
}

// LPEligible reports whether the current price sits inside the band where
// providing liquidity is worthwhile, and the tactical capital available.
func (e *Engine) LPEligible(currentPrice float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entryPrice <= 0 {
		return 0, false
	}
	ratio := currentPrice / e.entryPrice
	if ratio < lpBandLow || ratio > lpBandHigh {
		return 0, false
	}
	return e.funds.TacticalAllocation(e.cfg.LPAllocationRatio), true
}

// RiskParams are the hard limits the engine enforces on execution.
type RiskParams struct {
	MaxSlippagePct     float64 `json:"max_slippage_pct"`
	EmergencyThreshold float64 `json:"emergency_threshold"`
	StopLossFraction   float64 `json:"stop_loss_fraction"`
}

func (e *Engine) RiskParams() RiskParams {
	return RiskParams{
		MaxSlippagePct:     maxSlippagePct,
		EmergencyThreshold: emergencyThreshold,
		StopLossFraction:   stopLossFraction,
	}
}

// Reentries reports how many adds have executed for the current position.
func (e *Engine) Reentries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reentryCount
}

// EntryPrice reports the recorded entry price, zero when no position.
func (e *Engine) EntryPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entryPrice
}
