package control

import (
	"fmt"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/logger"
)

// FundService is the custody-side hook for psychology accounting. The bucket
// wallet implements it; Control keeps its own balance field authoritative for
// admission decisions.
type FundService interface {
	ApplyTax(profit float64) float64
}

// Control enforces the five admission rules before an operation may start and
// settles discipline state when one completes. One instance per trading
// session; all methods are safe for use from a multi-goroutine host.
type Control struct {
	mu  sync.Mutex
	cfg config.ControlConfig
	now func() time.Time

	funds FundService

	lastTradeTime        time.Time
	positionStart        time.Time
	operationActive      bool
	walletCounter        int
	operationsThisWallet int
	lastWalletRotation   time.Time

	lossStreak      int
	cooldownEnd     time.Time
	psychologyFund  float64
	totalTaxed      float64
	dailyOperations int
	lastOperationDay time.Time
	totalOperations  int
	successfulOps    int
}

// New builds a controller with the configured thresholds. The psychology fund
// starts at twice the configured minimum so a fresh session is admissible.
func New(cfg config.ControlConfig, funds FundService) *Control {
	return &Control{
		cfg:            cfg,
		now:            time.Now,
		funds:          funds,
		walletCounter:  1,
		psychologyFund: cfg.MinPsychologyBalance * 2,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Control) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// CheckConditions evaluates the four session-level admission rules in order
// and returns the first violation. The fifth rule (battlefield selection) is
// per-candidate and lives in ValidateBattlefield.
func (c *Control) CheckConditions() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkConditionsLocked()
}

func (c *Control) checkConditionsLocked() error {
	if err := c.enforceLifeLimit(); err != nil {
		return err
	}
	if err := c.enforceWalletRotation(); err != nil {
		return err
	}
	if err := c.enforceCooldown(); err != nil {
		return err
	}
	if err := c.enforcePsychologyFund(); err != nil {
		return err
	}
	return nil
}

// Rule 1: minimum spacing between operations.
func (c *Control) enforceLifeLimit() error {
	if c.lastTradeTime.IsZero() {
		return nil
	}
	minGap := time.Duration(c.cfg.MinHoldTimeMinutes) * time.Minute
	if elapsed := c.now().Sub(c.lastTradeTime); elapsed < minGap {
		logger.Warnf("life limit: %.0f minutes remain before next operation", (minGap - elapsed).Minutes())
		return ErrHoldTimeViolation
	}
	return nil
}

// Rule 2: per-wallet operation cap.
func (c *Control) enforceWalletRotation() error {
	if c.operationsThisWallet >= c.cfg.MaxOperationsPerWallet {
		return ErrWalletRotationRequired
	}
	return nil
}

// Rule 3: loss-streak cooldown, evaluated lazily from the stored end time.
func (c *Control) enforceCooldown() error {
	if !c.cooldownEnd.IsZero() && c.now().Before(c.cooldownEnd) {
		return ErrCoolDownPeriod
	}
	return nil
}

// Rule 4: psychology fund floor.
func (c *Control) enforcePsychologyFund() error {
	if c.psychologyFund < c.cfg.MinPsychologyBalance {
		return ErrPsychologyFundInsufficient
	}
	return nil
}

// ValidateBattlefield applies the per-candidate liquidity and holder screen.
func (c *Control) ValidateBattlefield(liquidity float64, holderCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if liquidity < c.cfg.MinLiquidity || liquidity > c.cfg.MaxLiquidity {
		return &BattlefieldValidationError{Reason: fmt.Sprintf(
			"liquidity %.2f not in range %.2f-%.2f", liquidity, c.cfg.MinLiquidity, c.cfg.MaxLiquidity)}
	}
	if holderCount < c.cfg.MinHolderCount || holderCount > c.cfg.MaxHolderCount {
		return &BattlefieldValidationError{Reason: fmt.Sprintf(
			"holder count %d not in range %d-%d", holderCount, c.cfg.MinHolderCount, c.cfg.MaxHolderCount)}
	}
	return nil
}

// StartOperation re-runs the admission checks and, if they pass, transitions
// the controller into the operation-active state. Sole entry transition.
func (c *Control) StartOperation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.operationActive {
		return ErrOperationInProgress
	}
	if err := c.checkConditionsLocked(); err != nil {
		return err
	}
	now := c.now()
	c.positionStart = now
	c.operationActive = true
	c.operationsThisWallet++
	c.totalOperations++
	c.bumpDailyCounter(now)
	logger.Infof("operation #%d started (wallet #%d, op %d/%d)",
		c.totalOperations, c.walletCounter, c.operationsThisWallet, c.cfg.MaxOperationsPerWallet)
	return nil
}

// CompleteOperation settles the active operation. Sole exit transition: on
// success the loss streak resets and positive profit is taxed into the
// psychology fund; on failure the streak grows and arms the cooldown at the
// configured threshold.
func (c *Control) CompleteOperation(profit float64, success bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.operationActive {
		return ErrNoActiveOperation
	}
	now := c.now()
	if success {
		c.successfulOps++
		c.lossStreak = 0
		if profit > 0 {
			tax := profit * c.cfg.PsychologyTaxRate
			c.psychologyFund += tax
			c.totalTaxed += tax
			if c.funds != nil {
				c.funds.ApplyTax(profit)
			}
			logger.Infof("psychology tax banked: %.2f (%.0f%% of %.2f)", tax, c.cfg.PsychologyTaxRate*100, profit)
		}
	} else {
		c.lossStreak++
		if c.lossStreak >= c.cfg.MaxConsecutiveLosses {
			c.cooldownEnd = now.Add(time.Duration(c.cfg.LossCooldownMinutes) * time.Minute)
			logger.Warnf("cooldown armed: %d consecutive losses, %d minute break", c.lossStreak, c.cfg.LossCooldownMinutes)
		}
	}
	c.lastTradeTime = now
	c.positionStart = time.Time{}
	c.operationActive = false
	return nil
}

// AbortOperation cancels an operation whose entry order never filled. The
// wallet slot is handed back and nothing is recorded: no trade happened.
func (c *Control) AbortOperation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.operationActive {
		return ErrNoActiveOperation
	}
	c.operationActive = false
	c.positionStart = time.Time{}
	c.operationsThisWallet--
	c.totalOperations--
	c.dailyOperations--
	logger.Warnf("operation aborted before entry, wallet slot returned")
	return nil
}

// RotateWallet advances to a fresh funding wallet and clears the per-wallet
// counter. Never invoked automatically: the host must request it once
// rotation is required or every subsequent StartOperation fails.
func (c *Control) RotateWallet() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletCounter++
	c.operationsThisWallet = 0
	c.lastWalletRotation = c.now()
	logger.Infof("wallet rotated: now using wallet #%d", c.walletCounter)
}

func (c *Control) bumpDailyCounter(now time.Time) {
	today := now.Truncate(24 * time.Hour)
	if c.lastOperationDay.IsZero() || c.lastOperationDay.Before(today) {
		c.dailyOperations = 1
	} else {
		c.dailyOperations++
	}
	c.lastOperationDay = today
}

// RemainingOperations reports how many operations the current wallet may
// still run before rotation.
func (c *Control) RemainingOperations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.cfg.MaxOperationsPerWallet - c.operationsThisWallet
	if rem < 0 {
		rem = 0
	}
	return rem
}

// TimeUntilRotation reports how long until the rotation cooldown clears.
func (c *Control) TimeUntilRotation() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastWalletRotation.IsZero() {
		return 0
	}
	cooldown := time.Duration(c.cfg.RotationCooldownMin) * time.Minute
	if elapsed := c.now().Sub(c.lastWalletRotation); elapsed < cooldown {
		return cooldown - elapsed
	}
	return 0
}

// HasMEVWarning reports whether the session profile is attractive to
// MEV targeting (repeated losses or a reused wallet).
func (c *Control) HasMEVWarning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lossStreak >= 2 || c.operationsThisWallet >= 2
}

// Statistics is a point-in-time snapshot of the discipline state.
type Statistics struct {
	TotalOperations      int     `json:"total_operations"`
	SuccessfulOperations int     `json:"successful_operations"`
	WinRate              float64 `json:"win_rate"`
	CurrentLossStreak    int     `json:"current_loss_streak"`
	CurrentWallet        int     `json:"current_wallet"`
	OperationsThisWallet int     `json:"operations_this_wallet"`
	PsychologyFund       float64 `json:"psychology_fund_balance"`
	DailyOperations      int     `json:"daily_operations"`
	CooldownActive       bool    `json:"cooldown_active"`
	OperationActive      bool    `json:"operation_active"`
}

// Statistics returns the current discipline snapshot.
func (c *Control) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	winRate := 0.0
	if c.totalOperations > 0 {
		winRate = float64(c.successfulOps) / float64(c.totalOperations)
	}
	return Statistics{
		TotalOperations:      c.totalOperations,
		SuccessfulOperations: c.successfulOps,
		WinRate:              winRate,
		CurrentLossStreak:    c.lossStreak,
		CurrentWallet:        c.walletCounter,
		OperationsThisWallet: c.operationsThisWallet,
		PsychologyFund:       c.psychologyFund,
		DailyOperations:      c.dailyOperations,
		CooldownActive:       !c.cooldownEnd.IsZero() && c.now().Before(c.cooldownEnd),
		OperationActive:      c.operationActive,
	}
}

// PositionStart returns the start time of the active operation, if any.
func (c *Control) PositionStart() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionStart, c.operationActive
}
