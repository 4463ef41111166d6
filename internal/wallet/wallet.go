package wallet

import (
	"errors"
	"fmt"
	"sync"

	"blitz/internal/config"
	"blitz/internal/logger"

	"github.com/shopspring/decimal"
)

// Bucket names one of the five capital segments.
type Bucket string

const (
	BucketLightning    Bucket = "lightning"     // primary trading capital
	BucketEmergencyGas Bucket = "emergency_gas" // gas reserve for panic exits
	BucketReentry      Bucket = "reentry"       // reentry buffer
	BucketPsychology   Bucket = "psychology"    // profit-tax accumulator
	BucketTacticalExit Bucket = "tactical_exit" // exit-side reserves
)

// ErrInsufficientFunds is returned when an allocation exceeds the bucket
// balance.
var ErrInsufficientFunds = errors.New("insufficient funds in bucket")

// Wallet segments a fixed pot of capital into tactical buckets. All amounts
// are kept as decimals so repeated allocate/return cycles never drift.
type Wallet struct {
	mu       sync.Mutex
	balances map[Bucket]decimal.Decimal
	ratios   map[Bucket]decimal.Decimal
	total    decimal.Decimal
	taxRate  decimal.Decimal
}

// New builds a wallet from the configured bucket ratios.
func New(cfg config.WalletConfig, taxRate float64) *Wallet {
	w := &Wallet{
		balances: make(map[Bucket]decimal.Decimal, 5),
		ratios: map[Bucket]decimal.Decimal{
			BucketLightning:    decimal.NewFromFloat(cfg.LightningRatio),
			BucketEmergencyGas: decimal.NewFromFloat(cfg.EmergencyRatio),
			BucketReentry:      decimal.NewFromFloat(cfg.ReentryRatio),
			BucketPsychology:   decimal.NewFromFloat(cfg.PsychologyRatio),
			BucketTacticalExit: decimal.NewFromFloat(cfg.TacticalRatio),
		},
		total:   decimal.NewFromFloat(cfg.TotalCapital),
		taxRate: decimal.NewFromFloat(taxRate),
	}
	w.rebalanceLocked()
	return w
}

// rebalanceLocked splits total capital across buckets by ratio.
func (w *Wallet) rebalanceLocked() {
	for bucket, ratio := range w.ratios {
		w.balances[bucket] = w.total.Mul(ratio)
	}
}

// Balance returns the current balance of one bucket.
func (w *Wallet) Balance(bucket Bucket) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, _ := w.balances[bucket].Float64()
	return f
}

// Allocate withdraws amount from the bucket. The full amount is granted or
// none: partial fills would silently undersize entries.
func (w *Wallet) Allocate(bucket Bucket, amount float64) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	req := decimal.NewFromFloat(amount)
	if req.IsNegative() || req.IsZero() {
		return 0, fmt.Errorf("allocation amount must be positive, got %.4f", amount)
	}
	bal := w.balances[bucket]
	if req.GreaterThan(bal) {
		avail, _ := bal.Float64()
		logger.Warnf("bucket %s cannot cover allocation: requested %.2f, available %.2f", bucket, amount, avail)
		return 0, fmt.Errorf("%w: %s has %.2f, requested %.2f", ErrInsufficientFunds, bucket, avail, amount)
	}
	w.balances[bucket] = bal.Sub(req)
	granted, _ := req.Float64()
	return granted, nil
}

// Return credits amount back to the bucket.
func (w *Wallet) Return(bucket Bucket, amount float64) {
	if amount <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[bucket] = w.balances[bucket].Add(decimal.NewFromFloat(amount))
}

// ApplyTax moves the configured share of a positive realized profit from the
// lightning bucket into the psychology bucket and returns the net profit.
// Losses pass through untaxed. Proceeds land in the lightning bucket, so the
// transfer keeps the wallet total unchanged.
func (w *Wallet) ApplyTax(profit float64) float64 {
	if profit <= 0 {
		return profit
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	p := decimal.NewFromFloat(profit)
	tax := p.Mul(w.taxRate)
	w.balances[BucketLightning] = w.balances[BucketLightning].Sub(tax)
	w.balances[BucketPsychology] = w.balances[BucketPsychology].Add(tax)
	net, _ := p.Sub(tax).Float64()
	taxF, _ := tax.Float64()
	logger.Infof("psychology tax applied: %.2f on %.2f profit", taxF, profit)
	return net
}

// PositionSize sizes an entry from the lightning bucket. Ratio is capped at
// 80% so one entry can never drain the bucket.
func (w *Wallet) PositionSize(ratio float64) float64 {
	if ratio > 0.8 {
		ratio = 0.8
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	size, _ := w.balances[BucketLightning].Mul(decimal.NewFromFloat(ratio)).Float64()
	return size
}

// ReentryAllocation sizes a reentry from the reentry buffer, capped at 60%.
func (w *Wallet) ReentryAllocation(ratio float64) float64 {
	if ratio > 0.6 {
		ratio = 0.6
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	size, _ := w.balances[BucketReentry].Mul(decimal.NewFromFloat(ratio)).Float64()
	return size
}

// TacticalAllocation sizes the liquidity-provision slice from the tactical
// exit bucket.
func (w *Wallet) TacticalAllocation(ratio float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	size, _ := w.balances[BucketTacticalExit].Mul(decimal.NewFromFloat(ratio)).Float64()
	return size
}

// HasSufficientGas reports whether the emergency gas bucket covers the
// required amount.
func (w *Wallet) HasSufficientGas(required float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.balances[BucketEmergencyGas].LessThan(decimal.NewFromFloat(required))
}

// ResetForRotation restores all buckets to their configured split while
// preserving the accumulated psychology fund.
func (w *Wallet) ResetForRotation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	psychology := w.balances[BucketPsychology]
	w.rebalanceLocked()
	w.balances[BucketPsychology] = psychology
}

// Utilization summarizes bucket balances for monitoring.
type Utilization struct {
	TotalCapital   float64 `json:"total_capital"`
	TotalAllocated float64 `json:"total_allocated"`
	Lightning      float64 `json:"lightning"`
	EmergencyGas   float64 `json:"emergency_gas"`
	Reentry        float64 `json:"reentry"`
	Psychology     float64 `json:"psychology"`
	TacticalExit   float64 `json:"tactical_exit"`
}

// Utilization reports the current bucket balances.
func (w *Wallet) Utilization() Utilization {
	w.mu.Lock()
	defer w.mu.Unlock()
	sum := decimal.Zero
	for _, bal := range w.balances {
		sum = sum.Add(bal)
	}
	f := func(b Bucket) float64 {
		v, _ := w.balances[b].Float64()
		return v
	}
	total, _ := w.total.Float64()
	allocated, _ := sum.Float64()
	return Utilization{
		TotalCapital:   total,
		TotalAllocated: allocated,
		Lightning:      f(BucketLightning),
		EmergencyGas:   f(BucketEmergencyGas),
		Reentry:        f(BucketReentry),
		Psychology:     f(BucketPsychology),
		TacticalExit:   f(BucketTacticalExit),
	}
}

// ValidateIntegrity checks that bucket balances still sum to total capital.
// Only meaningful on a freshly built or rotated wallet, before allocations.
func (w *Wallet) ValidateIntegrity() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sum := decimal.Zero
	for _, bal := range w.balances {
		sum = sum.Add(bal)
	}
	if !sum.Equal(w.total) {
		return fmt.Errorf("bucket balances sum to %s, expected %s", sum, w.total)
	}
	return nil
}
