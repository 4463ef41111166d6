package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/gateway/exchange"
	"blitz/internal/gateway/notifier"
	"blitz/internal/logger"
	"blitz/internal/types"
	"blitz/internal/wallet"
)

// FundMover receives recovered proceeds. Satisfied by the bucket wallet.
type FundMover interface {
	Return(bucket wallet.Bucket, amount float64)
}

// TokenFlagger records hostile tokens on the denylist.
type TokenFlagger interface {
	Flag(address, symbol, reason string) error
}

// Protocol detects panic conditions, builds ordered exit plans and runs them
// inside a hard execution budget. It also owns the post-incident circuit
// breaker that blocks new entries after the worst trigger classes.
type Protocol struct {
	mu  sync.Mutex
	cfg config.EmergencyConfig
	now func() time.Time

	executor exchange.OrderExecutor
	notify   notifier.TextNotifier
	funds    FundMover
	flags    TokenFlagger

	breakerEnd    time.Time
	breakerReason string
	triggerCount  map[TriggerKind]int
}

// New wires the protocol. funds and flags may be nil; the transfer and flag
// plan steps then log and skip.
func New(cfg config.EmergencyConfig, executor exchange.OrderExecutor, notify notifier.TextNotifier, funds FundMover, flags TokenFlagger) *Protocol {
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Protocol{
		cfg:          cfg,
		now:          time.Now,
		executor:     executor,
		notify:       notify,
		funds:        funds,
		flags:        flags,
		triggerCount: make(map[TriggerKind]int),
	}
}

// SetClock overrides the time source for breaker expiry. Test hook.
func (p *Protocol) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// DetectTriggers scans the tick snapshot for panic conditions. Honeypot
// confidence arrives separately because it comes from the token feed, not
// the price stream. All detected triggers are returned, worst first.
func (p *Protocol) DetectTriggers(tick types.TradeContext, honeypotConfidence float64) []Trigger {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	var out []Trigger
	if honeypotConfidence >= cfg.HoneypotConfidence {
		out = append(out, Trigger{
			Kind:      TriggerHoneypot,
			Magnitude: honeypotConfidence,
			Detail:    fmt.Sprintf("honeypot confidence %.2f", honeypotConfidence),
		})
	}
	if tick.CreatorSellFrac >= cfg.CreatorSellThreshold {
		out = append(out, Trigger{
			Kind:      TriggerCreatorSell,
			Magnitude: tick.CreatorSellFrac,
			Detail:    fmt.Sprintf("creator %s sold %.1f%% of supply", tick.CreatorWallet, tick.CreatorSellFrac*100),
		})
	}
	if drop := liquidityDrop(tick.PreviousLiquidity, tick.CurrentLiquidity); drop >= cfg.LiquidityDrop {
		out = append(out, Trigger{
			Kind:      TriggerLiquidityRemoval,
			Magnitude: drop,
			Detail:    fmt.Sprintf("liquidity down %.1f%% (%.0f to %.0f)", drop*100, tick.PreviousLiquidity, tick.CurrentLiquidity),
		})
	}
	if tick.Profit <= -cfg.PriceDropThreshold {
		out = append(out, Trigger{
			Kind:      TriggerMassiveDump,
			Magnitude: -tick.Profit,
			Detail:    fmt.Sprintf("price down %.1f%%", -tick.Profit*100),
		})
	}
	return out
}

func liquidityDrop(prev, cur float64) float64 {
	if prev <= 0 || cur >= prev {
		return 0
	}
	return (prev - cur) / prev
}

// BuildPlan turns a trigger into the ordered panic plan: cancel orders,
// market-sell at trigger slippage, move proceeds to the tactical-exit
// bucket, flag the token, notify, and for hostile triggers arm the breaker.
// The fallback pair runs only when the budget is exhausted mid-plan.
func (p *Protocol) BuildPlan(t Trigger, pos types.Position) Plan {
	p.mu.Lock()
	budget := p.cfg.MaxExecutionSeconds
	breakerMin := p.cfg.BreakerMinutes
	p.mu.Unlock()

	actions := []Action{
		{Kind: ActionCancelOrders},
		{Kind: ActionMarketSell, SlippagePct: slippageFor(t)},
		{Kind: ActionTransferTactical},
		{Kind: ActionFlagToken, FlagReason: flagReasonFor(t)},
		{Kind: ActionNotify, Message: fmt.Sprintf("Emergency exit executed for %s: %s", pos.Symbol, t), Severity: severityFor(t)},
	}
	if t.Kind == TriggerHoneypot || (t.Kind == TriggerMassiveDump && t.Magnitude > 0.6) {
		actions = append(actions, Action{Kind: ActionArmBreaker, BreakerMin: breakerMin})
	}
	order := make([]int, len(actions))
	for i := range order {
		order[i] = i
	}
	fallback := []Action{
		{Kind: ActionEmergencyWithdraw},
		{Kind: ActionNotify, Severity: SeverityCritical,
			Message: fmt.Sprintf("Primary emergency exit failed for %s, manual intervention may be required", pos.Symbol)},
	}
	return Plan{
		Trigger:         t,
		Actions:         actions,
		ExecutionOrder:  order,
		MaxExecutionSec: budget,
		FallbackActions: fallback,
	}
}

// Execute runs the plan's actions in ExecutionOrder. Each action gets an
// equal slice of whatever budget remains; a failed action is logged and
// skipped, the plan continues. Once the budget is exhausted the remaining
// primary actions are abandoned and the fallback actions run instead, each
// bounded so total wall time stays within 1.5x the budget. Partial
// completion is expected; callers read the returned fill for what was
// actually recovered.
func (p *Protocol) Execute(ctx context.Context, plan Plan, pos types.Position) (exchange.Fill, error) {
	p.mu.Lock()
	p.triggerCount[plan.Trigger.Kind]++
	p.mu.Unlock()

	logger.Warnf("emergency exit: %s, %d actions, budget %ds", plan.Trigger, len(plan.ExecutionOrder), plan.MaxExecutionSec)

	budget := time.Duration(plan.MaxExecutionSec) * time.Second
	start := time.Now()
	deadline := start.Add(budget)

	var fill exchange.Fill
	var firstErr error
	fellBack := false

	for i, idx := range plan.ExecutionOrder {
		if idx < 0 || idx >= len(plan.Actions) {
			continue
		}
		action := plan.Actions[idx]
		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.Warnf("emergency budget exhausted before %s, running fallback", action.Kind)
			p.runFallback(ctx, plan, pos, budget)
			fellBack = true
			break
		}
		slice := remaining / time.Duration(len(plan.ExecutionOrder)-i)
		actCtx, cancel := context.WithTimeout(ctx, slice)
		err := p.runAction(actCtx, action, plan.Trigger, pos, &fill)
		cancel()
		if err == nil {
			continue
		}
		logger.Errorf("emergency action %s failed, skipping: %v", action.Kind, err)
		if firstErr == nil {
			firstErr = err
		}
		if time.Since(start) > budget {
			logger.Warnf("emergency budget exhausted after %s, running fallback", action.Kind)
			p.runFallback(ctx, plan, pos, budget)
			fellBack = true
			break
		}
	}

	switch {
	case fellBack && firstErr != nil:
		return fill, fmt.Errorf("emergency budget exhausted, fallback executed: %w", firstErr)
	case fellBack:
		return fill, errors.New("emergency budget exhausted, fallback executed")
	case firstErr != nil:
		return fill, fmt.Errorf("emergency exit completed with skipped actions: %w", firstErr)
	default:
		return fill, nil
	}
}

// runFallback runs the fallback actions, each bounded so the whole fallback
// pass consumes at most half the primary budget on top of it.
func (p *Protocol) runFallback(ctx context.Context, plan Plan, pos types.Position, budget time.Duration) {
	if len(plan.FallbackActions) == 0 {
		return
	}
	slice := budget / 2 / time.Duration(len(plan.FallbackActions))
	var fill exchange.Fill
	for _, action := range plan.FallbackActions {
		actCtx, cancel := context.WithTimeout(ctx, slice)
		if err := p.runAction(actCtx, action, plan.Trigger, pos, &fill); err != nil {
			logger.Errorf("fallback action %s failed: %v", action.Kind, err)
		}
		cancel()
	}
}

func (p *Protocol) runAction(ctx context.Context, a Action, t Trigger, pos types.Position, fill *exchange.Fill) error {
	switch a.Kind {
	case ActionCancelOrders:
		return p.executor.CancelAll(ctx, pos.Token)
	case ActionMarketSell:
		f, err := p.executor.PanicSell(ctx, pos.Token, a.SlippagePct)
		if err != nil {
			return err
		}
		*fill = f
		return nil
	case ActionTransferTactical:
		if p.funds == nil || fill.ValueUSD <= 0 {
			return nil
		}
		p.funds.Return(wallet.BucketTacticalExit, fill.ValueUSD)
		logger.Infof("emergency transfer: %.2f USD to tactical exit", fill.ValueUSD)
		return nil
	case ActionFlagToken:
		if p.flags == nil {
			return nil
		}
		return p.flags.Flag(pos.Token, pos.Symbol, a.FlagReason)
	case ActionNotify:
		p.notifyAsync(fmt.Sprintf("%s: %s", a.Severity, a.Message))
		return nil
	case ActionArmBreaker:
		p.armBreaker(a.BreakerMin, t.String())
		return nil
	case ActionEmergencyWithdraw:
		return p.executor.EmergencyWithdraw(ctx, pos.Token)
	default:
		return fmt.Errorf("unknown emergency action %d", a.Kind)
	}
}

// notifyAsync fires the notification without blocking the exit timeline.
func (p *Protocol) notifyAsync(text string) {
	go func() {
		if err := p.notify.SendText(text); err != nil {
			logger.Errorf("emergency notification failed: %v", err)
		}
	}()
}

func (p *Protocol) armBreaker(minutes int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakerEnd = p.now().Add(time.Duration(minutes) * time.Minute)
	p.breakerReason = reason
	logger.Warnf("circuit breaker armed for %d minutes: %s", minutes, reason)
}

// BreakerActive reports whether the circuit breaker currently blocks new
// entries. Expiry is evaluated lazily at read time.
func (p *Protocol) BreakerActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.breakerEnd.IsZero() && p.now().Before(p.breakerEnd)
}

// BreakerRemaining reports time until the breaker clears, zero if inactive.
func (p *Protocol) BreakerRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.breakerEnd.IsZero() {
		return 0
	}
	if rem := p.breakerEnd.Sub(p.now()); rem > 0 {
		return rem
	}
	return 0
}

// ResetBreaker clears the breaker early. Operator override.
func (p *Protocol) ResetBreaker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakerEnd = time.Time{}
	p.breakerReason = ""
}

// Status is the monitoring snapshot of the protocol state.
type Status struct {
	BreakerActive    bool           `json:"breaker_active"`
	BreakerReason    string         `json:"breaker_reason,omitempty"`
	BreakerRemaining float64        `json:"breaker_remaining_minutes"`
	TriggerCounts    map[string]int `json:"trigger_counts"`
}

func (p *Protocol) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := !p.breakerEnd.IsZero() && p.now().Before(p.breakerEnd)
	remaining := 0.0
	if active {
		remaining = p.breakerEnd.Sub(p.now()).Minutes()
	}
	counts := make(map[string]int, len(p.triggerCount))
	for k, v := range p.triggerCount {
		counts[k.String()] = v
	}
	return Status{
		BreakerActive:    active,
		BreakerReason:    p.breakerReason,
		BreakerRemaining: remaining,
		TriggerCounts:    counts,
	}
}
