package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/control"
	"blitz/internal/emergency"
	"blitz/internal/exitplan"
	"blitz/internal/exitsys"
	"blitz/internal/gateway/exchange"
	"blitz/internal/gateway/notifier"
	"blitz/internal/gateway/tokenfeed"
	"blitz/internal/logger"
	"blitz/internal/metrics"
	"blitz/internal/mining"
	"blitz/internal/screener"
	"blitz/internal/store/flagstore"
	"blitz/internal/store/opstore"
	"blitz/internal/timewin"
	"blitz/internal/types"
	"blitz/internal/wallet"

	"github.com/google/uuid"
)

// Session is the state of one live operation, from entry fill to final exit.
type Session struct {
	ID       string
	Token    types.TokenData
	Position types.Position
	Proto    *timewin.Protocol

	InvestedUSD float64
	RealizedUSD float64
	StartedAt   time.Time

	lastPrice     float64
	redCandles    int
	prevLiquidity float64
}

// Deps carries everything the engine orchestrates. Ops and Flags may be nil;
// persistence is then skipped.
type Deps struct {
	Control  *control.Control
	Funds    *wallet.Wallet
	Miner    *mining.Engine
	Exits    *exitsys.System
	Panic    *emergency.Protocol
	Stats    *metrics.Collector
	Screen   *screener.Screener
	Executor exchange.OrderExecutor
	Feed     tokenfeed.Provider
	Ops      *opstore.Store
	Flags    *flagstore.Store
	Notify   notifier.TextNotifier
}

// Engine drives the operation lifecycle tick by tick: admission, entry,
// layered exit evaluation, and settlement. Exit severities merge in a fixed
// order: emergency triggers beat full exits, full exits beat partial
// take-profits, and scheduled time decay only runs when nothing else fired.
type Engine struct {
	mu  sync.Mutex
	cfg *config.Config
	now func() time.Time

	d       Deps
	session *Session
}

func New(cfg *config.Config, d Deps) *Engine {
	if d.Notify == nil {
		d.Notify = notifier.Noop{}
	}
	return &Engine{cfg: cfg, now: time.Now, d: d}
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// UseLadderRegistry wires hot-reloaded ladder templates into the trade
// planner and the exit system. The configured ladder follows file updates
// without a restart; future entries pick it up through the trade plan.
func (e *Engine) UseLadderRegistry(reg *exitplan.Registry, ladderID string) {
	if l, ok := reg.Ladder(ladderID); ok {
		e.d.Miner.SetLadder(l)
		e.d.Exits.SetLadder(l)
	} else {
		logger.Warnf("ladder %q not in registry, keeping built-in ladder", ladderID)
	}
	reg.Subscribe(func(snap exitplan.Snapshot) {
		if l, ok := snap.Ladders[ladderID]; ok {
			e.d.Miner.SetLadder(l)
			e.d.Exits.SetLadder(l)
			logger.Infof("ladder %q updated to v%d", ladderID, snap.Version)
		}
	})
}

// Run ticks the engine until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.App.TickSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Infof("engine running, tick interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("engine stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluation cycle: hunt for an entry when idle, evaluate the
// exit layers when a position is open.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		e.tryEnter(ctx)
		return
	}
	e.evaluate(ctx, s)
}

// tryEnter runs the admission chain and, if every gate passes, executes the
// entry order and opens a session.
func (e *Engine) tryEnter(ctx context.Context) {
	if e.d.Panic.BreakerActive() {
		logger.Debugf("entry skipped: circuit breaker active for %.1f more minutes",
			e.d.Panic.BreakerRemaining().Minutes())
		return
	}
	if err := e.d.Control.CheckConditions(); err != nil {
		if errors.Is(err, control.ErrWalletRotationRequired) {
			e.maybeRotate()
			return
		}
		logger.Debugf("entry skipped: %v", err)
		return
	}

	candidates, err := e.d.Feed.FetchCandidates(ctx)
	if err != nil {
		logger.Warnf("candidate fetch failed: %v", err)
		return
	}
	candidates = e.dropFlagged(candidates)
	best, ok := e.d.Screen.SelectBest(candidates)
	if !ok {
		logger.Debugf("no candidate passed screening (%d fetched)", len(candidates))
		return
	}
	if err := e.d.Control.ValidateBattlefield(best.Liquidity, best.Holders); err != nil {
		logger.Debugf("candidate %s rejected: %v", best.Symbol, err)
		return
	}
	if err := e.d.Control.StartOperation(); err != nil {
		logger.Debugf("entry skipped: %v", err)
		return
	}

	plan, err := e.d.Miner.Execute(best)
	if err != nil {
		logger.Warnf("entry sizing failed for %s: %v", best.Symbol, err)
		e.d.Control.AbortOperation()
		return
	}
	order := plan.Entry
	fill, err := e.d.Executor.Buy(ctx, order)
	if err != nil {
		logger.Errorf("entry order failed for %s: %v", best.Symbol, err)
		e.d.Funds.Return(wallet.BucketLightning, order.AmountUSD)
		e.d.Control.AbortOperation()
		return
	}

	e.mu.Lock()
	nowFn := e.now
	e.mu.Unlock()
	now := nowFn()
	s := &Session{
		ID:    uuid.NewString(),
		Token: best,
		Position: types.Position{
			Token:        best.Address,
			Symbol:       best.Symbol,
			Amount:       fill.Amount,
			EntryPrice:   fill.Price,
			CurrentValue: fill.ValueUSD,
			OpenedAt:     now,
		},
		Proto:         timewin.NewAt(e.cfg.TimeProto, now),
		InvestedUSD:   order.AmountUSD,
		StartedAt:     now,
		lastPrice:     fill.Price,
		prevLiquidity: best.Liquidity,
	}
	s.Proto.SetClock(nowFn)
	e.d.Exits.SetLadder(plan.ExitLadder)

	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	logger.Infof("session %s opened: %s, %.2f USD at %.8f", s.ID[:8], best.Symbol, order.AmountUSD, fill.Price)
	e.notifyText(fmt.Sprintf("ENTRY %s: %.2f USD at %.8f (liq %.0f, holders %d)",
		best.Symbol, order.AmountUSD, fill.Price, best.Liquidity, best.Holders))
}

// maybeRotate rotates the funding wallet once its cooldown has cleared.
func (e *Engine) maybeRotate() {
	if e.d.Control.TimeUntilRotation() > 0 {
		return
	}
	e.d.Control.RotateWallet()
	e.d.Funds.ResetForRotation()
}

func (e *Engine) dropFlagged(candidates []types.TokenData) []types.TokenData {
	if e.d.Flags == nil {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		flagged, err := e.d.Flags.IsFlagged(c.Address)
		if err != nil {
			logger.Warnf("flag lookup failed for %s: %v", c.Address, err)
		}
		if !flagged {
			out = append(out, c)
		}
	}
	return out
}

// evaluate runs one exit-side tick for the open session.
func (e *Engine) evaluate(ctx context.Context, s *Session) {
	token, err := e.d.Feed.FetchToken(ctx, s.Position.Token)
	if err != nil {
		logger.Warnf("token refresh failed for %s: %v", s.Position.Symbol, err)
		// Still honor hard expiry on stale data.
		if s.Proto.ShouldForceClose() {
			e.fullExit(ctx, s, "hard expiry on stale data")
		}
		return
	}
	mentions, err := e.d.Feed.FetchMentions(ctx, s.Position.Token)
	if err != nil {
		logger.Debugf("mention fetch failed for %s: %v", s.Position.Symbol, err)
	}

	tick := e.buildTick(s, token, mentions)

	// Layer order is severity order. The first layer that fires ends the tick.
	if triggers := e.d.Panic.DetectTriggers(tick, honeypotConfidence(token)); len(triggers) > 0 {
		e.emergencyExit(ctx, s, triggers[0])
		return
	}
	if s.Proto.ShouldForceClose() {
		e.fullExit(ctx, s, "hard expiry")
		return
	}
	switch decision := e.d.Exits.Evaluate(tick); decision.Kind {
	case exitsys.EmergencyExit:
		e.emergencyExit(ctx, s, emergency.Trigger{
			Kind:      emergency.TriggerRiskLimit,
			Magnitude: math.Abs(tick.Profit),
			Detail:    decision.Reason,
		})
		return
	case exitsys.FullExit:
		e.fullExit(ctx, s, decision.Reason)
		return
	case exitsys.PartialExit:
		e.partialExit(ctx, s, decision.Fraction, decision.Reason)
	default:
		if !e.timeDecayExit(ctx, s) {
			e.maybeReenter(ctx, s, tick.CurrentPrice())
		}
	}

	e.mu.Lock()
	if e.session == s {
		s.lastPrice = tick.CurrentPrice()
		s.prevLiquidity = token.Liquidity
		s.Position.CurrentValue = s.Position.Amount * tick.CurrentPrice()
	}
	e.mu.Unlock()
}

// buildTick assembles the evaluation snapshot from the refreshed feed data.
func (e *Engine) buildTick(s *Session, token types.TokenData, mentions []types.SocialMention) types.TradeContext {
	price := token.EntryPrice
	profit := 0.0
	if s.Position.EntryPrice > 0 {
		profit = (price - s.Position.EntryPrice) / s.Position.EntryPrice
	}
	if price < s.lastPrice {
		s.redCandles++
	} else if price > s.lastPrice {
		s.redCandles = 0
	}
	return types.TradeContext{
		Profit:            profit,
		Volatility5Min:    math.Abs(token.PriceChange5m) / 100,
		RedCandleCount:    s.redCandles,
		SocialMentions:    mentions,
		Position:          s.Position,
		CurrentLiquidity:  token.Liquidity,
		PreviousLiquidity: s.prevLiquidity,
		CreatorSellFrac:   token.CreatorSellFrac,
		VolumeSpike:       token.Volume24h,
	}
}

func honeypotConfidence(token types.TokenData) float64 {
	if token.IsHoneypot && token.HoneypotScore == 0 {
		return 1.0
	}
	return token.HoneypotScore
}

// emergencyExit runs the panic plan and settles the session regardless of
// whether the panic sell or the fallback succeeded. Flagging and the move of
// proceeds to the tactical-exit bucket happen inside the plan itself.
func (e *Engine) emergencyExit(ctx context.Context, s *Session, trigger emergency.Trigger) {
	plan := e.d.Panic.BuildPlan(trigger, s.Position)
	fill, err := e.d.Panic.Execute(ctx, plan, s.Position)
	if err != nil {
		logger.Errorf("emergency execution for %s: %v", s.Position.Symbol, err)
	}
	e.settle(s, fill.ValueUSD, trigger.String())
}

// fullExit liquidates the whole remaining position through the normal path.
func (e *Engine) fullExit(ctx context.Context, s *Session, reason string) {
	fill, err := e.d.Executor.Sell(ctx, exchange.Order{
		Token:       s.Position.Token,
		Symbol:      s.Position.Symbol,
		Venue:       e.cfg.Mining.PreferredVenue,
		Fraction:    1.0,
		SlippagePct: e.cfg.Mining.DefaultSlippage,
	})
	if err != nil {
		logger.Errorf("full exit failed for %s, escalating: %v", s.Position.Symbol, err)
		e.emergencyExit(ctx, s, emergency.Trigger{
			Kind:   emergency.TriggerNetworkCongestion,
			Detail: fmt.Sprintf("sell failed: %v", err),
		})
		return
	}
	e.d.Funds.Return(wallet.BucketLightning, fill.ValueUSD)
	e.settle(s, fill.ValueUSD, reason)
}

// partialExit sells a fraction of the remaining position and keeps the
// session open. The error is reported so schedule-driven callers can re-arm
// the step that failed.
func (e *Engine) partialExit(ctx context.Context, s *Session, fraction float64, reason string) error {
	fill, err := e.d.Executor.Sell(ctx, exchange.Order{
		Token:       s.Position.Token,
		Symbol:      s.Position.Symbol,
		Venue:       e.cfg.Mining.PreferredVenue,
		Fraction:    fraction,
		SlippagePct: e.cfg.Mining.DefaultSlippage,
	})
	if err != nil {
		logger.Warnf("partial exit failed for %s: %v", s.Position.Symbol, err)
		return err
	}
	e.d.Funds.Return(wallet.BucketLightning, fill.ValueUSD)
	e.mu.Lock()
	s.RealizedUSD += fill.ValueUSD
	s.Position.Amount -= fill.Amount
	e.mu.Unlock()
	logger.Infof("partial exit %s: %.0f%% for %.2f USD (%s)", s.Position.Symbol, fraction*100, fill.ValueUSD, reason)
	return nil
}

// timeDecayExit applies the scheduled decay step, if one is due. Returns
// true when the step closed or shrank the position. A failed sale hands the
// step back to the protocol so the next tick retries the same fraction.
func (e *Engine) timeDecayExit(ctx context.Context, s *Session) bool {
	before := s.Proto.CumulativeExit()
	step := s.Proto.ExitStrategy()
	if step <= 0 {
		return false
	}
	heldFrac := step / (1 - before)
	if heldFrac >= 1 {
		e.fullExit(ctx, s, "hard expiry")
		return true
	}
	reason := fmt.Sprintf("time decay, %.0f%% of lifetime sold", s.Proto.CumulativeExit()*100)
	if err := e.partialExit(ctx, s, heldFrac, reason); err != nil {
		s.Proto.RearmStep(step)
		return false
	}
	return true
}

// maybeReenter adds to the position when momentum clears the reentry gates.
func (e *Engine) maybeReenter(ctx context.Context, s *Session, price float64) {
	order, ok := e.d.Miner.EvaluateReentry(price)
	if !ok {
		return
	}
	order.Token = s.Position.Token
	order.Symbol = s.Position.Symbol
	fill, err := e.d.Executor.Buy(ctx, order)
	if err != nil {
		logger.Warnf("reentry failed for %s: %v", s.Position.Symbol, err)
		e.d.Funds.Return(wallet.BucketReentry, order.AmountUSD)
		return
	}
	e.mu.Lock()
	s.Position.Amount += fill.Amount
	s.InvestedUSD += order.AmountUSD
	e.mu.Unlock()
}

// settle closes the books on a session. Proceeds are already back in a
// wallet bucket: the lightning bucket for normal exits, the tactical-exit
// bucket via the panic plan's transfer action for emergencies. Discipline
// state advances, metrics and persistence record the outcome.
func (e *Engine) settle(s *Session, finalProceeds float64, reason string) {
	total := s.RealizedUSD + finalProceeds
	profit := total - s.InvestedUSD
	success := profit > 0
	returnFrac := 0.0
	if s.InvestedUSD > 0 {
		returnFrac = profit / s.InvestedUSD
	}
	duration := e.now().Sub(s.StartedAt)

	if err := e.d.Control.CompleteOperation(profit, success); err != nil {
		logger.Errorf("settlement bookkeeping failed: %v", err)
	}

	rec := metrics.OperationRecord{
		ID:          s.ID,
		Token:       s.Position.Token,
		Symbol:      s.Position.Symbol,
		ProfitUSD:   profit,
		ReturnFrac:  returnFrac,
		EntryPrice:  s.Position.EntryPrice,
		ExitPrice:   s.lastPrice,
		Success:     success,
		ExitReason:  reason,
		Duration:    duration,
		CompletedAt: e.now(),
	}
	e.d.Stats.Record(rec)
	if e.d.Ops != nil {
		detail := map[string]any{
			"invested_usd": s.InvestedUSD,
			"realized_usd": total,
			"reentries":    e.d.Miner.Reentries(),
			"entry_price":  s.Position.EntryPrice,
		}
		if err := e.d.Ops.Save(rec, detail); err != nil {
			logger.Errorf("operation persist failed: %v", err)
		}
	}

	e.d.Miner.Reset()
	e.d.Exits.Reset()
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()

	logger.Infof("session %s closed: %s %+.2f USD in %.1f minutes (%s)",
		s.ID[:8], s.Position.Symbol, profit, duration.Minutes(), reason)
	e.notifyText(fmt.Sprintf("EXIT %s: %+.2f USD (%.1f%%) after %.1f minutes. Reason: %s",
		s.Position.Symbol, profit, returnFrac*100, duration.Minutes(), reason))
}

func (e *Engine) notifyText(text string) {
	if err := e.d.Notify.SendText(text); err != nil {
		logger.Errorf("notification failed: %v", err)
	}
}

// SessionStatus is the monitoring view of the open session.
type SessionStatus struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Token       string          `json:"token"`
	InvestedUSD float64         `json:"invested_usd"`
	RealizedUSD float64         `json:"realized_usd"`
	Amount      float64         `json:"amount"`
	EntryPrice  float64         `json:"entry_price"`
	Timing      timewin.Summary `json:"timing"`
	Reentries   int             `json:"reentries"`
}

// Status aggregates the full engine state for the monitoring API.
type Status struct {
	Control   control.Statistics `json:"control"`
	Wallet    wallet.Utilization `json:"wallet"`
	Emergency emergency.Status   `json:"emergency"`
	Metrics   metrics.Summary    `json:"metrics"`
	Session   *SessionStatus     `json:"session,omitempty"`
}

func (e *Engine) Status() Status {
	st := Status{
		Control:   e.d.Control.Statistics(),
		Wallet:    e.d.Funds.Utilization(),
		Emergency: e.d.Panic.Status(),
		Metrics:   e.d.Stats.Summarize(),
	}
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s != nil {
		st.Session = &SessionStatus{
			ID:          s.ID,
			Symbol:      s.Position.Symbol,
			Token:       s.Position.Token,
			InvestedUSD: s.InvestedUSD,
			RealizedUSD: s.RealizedUSD,
			Amount:      s.Position.Amount,
			EntryPrice:  s.Position.EntryPrice,
			Timing:      s.Proto.Summarize(),
			Reentries:   e.d.Miner.Reentries(),
		}
	}
	return st
}

// ActiveSession reports whether a position is open.
func (e *Engine) ActiveSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}
