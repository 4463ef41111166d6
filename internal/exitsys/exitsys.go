package exitsys

import (
	"fmt"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/exitplan"
	"blitz/internal/logger"
	"blitz/internal/types"
)

// Kind classifies an exit decision by severity.
type Kind int

const (
	Hold Kind = iota
	PartialExit
	FullExit
	EmergencyExit
)

func (k Kind) String() string {
	switch k {
	case Hold:
		return "hold"
	case PartialExit:
		return "partial_exit"
	case FullExit:
		return "full_exit"
	case EmergencyExit:
		return "emergency_exit"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation tick. Fraction is only set for
// partial exits; full and emergency exits always mean the whole remaining
// position.
type Decision struct {
	Kind     Kind
	Fraction float64
	Reason   string
}

// HoldDecision is the neutral outcome.
var HoldDecision = Decision{Kind: Hold}

// System runs the layered exit evaluation for one position: take-profit
// ladder, volatility circuit breaker, then community sentiment. Layers are
// checked in that fixed order and the first one that fires decides the tick.
type System struct {
	mu  sync.Mutex
	cfg config.ExitConfig
	now func() time.Time

	ladder       exitplan.Ladder
	rungFired    []bool
	priceHistory []float64
}

// New builds an exit system with the built-in ladder. Wire a registry ladder
// with SetLadder.
func New(cfg config.ExitConfig) *System {
	s := &System{cfg: cfg, now: time.Now}
	s.setLadderLocked(exitplan.DefaultLadder())
	return s
}

// SetClock overrides the time source. Test hook.
func (s *System) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SetLadder swaps the take-profit ladder. Fired flags reset: a new ladder
// means new triggers.
func (s *System) SetLadder(l exitplan.Ladder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLadderLocked(l)
}

func (s *System) setLadderLocked(l exitplan.Ladder) {
	s.ladder = l
	s.rungFired = make([]bool, len(l.Rungs))
}

// Reset rearms the system for a new position: fired flags and price history
// clear, the ladder itself stays.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rungFired = make([]bool, len(s.ladder.Rungs))
	s.priceHistory = s.priceHistory[:0]
}

// Evaluate runs the three layers in order against the tick snapshot. The
// first layer that fires wins.
func (s *System) Evaluate(ctx types.TradeContext) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordPriceLocked(ctx.CurrentPrice())

	if d := s.checkTakeProfitLocked(ctx); d.Kind != Hold {
		return d
	}
	if d := s.checkVolatilityBreakerLocked(ctx); d.Kind != Hold {
		return d
	}
	if d := s.checkSentimentCollapseLocked(ctx); d.Kind != Hold {
		return d
	}
	return HoldDecision
}

// Layer 1: take-profit ladder. Rungs are walked in ascending trigger order;
// the first untriggered rung whose threshold is met fires once per position.
func (s *System) checkTakeProfitLocked(ctx types.TradeContext) Decision {
	for i, rung := range s.ladder.Rungs {
		if s.rungFired[i] || ctx.Profit < rung.TriggerProfit {
			continue
		}
		s.rungFired[i] = true
		logger.Infof("ladder rung %d fired: +%.0f%% profit, selling %.0f%% of remaining",
			i+1, rung.TriggerProfit*100, rung.ExitFraction*100)
		return Decision{
			Kind:     PartialExit,
			Fraction: rung.ExitFraction,
			Reason:   fmt.Sprintf("take profit at +%.0f%%", rung.TriggerProfit*100),
		}
	}
	return HoldDecision
}

// Layer 2: volatility circuit breaker. Full exit needs both elevated
// 5-minute volatility and a run of red candles, so a single wick does not
// trip it. A loss past the price-drop threshold escalates to an emergency
// exit on its own, bypassing the candle count.
func (s *System) checkVolatilityBreakerLocked(ctx types.TradeContext) Decision {
	if ctx.Volatility5Min > s.cfg.VolatilityThreshold && ctx.RedCandleCount >= s.cfg.RedCandleThreshold {
		logger.Warnf("volatility breaker: vol %.2f with %d red candles", ctx.Volatility5Min, ctx.RedCandleCount)
		return Decision{
			Kind:   FullExit,
			Reason: fmt.Sprintf("volatility %.2f with %d consecutive red candles", ctx.Volatility5Min, ctx.RedCandleCount),
		}
	}
	if ctx.Profit < -s.cfg.PriceDropThreshold {
		logger.Warnf("massive drop: %.1f%% down, threshold %.1f%%", -ctx.Profit*100, s.cfg.PriceDropThreshold*100)
		return Decision{
			Kind:   EmergencyExit,
			Reason: fmt.Sprintf("loss %.1f%% exceeds drop threshold %.1f%%", -ctx.Profit*100, s.cfg.PriceDropThreshold*100),
		}
	}
	return HoldDecision
}

// Layer 3: sentiment collapse. Counts mentions below the negative threshold
// inside the trailing window; a smaller count below the stricter panic
// cutoff also forces a full exit.
func (s *System) checkSentimentCollapseLocked(ctx types.TradeContext) Decision {
	negative, panicked := s.sentimentCountsLocked(ctx.SocialMentions)
	if negative >= s.cfg.MentionCountThreshold {
		logger.Warnf("sentiment collapse: %d negative mentions in window", negative)
		return Decision{
			Kind:   FullExit,
			Reason: fmt.Sprintf("%d negative mentions in window", negative),
		}
	}
	if panicked >= s.cfg.PanicMentionThreshold {
		logger.Warnf("panic mentions: %d below %.2f in window", panicked, s.cfg.PanicSentiment)
		return Decision{
			Kind:   FullExit,
			Reason: fmt.Sprintf("%d panic mentions in window", panicked),
		}
	}
	return HoldDecision
}

// sentimentCountsLocked counts sub-threshold mentions inside the rolling
// window. Mentions with zero timestamps count as current.
func (s *System) sentimentCountsLocked(mentions []types.SocialMention) (negative, panicked int) {
	cutoff := s.now().Add(-time.Duration(s.cfg.SentimentWindowMin) * time.Minute)
	for _, m := range mentions {
		if !m.Timestamp.IsZero() && m.Timestamp.Before(cutoff) {
			continue
		}
		if m.SentimentScore < s.cfg.NegativeSentiment {
			negative++
		}
		if m.SentimentScore < s.cfg.PanicSentiment {
			panicked++
		}
	}
	return negative, panicked
}

func (s *System) recordPriceLocked(price float64) {
	if price <= 0 {
		return
	}
	s.priceHistory = append(s.priceHistory, price)
	if limit := s.cfg.PriceHistoryCap; limit > 0 && len(s.priceHistory) > limit {
		s.priceHistory = s.priceHistory[len(s.priceHistory)-limit:]
	}
}

// FiredRungs reports which ladder rungs have fired for the current position.
func (s *System) FiredRungs() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.rungFired))
	copy(out, s.rungFired)
	return out
}

// PriceHistory returns a copy of the recorded mark prices.
func (s *System) PriceHistory() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.priceHistory))
	copy(out, s.priceHistory)
	return out
}
