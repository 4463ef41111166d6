package exitsys

import (
	"testing"
	"time"

	"blitz/internal/config"
	"blitz/internal/exitplan"
	"blitz/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem() *System {
	return New(config.Default().Exit)
}

func tickWithProfit(profit float64) types.TradeContext {
	return types.TradeContext{
		Profit:   profit,
		Position: types.Position{Token: "tok", Symbol: "TOK", Amount: 100, EntryPrice: 0.001},
	}
}

func mentions(n int, score float64) []types.SocialMention {
	out := make([]types.SocialMention, n)
	for i := range out {
		out[i] = types.SocialMention{SentimentScore: score, Platform: "x", Timestamp: time.Now()}
	}
	return out
}

func TestHoldWhenNothingFires(t *testing.T) {
	s := newTestSystem()
	d := s.Evaluate(tickWithProfit(0.05))
	assert.Equal(t, Hold, d.Kind)
}

func TestLadderRungFiresOnce(t *testing.T) {
	s := newTestSystem()

	d := s.Evaluate(tickWithProfit(0.20))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.25, d.Fraction, 1e-9)

	// Same profit again: the rung is sticky.
	d = s.Evaluate(tickWithProfit(0.20))
	assert.Equal(t, Hold, d.Kind)

	// Next rung still fires.
	d = s.Evaluate(tickWithProfit(0.40))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.40, d.Fraction, 1e-9)
}

func TestLadderWalksAscendingOnGap(t *testing.T) {
	s := newTestSystem()

	// Price gaps past three rungs: the lowest untriggered rung fires first,
	// one per tick, until the ladder catches up.
	d := s.Evaluate(tickWithProfit(0.70))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.25, d.Fraction, 1e-9)

	d = s.Evaluate(tickWithProfit(0.70))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.40, d.Fraction, 1e-9)

	d = s.Evaluate(tickWithProfit(0.70))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.50, d.Fraction, 1e-9)

	// 100% rung not reached, lower rungs all spent.
	assert.Equal(t, Hold, s.Evaluate(tickWithProfit(0.70)).Kind)
	assert.Equal(t, Hold, s.Evaluate(tickWithProfit(0.20)).Kind)
}

func TestLadderResetRearmsRungs(t *testing.T) {
	s := newTestSystem()
	require.Equal(t, PartialExit, s.Evaluate(tickWithProfit(0.20)).Kind)
	s.Reset()
	assert.Equal(t, PartialExit, s.Evaluate(tickWithProfit(0.20)).Kind)
}

func TestVolatilityCircuitBreaker(t *testing.T) {
	s := newTestSystem()

	tick := tickWithProfit(0.05)
	tick.Volatility5Min = 0.30
	tick.RedCandleCount = 2
	assert.Equal(t, Hold, s.Evaluate(tick).Kind, "two red candles are not enough")

	tick.RedCandleCount = 3
	d := s.Evaluate(tick)
	assert.Equal(t, FullExit, d.Kind)

	tick.Volatility5Min = 0.20
	assert.Equal(t, Hold, s.Evaluate(tick).Kind, "volatility below threshold")
}

func TestStopLossIsEmergency(t *testing.T) {
	s := newTestSystem()
	d := s.Evaluate(tickWithProfit(-0.25))
	assert.Equal(t, EmergencyExit, d.Kind)
}

func TestNegativeSentimentFullExit(t *testing.T) {
	s := newTestSystem()
	tick := tickWithProfit(0.05)
	tick.SocialMentions = mentions(15, -0.75)
	d := s.Evaluate(tick)
	assert.Equal(t, FullExit, d.Kind)
}

func TestSentimentNeedsEnoughMentions(t *testing.T) {
	s := newTestSystem()
	tick := tickWithProfit(0.05)
	tick.SocialMentions = mentions(10, -0.75)
	assert.Equal(t, Hold, s.Evaluate(tick).Kind)
}

func TestPanicMentionsForceFullExit(t *testing.T) {
	s := newTestSystem()
	tick := tickWithProfit(0.05)
	tick.SocialMentions = mentions(5, -0.9)
	d := s.Evaluate(tick)
	assert.Equal(t, FullExit, d.Kind)
}

func TestSentimentCountsNotAverages(t *testing.T) {
	s := newTestSystem()
	// 15 deeply negative mentions buried under 20 positive ones: the
	// positive chatter must not wash out the collapse signal.
	tick := tickWithProfit(0.05)
	tick.SocialMentions = append(mentions(15, -0.9), mentions(20, 0.9)...)
	d := s.Evaluate(tick)
	assert.Equal(t, FullExit, d.Kind)
}

func TestSentimentWindowExcludesStaleMentions(t *testing.T) {
	s := newTestSystem()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	stale := make([]types.SocialMention, 20)
	for i := range stale {
		stale[i] = types.SocialMention{SentimentScore: -0.9, Timestamp: now.Add(-30 * time.Minute)}
	}
	tick := tickWithProfit(0.05)
	tick.SocialMentions = stale
	assert.Equal(t, Hold, s.Evaluate(tick).Kind)
}

func TestTakeProfitPrecedesSentiment(t *testing.T) {
	s := newTestSystem()
	// Layer 1 is checked first: an unfired rung wins over panic chatter.
	tick := tickWithProfit(0.40)
	tick.SocialMentions = mentions(6, -0.95)
	d := s.Evaluate(tick)
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.25, d.Fraction, 1e-9)
}

func TestTakeProfitPrecedesVolatilityBreaker(t *testing.T) {
	s := newTestSystem()
	tick := tickWithProfit(0.20)
	tick.Volatility5Min = 0.30
	tick.RedCandleCount = 3
	d := s.Evaluate(tick)
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.25, d.Fraction, 1e-9)

	// Rung spent: the breaker decides the next tick.
	d = s.Evaluate(tick)
	assert.Equal(t, FullExit, d.Kind)
}

func TestSetLadderRearmsFlags(t *testing.T) {
	s := newTestSystem()
	require.Equal(t, PartialExit, s.Evaluate(tickWithProfit(0.20)).Kind)

	s.SetLadder(exitplan.Ladder{ID: "tight", Rungs: []exitplan.Rung{
		{TriggerProfit: 0.10, ExitFraction: 0.5},
	}})
	d := s.Evaluate(tickWithProfit(0.20))
	require.Equal(t, PartialExit, d.Kind)
	assert.InDelta(t, 0.5, d.Fraction, 1e-9)
}

func TestPriceHistoryCapped(t *testing.T) {
	cfg := config.Default().Exit
	cfg.PriceHistoryCap = 10
	s := New(cfg)
	for i := 0; i < 50; i++ {
		s.Evaluate(tickWithProfit(0.01))
	}
	assert.Len(t, s.PriceHistory(), 10)
}
