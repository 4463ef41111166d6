package exchange

import (
	"context"
	"fmt"
	"sync"

	"blitz/internal/logger"
)

// QuoteFunc supplies the current mark price for a token.
type QuoteFunc func(token string) (float64, error)

// PaperExecutor simulates fills at the quoted price minus slippage. It keeps
// per-token holdings so sell fractions resolve against real state.
type PaperExecutor struct {
	mu       sync.Mutex
	quote    QuoteFunc
	holdings map[string]float64 // token -> units held
}

func NewPaperExecutor(quote QuoteFunc) *PaperExecutor {
	return &PaperExecutor{quote: quote, holdings: make(map[string]float64)}
}

func (p *PaperExecutor) Buy(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	price, err := p.quote(order.Token)
	if err != nil {
		return Fill{}, fmt.Errorf("quote %s failed: %w", order.Token, err)
	}
	// Slippage works against the buyer: the effective price is worse.
	effective := price * (1 + order.SlippagePct/100)
	units := order.AmountUSD / effective

	p.mu.Lock()
	p.holdings[order.Token] += units
	p.mu.Unlock()

	logger.Infof("paper buy: %s %.4f units @ %.8f (%.2f USD, slippage %.1f%%, fee %.4f)",
		order.Symbol, units, effective, order.AmountUSD, order.SlippagePct, order.PriorityFee)
	return Fill{Token: order.Token, Amount: units, Price: effective, ValueUSD: order.AmountUSD, Venue: order.Venue}, nil
}

func (p *PaperExecutor) Sell(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if order.Fraction <= 0 || order.Fraction > 1 {
		return Fill{}, fmt.Errorf("sell fraction %.4f out of range", order.Fraction)
	}
	price, err := p.quote(order.Token)
	if err != nil {
		return Fill{}, fmt.Errorf("quote %s failed: %w", order.Token, err)
	}
	effective := price * (1 - order.SlippagePct/100)

	p.mu.Lock()
	held := p.holdings[order.Token]
	units := held * order.Fraction
	p.holdings[order.Token] = held - units
	p.mu.Unlock()

	if units <= 0 {
		return Fill{}, fmt.Errorf("no %s holdings to sell", order.Token)
	}
	value := units * effective
	logger.Infof("paper sell: %s %.0f%% (%.4f units) @ %.8f for %.2f USD",
		order.Symbol, order.Fraction*100, units, effective, value)
	return Fill{Token: order.Token, Amount: units, Price: effective, ValueUSD: value, Venue: order.Venue}, nil
}

func (p *PaperExecutor) CancelAll(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The simulator fills synchronously, so there is never a resting order.
	logger.Debugf("paper cancel all: %s", token)
	return nil
}

func (p *PaperExecutor) PanicSell(ctx context.Context, token string, slippagePct float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	price, err := p.quote(token)
	if err != nil {
		return Fill{}, fmt.Errorf("quote %s failed: %w", token, err)
	}
	effective := price * (1 - slippagePct/100)

	p.mu.Lock()
	units := p.holdings[token]
	p.holdings[token] = 0
	p.mu.Unlock()

	value := units * effective
	logger.Warnf("paper panic sell: %s all %.4f units @ %.8f (slippage %.0f%%) for %.2f USD",
		token, units, effective, slippagePct, value)
	return Fill{Token: token, Amount: units, Price: effective, ValueUSD: value, Emergency: true}, nil
}

func (p *PaperExecutor) EmergencyWithdraw(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	units := p.holdings[token]
	p.holdings[token] = 0
	p.mu.Unlock()
	logger.Warnf("paper emergency withdraw: %s, %.4f units abandoned to withdraw path", token, units)
	return nil
}

// Holding reports the simulated units held for a token.
func (p *PaperExecutor) Holding(token string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[token]
}

// Seed sets holdings directly. Test hook.
func (p *PaperExecutor) Seed(token string, units float64) {
	p.mu.Lock()
	p.holdings[token] = units
	p.mu.Unlock()
}
