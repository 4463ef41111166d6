package exchange

import "context"

// Order is a venue-bound swap request.
type Order struct {
	Token       string
	Symbol      string
	Venue       string
	AmountUSD   float64 // buy side: capital to spend
	Fraction    float64 // sell side: share of held amount to liquidate
	SlippagePct float64
	PriorityFee float64
}

// Fill reports what actually executed.
type Fill struct {
	Token     string
	Amount    float64 // token units
	Price     float64
	ValueUSD  float64
	Venue     string
	Emergency bool
}

// OrderExecutor abstracts the trading venue. The engine only ever talks to
// this interface; live and paper implementations are interchangeable.
type OrderExecutor interface {
	Buy(ctx context.Context, order Order) (Fill, error)
	Sell(ctx context.Context, order Order) (Fill, error)
	// CancelAll withdraws any resting orders for the token. First step of a
	// panic plan; failures are non-fatal.
	CancelAll(ctx context.Context, token string) error
	// PanicSell dumps the whole remaining position with the given slippage
	// tolerance. It must not block past ctx cancellation.
	PanicSell(ctx context.Context, token string, slippagePct float64) (Fill, error)
	// EmergencyWithdraw pulls whatever value remains out through the venue's
	// withdraw path. Last resort when panic selling fails.
	EmergencyWithdraw(ctx context.Context, token string) error
}
