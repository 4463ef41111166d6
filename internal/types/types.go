package types

import (
	"time"
)

// Position is the single live holding managed by a controller instance.
// It is created when the entry order fills and discarded on full exit.
type Position struct {
	Token        string  `json:"token"`
	Symbol       string  `json:"symbol"`
	Amount       float64 `json:"amount"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentValue float64 `json:"current_value"`
	OpenedAt     time.Time `json:"opened_at"`
}

// SocialMention is one scraped mention with its scored sentiment.
type SocialMention struct {
	SentimentScore float64   `json:"sentiment_score"`
	Platform       string    `json:"platform"`
	Text           string    `json:"text,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TradeContext is the per-tick evaluation snapshot. It is rebuilt from live
// inputs on every tick and never persisted.
type TradeContext struct {
	Profit            float64 // fraction, 0.15 == +15%
	Volatility5Min    float64
	RedCandleCount    int
	SocialMentions    []SocialMention
	Position          Position
	CurrentLiquidity  float64
	PreviousLiquidity float64
	CreatorSellFrac   float64 // fraction of supply sold by creator this tick
	CreatorWallet     string
	VolumeSpike       float64
}

// CurrentPrice derives the mark price from entry price and profit fraction.
func (c TradeContext) CurrentPrice() float64 {
	return c.Position.EntryPrice * (1 + c.Profit)
}

// TokenData is what the token feed supplies for a candidate.
type TokenData struct {
	Address          string    `json:"address"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	AgeMinutes       float64   `json:"age_minutes"`
	Liquidity        float64   `json:"liquidity"`
	Holders          int       `json:"holders"`
	CreatorTxnCount  int       `json:"creator_txn_count"`
	CreatorSellFrac  float64   `json:"creator_sell_frac"`
	IsHoneypot       bool      `json:"is_honeypot"`
	HoneypotScore    float64   `json:"honeypot_score"`
	EntryPrice       float64   `json:"entry_price"`
	MarketCap        float64   `json:"market_cap"`
	Volume24h        float64   `json:"volume_24h"`
	PriceChange5m    float64   `json:"price_change_5m"`
	PriceChange15m   float64   `json:"price_change_15m"`
	SocialScore      float64   `json:"social_score"`
	SocialMentions   int       `json:"social_mentions"`
	CreatedAt        time.Time `json:"created_at"`
}
