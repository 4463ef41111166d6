package screener

import (
	"fmt"
	"strings"

	"blitz/internal/config"
	"blitz/internal/logger"
	"blitz/internal/types"
)

// Criteria is one entry-condition profile for candidate tokens.
type Criteria struct {
	Name              string
	MinAgeMinutes     float64
	MaxAgeMinutes     float64
	MinLiquidity      float64
	MaxLiquidity      float64
	MinHolders        int
	MaxHolders        int
	MaxCreatorTxns    int
	MinSocialMentions int
}

// Presets. Strict narrows every band; relaxed widens them. All three reject
// honeypots unconditionally.
var presets = map[string]Criteria{
	"strict": {
		Name:              "strict",
		MinAgeMinutes:     1,
		MaxAgeMinutes:     8,
		MinLiquidity:      3000,
		MaxLiquidity:      8000,
		MinHolders:        75,
		MaxHolders:        400,
		MaxCreatorTxns:    2,
		MinSocialMentions: 5,
	},
	"default": {
		Name:              "default",
		MinAgeMinutes:     0.5,
		MaxAgeMinutes:     15,
		MinLiquidity:      2000,
		MaxLiquidity:      10000,
		MinHolders:        50,
		MaxHolders:        500,
		MaxCreatorTxns:    3,
		MinSocialMentions: 2,
	},
	"relaxed": {
		Name:              "relaxed",
		MinAgeMinutes:     0.25,
		MaxAgeMinutes:     25,
		MinLiquidity:      1500,
		MaxLiquidity:      15000,
		MinHolders:        30,
		MaxHolders:        800,
		MaxCreatorTxns:    5,
		MinSocialMentions: 0,
	},
}

// RejectionError lists every check a candidate failed.
type RejectionError struct {
	Symbol  string
	Reasons []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("candidate %s rejected: %s", e.Symbol, strings.Join(e.Reasons, "; "))
}

// Screener applies an entry-condition preset to candidate tokens.
type Screener struct {
	criteria Criteria
}

func New(cfg config.ScreenerConfig) (*Screener, error) {
	c, ok := presets[cfg.Preset]
	if !ok {
		return nil, fmt.Errorf("unknown screener preset %q", cfg.Preset)
	}
	return &Screener{criteria: c}, nil
}

// Criteria returns the active profile.
func (s *Screener) Criteria() Criteria {
	return s.criteria
}

// Screen checks a candidate against every criterion and returns a
// RejectionError naming all failures, or nil if the token passes. Collecting
// all reasons instead of the first makes rejection logs actually useful when
// tuning presets.
func (s *Screener) Screen(token types.TokenData) error {
	c := s.criteria
	var reasons []string

	if token.IsHoneypot {
		reasons = append(reasons, "flagged as honeypot")
	}
	if token.AgeMinutes < c.MinAgeMinutes || token.AgeMinutes > c.MaxAgeMinutes {
		reasons = append(reasons, fmt.Sprintf("age %.1fm outside %.1f-%.1fm", token.AgeMinutes, c.MinAgeMinutes, c.MaxAgeMinutes))
	}
	if token.Liquidity < c.MinLiquidity || token.Liquidity > c.MaxLiquidity {
		reasons = append(reasons, fmt.Sprintf("liquidity %.0f outside %.0f-%.0f", token.Liquidity, c.MinLiquidity, c.MaxLiquidity))
	}
	if token.Holders < c.MinHolders || token.Holders > c.MaxHolders {
		reasons = append(reasons, fmt.Sprintf("holders %d outside %d-%d", token.Holders, c.MinHolders, c.MaxHolders))
	}
	if token.CreatorTxnCount > c.MaxCreatorTxns {
		reasons = append(reasons, fmt.Sprintf("creator txns %d over limit %d", token.CreatorTxnCount, c.MaxCreatorTxns))
	}
	if token.SocialMentions < c.MinSocialMentions {
		reasons = append(reasons, fmt.Sprintf("social mentions %d under minimum %d", token.SocialMentions, c.MinSocialMentions))
	}

	if len(reasons) > 0 {
		logger.Debugf("screener (%s) rejected %s: %s", c.Name, token.Symbol, strings.Join(reasons, "; "))
		return &RejectionError{Symbol: token.Symbol, Reasons: reasons}
	}
	return nil
}

// SelectBest screens a candidate list and returns the passing token with the
// highest liquidity-adjusted social score, or false if none pass.
func (s *Screener) SelectBest(tokens []types.TokenData) (types.TokenData, bool) {
	var best types.TokenData
	bestScore := -1.0
	for _, t := range tokens {
		if err := s.Screen(t); err != nil {
			continue
		}
		score := t.SocialScore + t.Liquidity/s.criteria.MaxLiquidity
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, bestScore >= 0
}
