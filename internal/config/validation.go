package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Wallet.validate(); err != nil {
		return err
	}
	if err := c.Control.validate(); err != nil {
		return err
	}
	if err := c.TimeProto.validate(); err != nil {
		return err
	}
	if err := c.Exit.validate(); err != nil {
		return err
	}
	if err := c.Emergency.validate(); err != nil {
		return err
	}
	if err := c.Mining.validate(); err != nil {
		return err
	}
	if err := c.Screener.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (w *WalletConfig) validate() error {
	sum := w.LightningRatio + w.EmergencyRatio + w.ReentryRatio + w.PsychologyRatio + w.TacticalRatio
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("wallet bucket ratios must sum to 1.0, got %.4f", sum)
	}
	return nil
}

func (c *ControlConfig) validate() error {
	if c.MaxHoldTimeMinutes < c.MinHoldTimeMinutes {
		return fmt.Errorf("control.max_hold_time_minutes must be >= min_hold_time_minutes")
	}
	if c.PsychologyTaxRate >= 1 {
		return fmt.Errorf("control.psychology_tax_rate must be < 1.0")
	}
	if c.MaxLiquidity <= c.MinLiquidity {
		return fmt.Errorf("control.max_liquidity must be > min_liquidity")
	}
	if c.MaxHolderCount <= c.MinHolderCount {
		return fmt.Errorf("control.max_holder_count must be > min_holder_count")
	}
	return nil
}

func (t *TimeProtoConfig) validate() error {
	if t.DecayWindowEndMin <= t.GoldenWindowEndMin {
		return fmt.Errorf("time_protocol.decay_window_end_minutes must be > golden_window_end_minutes")
	}
	if t.HardExpiryMin < t.DecayWindowEndMin {
		return fmt.Errorf("time_protocol.hard_expiry_minutes must be >= decay_window_end_minutes")
	}
	if t.DecayFraction <= 0 || t.DecayFraction > 1 {
		return fmt.Errorf("time_protocol.decay_fraction must be in (0, 1]")
	}
	if t.EmergencyBufferMin >= t.HardExpiryMin {
		return fmt.Errorf("time_protocol.emergency_buffer_minutes must be < hard_expiry_minutes")
	}
	return nil
}

func (e *ExitConfig) validate() error {
	if e.NegativeSentiment >= 0 {
		return fmt.Errorf("exit.negative_sentiment_threshold must be negative")
	}
	if e.PanicSentiment > e.NegativeSentiment {
		return fmt.Errorf("exit.panic_sentiment_threshold must be stricter than negative_sentiment_threshold")
	}
	if e.PriceDropThreshold <= 0 || e.PriceDropThreshold >= 1 {
		return fmt.Errorf("exit.price_drop_threshold must be in (0, 1)")
	}
	return nil
}

func (e *EmergencyConfig) validate() error {
	if e.HoneypotConfidence <= 0 || e.HoneypotConfidence > 1 {
		return fmt.Errorf("emergency.honeypot_confidence_threshold must be in (0, 1]")
	}
	if e.PriceDropThreshold <= 0 || e.PriceDropThreshold >= 1 {
		return fmt.Errorf("emergency.price_drop_threshold must be in (0, 1)")
	}
	return nil
}

func (m *MiningConfig) validate() error {
	if m.PositionSizeRatio > 0.8 {
		return fmt.Errorf("mining.position_size_ratio capped at 0.8")
	}
	if m.ReentryBoostRatio > 0.6 {
		return fmt.Errorf("mining.reentry_boost_ratio capped at 0.6")
	}
	return nil
}

func (s *ScreenerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Preset)) {
	case "strict", "default", "relaxed":
		return nil
	default:
		return fmt.Errorf("screener.preset must be strict, default or relaxed, got %q", s.Preset)
	}
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
