package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9992"
	defaultTickSeconds = 5

	defaultOpsStorePath = "data/db/operations.db"
	defaultFlagDBPath   = "data/db/flagged_tokens.db"
	defaultLadderPath   = "configs/exit_ladders.yaml"
)

// applyDefaults fills every unset field with the documented default. Zero
// values are treated as unset; thresholds that legitimately allow zero carry
// explicit negatives in the config file instead.
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Wallet.applyDefaults()
	c.Control.applyDefaults()
	c.TimeProto.applyDefaults()
	c.Exit.applyDefaults()
	c.Emergency.applyDefaults()
	c.Mining.applyDefaults()
	c.Metrics.applyDefaults()
	c.Screener.applyDefaults()
	c.TokenFeed.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if a.TickSeconds <= 0 {
		a.TickSeconds = defaultTickSeconds
	}
	if a.OpsStorePath == "" {
		a.OpsStorePath = defaultOpsStorePath
	}
	if a.FlagDBPath == "" {
		a.FlagDBPath = defaultFlagDBPath
	}
	if a.LadderPath == "" {
		a.LadderPath = defaultLadderPath
	}
}

func (w *WalletConfig) applyDefaults() {
	if w.TotalCapital <= 0 {
		w.TotalCapital = 20.0
	}
	if w.LightningRatio <= 0 {
		w.LightningRatio = 0.20
	}
	if w.EmergencyRatio <= 0 {
		w.EmergencyRatio = 0.175
	}
	if w.ReentryRatio <= 0 {
		w.ReentryRatio = 0.225
	}
	if w.PsychologyRatio <= 0 {
		w.PsychologyRatio = 0.20
	}
	if w.TacticalRatio <= 0 {
		w.TacticalRatio = 0.20
	}
}

func (c *ControlConfig) applyDefaults() {
	if c.MinHoldTimeMinutes <= 0 {
		c.MinHoldTimeMinutes = 55
	}
	if c.MaxHoldTimeMinutes <= 0 {
		c.MaxHoldTimeMinutes = 60
	}
	if c.MaxOperationsPerWallet <= 0 {
		c.MaxOperationsPerWallet = 3
	}
	if c.RotationCooldownMin <= 0 {
		c.RotationCooldownMin = 30
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = 3
	}
	if c.LossCooldownMinutes <= 0 {
		c.LossCooldownMinutes = 30
	}
	if c.PsychologyTaxRate <= 0 {
		c.PsychologyTaxRate = 0.10
	}
	if c.MinPsychologyBalance <= 0 {
		c.MinPsychologyBalance = 2.0
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 2000.0
	}
	if c.MaxLiquidity <= 0 {
		c.MaxLiquidity = 10000.0
	}
	if c.MinHolderCount <= 0 {
		c.MinHolderCount = 50
	}
	if c.MaxHolderCount <= 0 {
		c.MaxHolderCount = 500
	}
}

func (t *TimeProtoConfig) applyDefaults() {
	if t.GoldenWindowEndMin <= 0 {
		t.GoldenWindowEndMin = 15
	}
	if t.DecayWindowEndMin <= 0 {
		t.DecayWindowEndMin = 45
	}
	if t.HardExpiryMin <= 0 {
		t.HardExpiryMin = 55
	}
	if t.DecayIntervalMin <= 0 {
		t.DecayIntervalMin = 5
	}
	if t.DecayFraction <= 0 {
		t.DecayFraction = 0.33
	}
	if t.EmergencyBufferMin <= 0 {
		t.EmergencyBufferMin = 5
	}
}

func (e *ExitConfig) applyDefaults() {
	if e.VolatilityThreshold <= 0 {
		e.VolatilityThreshold = 0.25
	}
	if e.RedCandleThreshold <= 0 {
		e.RedCandleThreshold = 3
	}
	if e.PriceDropThreshold <= 0 {
		e.PriceDropThreshold = 0.20
	}
	if e.NegativeSentiment == 0 {
		e.NegativeSentiment = -0.7
	}
	if e.PanicSentiment == 0 {
		e.PanicSentiment = -0.8
	}
	if e.MentionCountThreshold <= 0 {
		e.MentionCountThreshold = 15
	}
	if e.PanicMentionThreshold <= 0 {
		e.PanicMentionThreshold = 5
	}
	if e.SentimentWindowMin <= 0 {
		e.SentimentWindowMin = 10
	}
	if e.PriceHistoryCap <= 0 {
		e.PriceHistoryCap = 100
	}
}

func (e *EmergencyConfig) applyDefaults() {
	if e.CreatorSellThreshold <= 0 {
		e.CreatorSellThreshold = 0.05
	}
	if e.LiquidityDrop <= 0 {
		e.LiquidityDrop = 0.30
	}
	if e.PriceDropThreshold <= 0 {
		e.PriceDropThreshold = 0.40
	}
	if e.HoneypotConfidence <= 0 {
		e.HoneypotConfidence = 0.8
	}
	if e.MaxExecutionSeconds <= 0 {
		e.MaxExecutionSeconds = 30
	}
	if e.BreakerMinutes <= 0 {
		e.BreakerMinutes = 30
	}
}

func (m *MiningConfig) applyDefaults() {
	if m.PositionSizeRatio <= 0 {
		m.PositionSizeRatio = 0.8
	}
	if m.ReentryBoostRatio <= 0 {
		m.ReentryBoostRatio = 0.6
	}
	if m.LPAllocationRatio <= 0 {
		m.LPAllocationRatio = 0.375
	}
	if m.PreferredVenue == "" {
		m.PreferredVenue = "raydium"
	}
	if m.DefaultSlippage <= 0 {
		m.DefaultSlippage = 3.5
	}
	if m.PriorityFeeBase <= 0 {
		m.PriorityFeeBase = 0.001
	}
	if m.PriorityFeeFactor <= 0 {
		m.PriorityFeeFactor = 1.5
	}
	if m.ReentryThreshold <= 0 {
		m.ReentryThreshold = 0.15
	}
	if m.MaxReentries <= 0 {
		m.MaxReentries = 2
	}
	if m.ReentryCooldownSec <= 0 {
		m.ReentryCooldownSec = 300
	}
}

func (m *MetricsConfig) applyDefaults() {
	if m.StartingCapital <= 0 {
		m.StartingCapital = 20.0
	}
	if m.HistoryCap <= 0 {
		m.HistoryCap = 1000
	}
	if m.ReturnsCap <= 0 {
		m.ReturnsCap = 500
	}
}

func (s *ScreenerConfig) applyDefaults() {
	if s.Preset == "" {
		s.Preset = "default"
	}
}

func (t *TokenFeedConfig) applyDefaults() {
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = 10
	}
}
