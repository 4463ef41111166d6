package config

// Config is the top-level configuration carrier for the controller process.
type Config struct {
	App       AppConfig       `toml:"app"`
	Wallet    WalletConfig    `toml:"wallet"`
	Control   ControlConfig   `toml:"control"`
	TimeProto TimeProtoConfig `toml:"time_protocol"`
	Exit      ExitConfig      `toml:"exit"`
	Emergency EmergencyConfig `toml:"emergency"`
	Mining    MiningConfig    `toml:"mining"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Screener  ScreenerConfig  `toml:"screener"`
	Notify    NotifyConfig    `toml:"notify"`
	TokenFeed TokenFeedConfig `toml:"token_feed"`
}

type AppConfig struct {
	Env          string  `toml:"env"`
	LogLevel     string  `toml:"log_level"`
	HTTPAddr     string  `toml:"http_addr"`
	LogPath      string  `toml:"log_path"`
	TickSeconds  int     `toml:"tick_seconds"`
	OpsStorePath string  `toml:"ops_store_path"`
	FlagDBPath   string  `toml:"flag_db_path"`
	LadderPath   string  `toml:"ladder_path"`
}

// WalletConfig describes the five-bucket capital split.
type WalletConfig struct {
	TotalCapital     float64 `toml:"total_capital"`
	LightningRatio   float64 `toml:"lightning_ratio"`
	EmergencyRatio   float64 `toml:"emergency_gas_ratio"`
	ReentryRatio     float64 `toml:"reentry_ratio"`
	PsychologyRatio  float64 `toml:"psychology_ratio"`
	TacticalRatio    float64 `toml:"tactical_exit_ratio"`
}

// ControlConfig carries the 5 Commandments thresholds.
type ControlConfig struct {
	MinHoldTimeMinutes     int     `toml:"min_hold_time_minutes"`
	MaxHoldTimeMinutes     int     `toml:"max_hold_time_minutes"`
	MaxOperationsPerWallet int     `toml:"max_operations_per_wallet"`
	RotationCooldownMin    int     `toml:"wallet_rotation_cooldown_minutes"`
	MaxConsecutiveLosses   int     `toml:"max_consecutive_losses"`
	LossCooldownMinutes    int     `toml:"cooldown_after_losses_minutes"`
	PsychologyTaxRate      float64 `toml:"psychology_tax_rate"`
	MinPsychologyBalance   float64 `toml:"min_psychology_fund_balance"`
	MinLiquidity           float64 `toml:"min_liquidity"`
	MaxLiquidity           float64 `toml:"max_liquidity"`
	MinHolderCount         int     `toml:"min_holder_count"`
	MaxHolderCount         int     `toml:"max_holder_count"`
}

type TimeProtoConfig struct {
	GoldenWindowEndMin  int     `toml:"golden_window_end_minutes"`
	DecayWindowEndMin   int     `toml:"decay_window_end_minutes"`
	HardExpiryMin       int     `toml:"hard_expiry_minutes"`
	DecayIntervalMin    int     `toml:"decay_interval_minutes"`
	DecayFraction       float64 `toml:"decay_fraction"`
	EmergencyBufferMin  int     `toml:"emergency_buffer_minutes"`
}

type ExitConfig struct {
	VolatilityThreshold   float64 `toml:"volatility_threshold"`
	RedCandleThreshold    int     `toml:"red_candle_threshold"`
	PriceDropThreshold    float64 `toml:"price_drop_threshold"`
	NegativeSentiment     float64 `toml:"negative_sentiment_threshold"`
	PanicSentiment        float64 `toml:"panic_sentiment_threshold"`
	MentionCountThreshold int     `toml:"mention_count_threshold"`
	PanicMentionThreshold int     `toml:"panic_mention_threshold"`
	SentimentWindowMin    int     `toml:"sentiment_window_minutes"`
	PriceHistoryCap       int     `toml:"price_history_cap"`
}

type EmergencyConfig struct {
	CreatorSellThreshold float64 `toml:"creator_sell_threshold"`
	LiquidityDrop        float64 `toml:"liquidity_drop_threshold"`
	PriceDropThreshold   float64 `toml:"price_drop_threshold"`
	HoneypotConfidence   float64 `toml:"honeypot_confidence_threshold"`
	MaxExecutionSeconds  int     `toml:"max_execution_seconds"`
	BreakerMinutes       int     `toml:"circuit_breaker_minutes"`
}

type MiningConfig struct {
	PositionSizeRatio  float64 `toml:"position_size_ratio"`
	ReentryBoostRatio  float64 `toml:"reentry_boost_ratio"`
	LPAllocationRatio  float64 `toml:"lp_allocation_ratio"`
	PreferredVenue     string  `toml:"preferred_venue"`
	DefaultSlippage    float64 `toml:"default_slippage"`
	PriorityFeeBase    float64 `toml:"priority_fee_base"`
	PriorityFeeFactor  float64 `toml:"priority_fee_factor"`
	ReentryThreshold   float64 `toml:"reentry_price_threshold"`
	MaxReentries       int     `toml:"max_reentries"`
	ReentryCooldownSec int     `toml:"reentry_cooldown_seconds"`
}

type MetricsConfig struct {
	StartingCapital float64 `toml:"starting_capital"`
	HistoryCap      int     `toml:"history_cap"`
	ReturnsCap      int     `toml:"returns_cap"`
}

type ScreenerConfig struct {
	Preset string `toml:"preset"` // strict | default | relaxed
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type TokenFeedConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}
