package emergency

import "fmt"

// TriggerKind names the condition that fired the panic path.
type TriggerKind int

const (
	TriggerCreatorSell TriggerKind = iota
	TriggerLiquidityRemoval
	TriggerTimeExpiry
	TriggerMassiveDump
	TriggerHoneypot
	TriggerNetworkCongestion
	TriggerRiskLimit
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerCreatorSell:
		return "creator_sell"
	case TriggerLiquidityRemoval:
		return "liquidity_removal"
	case TriggerTimeExpiry:
		return "time_expiry"
	case TriggerMassiveDump:
		return "massive_dump"
	case TriggerHoneypot:
		return "honeypot"
	case TriggerNetworkCongestion:
		return "network_congestion"
	case TriggerRiskLimit:
		return "risk_limit"
	default:
		return "unknown"
	}
}

// Trigger is one detected panic condition. Magnitude carries the detected
// fraction or confidence, depending on the kind.
type Trigger struct {
	Kind      TriggerKind
	Magnitude float64
	Detail    string
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s (%.2f): %s", t.Kind, t.Magnitude, t.Detail)
}

// slippageFor maps a trigger to the slippage tolerance the panic sell will
// accept. Worse conditions tolerate worse fills: getting out matters more
// than the price.
func slippageFor(t Trigger) float64 {
	switch t.Kind {
	case TriggerCreatorSell:
		return 50
	case TriggerLiquidityRemoval:
		if t.Magnitude > 0.5 {
			return 60
		}
		return 45
	case TriggerTimeExpiry:
		return 35
	case TriggerMassiveDump:
		if t.Magnitude > 0.5 {
			return 55
		}
		return 45
	case TriggerHoneypot:
		return 70
	case TriggerNetworkCongestion:
		return 40
	case TriggerRiskLimit:
		return 45
	default:
		return 45
	}
}

// flagReasonFor maps a trigger to the denylist reason recorded for the token.
func flagReasonFor(t Trigger) string {
	switch t.Kind {
	case TriggerCreatorSell:
		return "creator_dump"
	case TriggerLiquidityRemoval, TriggerTimeExpiry:
		return "liquidity_issues"
	case TriggerMassiveDump:
		return "rug_pull"
	case TriggerHoneypot:
		return "honeypot"
	case TriggerNetworkCongestion:
		return "network_issues"
	default:
		return "scam"
	}
}

// Severity grades operator notifications.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// severityFor maps a trigger to its notification severity.
func severityFor(t Trigger) Severity {
	switch t.Kind {
	case TriggerMassiveDump, TriggerHoneypot:
		return SeverityCritical
	case TriggerCreatorSell, TriggerLiquidityRemoval, TriggerRiskLimit:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ActionKind names one step of a panic plan.
type ActionKind int

const (
	ActionCancelOrders ActionKind = iota
	ActionMarketSell
	ActionTransferTactical
	ActionFlagToken
	ActionNotify
	ActionArmBreaker
	ActionEmergencyWithdraw
)

func (k ActionKind) String() string {
	switch k {
	case ActionCancelOrders:
		return "cancel_orders"
	case ActionMarketSell:
		return "market_sell"
	case ActionTransferTactical:
		return "transfer_tactical"
	case ActionFlagToken:
		return "flag_token"
	case ActionNotify:
		return "notify"
	case ActionArmBreaker:
		return "arm_breaker"
	case ActionEmergencyWithdraw:
		return "emergency_withdraw"
	default:
		return "unknown"
	}
}

// Action is one executable step. Only the fields its kind reads are set.
type Action struct {
	Kind        ActionKind
	SlippagePct float64  // market sell
	FlagReason  string   // flag token
	Message     string   // notify
	Severity    Severity // notify
	BreakerMin  int      // arm breaker
}

// Plan is a ready-to-execute panic exit: an ordered action list, the index
// order to run it in, a hard time budget, and the fallback actions that run
// when the budget is exhausted mid-plan.
type Plan struct {
	Trigger         Trigger
	Actions         []Action
	ExecutionOrder  []int
	MaxExecutionSec int
	FallbackActions []Action
}

// SlippagePct reports the tolerance of the plan's market-sell step.
func (p Plan) SlippagePct() float64 {
	for _, a := range p.Actions {
		if a.Kind == ActionMarketSell {
			return a.SlippagePct
		}
	}
	return 0
}
