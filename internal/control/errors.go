package control

import (
	"errors"
	"fmt"
)

// Admission failures. These are expected, recoverable-by-waiting conditions:
// callers should re-poll after the implied delay instead of retrying
// immediately.
var (
	ErrHoldTimeViolation         = errors.New("hold time violation: minimum spacing between operations not met")
	ErrWalletRotationRequired    = errors.New("wallet rotation required: per-wallet operation limit reached")
	ErrCoolDownPeriod            = errors.New("cooldown period active after consecutive losses")
	ErrPsychologyFundInsufficient = errors.New("psychology fund below minimum balance")
	ErrNoActiveOperation         = errors.New("no active operation")
	ErrOperationInProgress       = errors.New("operation already in progress")
)

// BattlefieldValidationError carries the reason a candidate token failed the
// liquidity/holder screen.
type BattlefieldValidationError struct {
	Reason string
}

func (e *BattlefieldValidationError) Error() string {
	return fmt.Sprintf("battlefield validation failed: %s", e.Reason)
}
