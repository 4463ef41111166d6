package timewin

import (
	"math"
	"sync"
	"time"

	"blitz/internal/config"
	"blitz/internal/logger"
)

// Window classifies the lifetime of a position into its three phases.
type Window int

const (
	WindowGolden Window = iota // no forced exit
	WindowDecay                // fixed fraction liquidated per interval
	WindowHardExpiry           // full exit, unconditionally
)

func (w Window) String() string {
	switch w {
	case WindowGolden:
		return "golden"
	case WindowDecay:
		return "decay"
	case WindowHardExpiry:
		return "hard_expiry"
	default:
		return "unknown"
	}
}

// Protocol tracks elapsed time for one open position and converts it into
// forced-exit fractions. One instance per position; Reset rearms it for the
// next one.
type Protocol struct {
	mu  sync.Mutex
	cfg config.TimeProtoConfig
	now func() time.Time

	positionStart  time.Time
	lastDecayCheck time.Time
	cumulativeExit float64 // monotonically non-decreasing, in [0,1]
}

// New starts a protocol with the current time as position start.
func New(cfg config.TimeProtoConfig) *Protocol {
	p := &Protocol{cfg: cfg, now: time.Now}
	p.positionStart = p.now()
	return p
}

// NewAt starts a protocol with an explicit position start time.
func NewAt(cfg config.TimeProtoConfig, start time.Time) *Protocol {
	return &Protocol{cfg: cfg, now: time.Now, positionStart: start}
}

// SetClock overrides the time source. Test hook.
func (p *Protocol) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// Reset rearms the protocol for a new position starting now.
func (p *Protocol) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionStart = p.now()
	p.lastDecayCheck = time.Time{}
	p.cumulativeExit = 0
}

// Elapsed returns time since position start.
func (p *Protocol) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsedLocked()
}

func (p *Protocol) elapsedLocked() time.Duration {
	d := p.now().Sub(p.positionStart)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns time until hard expiry; zero once past it.
func (p *Protocol) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remainingLocked()
}

func (p *Protocol) remainingLocked() time.Duration {
	max := time.Duration(p.cfg.HardExpiryMin) * time.Minute
	if elapsed := p.elapsedLocked(); elapsed < max {
		return max - elapsed
	}
	return 0
}

// CurrentWindow classifies the elapsed time into one of the three windows.
func (p *Protocol) CurrentWindow() Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windowAtLocked(p.elapsedLocked())
}

// WindowAt classifies an arbitrary elapsed duration.
func (p *Protocol) WindowAt(elapsed time.Duration) Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windowAtLocked(elapsed)
}

func (p *Protocol) windowAtLocked(elapsed time.Duration) Window {
	golden := time.Duration(p.cfg.GoldenWindowEndMin) * time.Minute
	hard := time.Duration(p.cfg.HardExpiryMin) * time.Minute
	switch {
	case elapsed < golden:
		return WindowGolden
	case elapsed < hard:
		return WindowDecay
	default:
		return WindowHardExpiry
	}
}

// ExitStrategy returns the incremental exit fraction due at this tick: zero
// in the golden window, the pending decay step in the decay window (idempotent
// within one interval), and whatever remains of the position at hard expiry.
// The cumulative total over a position's lifetime never exceeds 1.0.
func (p *Protocol) ExitStrategy() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.elapsedLocked()
	switch p.windowAtLocked(elapsed) {
	case WindowGolden:
		return 0
	case WindowDecay:
		return p.decayStepLocked(elapsed)
	default:
		remaining := 1.0 - p.cumulativeExit
		if remaining <= 0 {
			return 0
		}
		p.cumulativeExit = 1.0
		logger.Warnf("hard expiry reached after %.1f minutes, forcing full exit", elapsed.Minutes())
		return remaining
	}
}

// decayStepLocked computes the incremental fraction owed since the last decay
// check. The target is interval-count * decay-fraction, so repeated calls
// inside one interval return 0.
func (p *Protocol) decayStepLocked(elapsed time.Duration) float64 {
	now := p.now()
	interval := time.Duration(p.cfg.DecayIntervalMin) * time.Minute
	if !p.lastDecayCheck.IsZero() && now.Sub(p.lastDecayCheck) < interval {
		return 0
	}
	inDecay := elapsed - time.Duration(p.cfg.GoldenWindowEndMin)*time.Minute
	intervals := math.Floor(inDecay.Minutes() / float64(p.cfg.DecayIntervalMin))
	target := math.Min(intervals*p.cfg.DecayFraction, 1.0)
	if target <= p.cumulativeExit {
		return 0
	}
	step := target - p.cumulativeExit
	p.cumulativeExit = target
	p.lastDecayCheck = now
	logger.Infof("decay window: exiting additional %.1f%% (cumulative %.1f%%)", step*100, target*100)
	return step
}

// RearmStep hands an issued decay step back to the schedule after a failed
// sale. The cumulative total shrinks by the step and the interval gate
// reopens, so the next tick re-issues the same fraction instead of silently
// skipping it.
func (p *Protocol) RearmStep(step float64) {
	if step <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cumulativeExit -= step
	if p.cumulativeExit < 0 {
		p.cumulativeExit = 0
	}
	p.lastDecayCheck = time.Time{}
	logger.Warnf("decay step of %.1f%% re-armed after failed sale, cumulative back to %.1f%%",
		step*100, p.cumulativeExit*100)
}

// CumulativeExit reports the fraction already ordered out.
func (p *Protocol) CumulativeExit() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cumulativeExit
}

// IsEmergencyBufferReached reports whether the position is inside the final
// buffer before hard expiry. It escalates urgency upstream but does not
// itself force an exit.
func (p *Protocol) IsEmergencyBufferReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	buffer := time.Duration(p.cfg.EmergencyBufferMin) * time.Minute
	return p.remainingLocked() <= buffer
}

// ShouldForceClose reports whether hard expiry has passed.
func (p *Protocol) ShouldForceClose() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remainingLocked() == 0
}

// Urgency grades how close the position is to its deadline.
type Urgency int

const (
	UrgencyNone Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
	UrgencyImmediate
)

// Summary is a monitoring snapshot of the timing state.
type Summary struct {
	ElapsedMinutes   float64 `json:"elapsed_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
	Window           string  `json:"window"`
	CumulativeExit   float64 `json:"cumulative_exit"`
	EmergencyBuffer  bool    `json:"emergency_buffer"`
	ForceClose       bool    `json:"force_close"`
	Urgency          Urgency `json:"urgency"`
}

// Summarize builds the timing snapshot used by status reporting.
func (p *Protocol) Summarize() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.elapsedLocked()
	remaining := p.remainingLocked()
	window := p.windowAtLocked(elapsed)
	buffer := time.Duration(p.cfg.EmergencyBufferMin) * time.Minute

	urgency := UrgencyNone
	switch window {
	case WindowDecay:
		switch {
		case remaining <= buffer:
			urgency = UrgencyCritical
		case remaining < 15*time.Minute:
			urgency = UrgencyHigh
		case remaining < 25*time.Minute:
			urgency = UrgencyMedium
		default:
			urgency = UrgencyLow
		}
	case WindowHardExpiry:
		urgency = UrgencyImmediate
	}

	return Summary{
		ElapsedMinutes:   elapsed.Minutes(),
		RemainingMinutes: remaining.Minutes(),
		Window:           window.String(),
		CumulativeExit:   p.cumulativeExit,
		EmergencyBuffer:  remaining <= buffer,
		ForceClose:       remaining == 0,
		Urgency:          urgency,
	}
}
