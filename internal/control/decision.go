package control

import (
	"fmt"
	"math"
	"time"
)

// Action is the setpoint movement a decision asks for.
type Action string

const (
	ActionNoop     Action = "noop"
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
)

// Region classifies a sample against the operating band.
type Region string

const (
	RegionPanic     Region = "panic"
	RegionAboveBand Region = "above_band"
	RegionInBand    Region = "in_band"
	RegionBelowBand Region = "below_band"
)

// Decision is the outcome of evaluating one sample against one state record.
// Proposed is what the band logic asked for; Action is what remains after
// clamping (a clamped move that changes nothing becomes ActionNoop).
type Decision struct {
	Proposed Action
	Action   Action
	Region   Region
	Next     int
	Streak   int
}

// Policy turns a sample into a decision. Decide must be pure.
type Policy interface {
	Decide(st State, value float64) Decision
	// Window returns the cooldown that must elapse before applying action.
	Window(action Action) time.Duration
	// MaxWindow is the longest cooldown of the policy.
	MaxWindow() time.Duration
	Bounds() (lo, hi int)
	Validate() error
}

// Band is the hysteresis band derived from a target.
type Band struct {
	Lower float64
	Upper float64
	Panic float64
}

// HysteresisPolicy keeps a signal inside [target-deadband, target+deadband],
// increases immediately above the band and decreases only after
// DecreaseStablePeriods consecutive samples below it.
type HysteresisPolicy struct {
	Target                float64       `yaml:"target"`
	DeadbandPct           float64       `yaml:"deadbandPct"`
	PanicMultiplier       float64       `yaml:"panicMultiplier"`
	DecreaseStablePeriods int           `yaml:"decreaseStablePeriods"`
	IncreaseCooldown      time.Duration `yaml:"increaseCooldown"`
	DecreaseCooldown      time.Duration `yaml:"decreaseCooldown"`
	StepSize              int           `yaml:"stepSize"`
	Min                   int           `yaml:"min"`
	Max                   int           `yaml:"max"`
	// PartialIncreaseCap limits non-panic increases to this value (0 disables).
	PartialIncreaseCap int `yaml:"partialIncreaseCap"`
}

func (p HysteresisPolicy) Band() Band {
	return Band{
		Lower: math.Max(0, p.Target-p.DeadbandPct),
		Upper: p.Target + p.DeadbandPct,
		Panic: p.Target * p.PanicMultiplier,
	}
}

func (p HysteresisPolicy) Region(value float64) Region {
	b := p.Band()
	switch {
	case value >= b.Panic:
		return RegionPanic
	case value > b.Upper:
		return RegionAboveBand
	case value >= b.Lower:
		return RegionInBand
	default:
		return RegionBelowBand
	}
}

func (p HysteresisPolicy) Decide(st State, value float64) Decision {
	d := Decision{Proposed: ActionNoop, Action: ActionNoop, Region: p.Region(value), Next: st.CurrentValue}

	switch d.Region {
	case RegionPanic, RegionAboveBand:
		d.Proposed = ActionIncrease
		ceiling := p.Max
		if d.Region != RegionPanic && p.PartialIncreaseCap > 0 && p.PartialIncreaseCap < ceiling {
			ceiling = p.PartialIncreaseCap
		}
		// A value raised past the cap by a panic is pulled back to it.
		next := min(st.CurrentValue+p.StepSize, ceiling)
		if next != st.CurrentValue {
			d.Action = ActionIncrease
			d.Next = next
		}
	case RegionInBand:
	case RegionBelowBand:
		d.Streak = st.StableStreak + 1
		if d.Streak >= p.DecreaseStablePeriods {
			d.Streak = 0
			d.Proposed = ActionDecrease
			next := max(st.CurrentValue-p.StepSize, p.Min)
			if next < st.CurrentValue {
				d.Action = ActionDecrease
				d.Next = next
			}
		}
	}
	return d
}

func (p HysteresisPolicy) Window(action Action) time.Duration {
	if action == ActionDecrease {
		return p.DecreaseCooldown
	}
	return p.IncreaseCooldown
}

func (p HysteresisPolicy) MaxWindow() time.Duration {
	return max(p.IncreaseCooldown, p.DecreaseCooldown)
}

func (p HysteresisPolicy) Bounds() (int, int) {
	return p.Min, p.Max
}

func (p HysteresisPolicy) Validate() error {
	switch {
	case !finite(p.Target) || p.Target < 0:
		return fmt.Errorf("%w: target must be a non-negative number", ErrInvalidPolicy)
	case !finite(p.DeadbandPct) || p.DeadbandPct < 0:
		return fmt.Errorf("%w: deadband must be a non-negative number", ErrInvalidPolicy)
	case !finite(p.PanicMultiplier) || p.PanicMultiplier < 1:
		return fmt.Errorf("%w: panic multiplier must be >= 1", ErrInvalidPolicy)
	case p.DecreaseStablePeriods < 1:
		return fmt.Errorf("%w: decrease stable periods must be >= 1", ErrInvalidPolicy)
	case p.IncreaseCooldown < 0 || p.DecreaseCooldown < 0:
		return fmt.Errorf("%w: cooldowns must not be negative", ErrInvalidPolicy)
	case p.PartialIncreaseCap < 0:
		return fmt.Errorf("%w: partial increase cap must not be negative", ErrInvalidPolicy)
	}
	return validateBounds(p.StepSize, p.Min, p.Max)
}

func validateBounds(step, lo, hi int) error {
	switch {
	case step < 1:
		return fmt.Errorf("%w: step size must be >= 1", ErrInvalidPolicy)
	case lo < 0:
		return fmt.Errorf("%w: min must not be negative", ErrInvalidPolicy)
	case lo > hi:
		return fmt.Errorf("%w: min %d exceeds max %d", ErrInvalidPolicy, lo, hi)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp pins v into [lo, hi].
func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
