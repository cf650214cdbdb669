package control

import (
	"fmt"
	"time"
)

// KneePolicy tunes a concurrency limit against the rejection percentage.
// Rejections above TargetHigh grow the limit, rejections below TargetLow
// shrink it, and HardMax forces growth regardless of the band.
type KneePolicy struct {
	TargetLow    float64       `yaml:"targetLow"`
	TargetHigh   float64       `yaml:"targetHigh"`
	HardMax      float64       `yaml:"hardMax"`
	ChangeWindow time.Duration `yaml:"changeWindow"`
	StepSize     int           `yaml:"stepSize"`
	Min          int           `yaml:"min"`
	Max          int           `yaml:"max"`
}

func (p KneePolicy) Region(rejectionPct float64) Region {
	switch {
	case rejectionPct >= p.HardMax:
		return RegionPanic
	case rejectionPct > p.TargetHigh:
		return RegionAboveBand
	case rejectionPct < p.TargetLow:
		return RegionBelowBand
	default:
		return RegionInBand
	}
}

func (p KneePolicy) Decide(st State, rejectionPct float64) Decision {
	d := Decision{Proposed: ActionNoop, Action: ActionNoop, Region: p.Region(rejectionPct), Next: st.CurrentValue}

	switch d.Region {
	case RegionPanic, RegionAboveBand:
		d.Proposed = ActionIncrease
		if next := min(st.CurrentValue+p.StepSize, p.Max); next > st.CurrentValue {
			d.Action, d.Next = ActionIncrease, next
		}
	case RegionBelowBand:
		d.Proposed = ActionDecrease
		if next := max(st.CurrentValue-p.StepSize, p.Min); next < st.CurrentValue {
			d.Action, d.Next = ActionDecrease, next
		}
	}
	return d
}

func (p KneePolicy) Window(Action) time.Duration {
	return p.ChangeWindow
}

func (p KneePolicy) MaxWindow() time.Duration {
	return p.ChangeWindow
}

func (p KneePolicy) Bounds() (int, int) {
	return p.Min, p.Max
}

func (p KneePolicy) Validate() error {
	switch {
	case !finite(p.TargetLow) || !finite(p.TargetHigh) || !finite(p.HardMax):
		return fmt.Errorf("%w: rejection thresholds must be finite", ErrInvalidPolicy)
	case p.TargetLow < 0 || p.TargetLow > p.TargetHigh:
		return fmt.Errorf("%w: need 0 <= targetLow <= targetHigh", ErrInvalidPolicy)
	case p.HardMax < 0:
		return fmt.Errorf("%w: hardMax must not be negative", ErrInvalidPolicy)
	case p.ChangeWindow < 0:
		return fmt.Errorf("%w: change window must not be negative", ErrInvalidPolicy)
	}
	return validateBounds(p.StepSize, p.Min, p.Max)
}
