package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/whorules/arm-controller/internal/control"
)

// Override keys understood by the runtime policy table.
const (
	KeyTarget                = "target"
	KeyDeadbandPct           = "deadband_pct"
	KeyPanicMultiplier       = "panic_multiplier"
	KeyDecreaseStablePeriods = "decrease_stable_periods"
	KeyIncreaseCooldown      = "increase_cooldown"
	KeyDecreaseCooldown      = "decrease_cooldown"
	KeyPartialIncreaseCap    = "partial_increase_cap"
	KeyTargetLow             = "target_low"
	KeyTargetHigh            = "target_high"
	KeyHardMax               = "hard_max"
	KeyChangeWindow          = "change_window"
	KeyStepSize              = "step_size"
	KeyMin                   = "min"
	KeyMax                   = "max"
)

// ApplyOverrides returns a copy of base with every override applied. Any bad
// key or value rejects the whole set so a half-applied policy never escapes.
func ApplyOverrides(base control.Policy, overrides map[string]string) (control.Policy, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch p := base.(type) {
	case control.HysteresisPolicy:
		for _, k := range keys {
			if err := setHysteresis(&p, strings.TrimSpace(k), strings.TrimSpace(overrides[k])); err != nil {
				return nil, err
			}
		}
		return p, p.Validate()
	case control.KneePolicy:
		for _, k := range keys {
			if err := setKnee(&p, strings.TrimSpace(k), strings.TrimSpace(overrides[k])); err != nil {
				return nil, err
			}
		}
		return p, p.Validate()
	default:
		return nil, fmt.Errorf("unsupported policy type %T", base)
	}
}

func setHysteresis(p *control.HysteresisPolicy, key, value string) error {
	var err error
	switch key {
	case KeyTarget:
		p.Target, err = parseFloat(key, value)
	case KeyDeadbandPct:
		p.DeadbandPct, err = parseFloat(key, value)
	case KeyPanicMultiplier:
		p.PanicMultiplier, err = parseFloat(key, value)
	case KeyDecreaseStablePeriods:
		p.DecreaseStablePeriods, err = parseInt(key, value)
	case KeyIncreaseCooldown:
		p.IncreaseCooldown, err = parseDuration(key, value)
	case KeyDecreaseCooldown:
		p.DecreaseCooldown, err = parseDuration(key, value)
	case KeyPartialIncreaseCap:
		p.PartialIncreaseCap, err = parseInt(key, value)
	case KeyStepSize:
		p.StepSize, err = parseInt(key, value)
	case KeyMin:
		p.Min, err = parseInt(key, value)
	case KeyMax:
		p.Max, err = parseInt(key, value)
	default:
		err = fmt.Errorf("%w: unknown key %q", control.ErrInvalidPolicy, key)
	}
	return err
}

func setKnee(p *control.KneePolicy, key, value string) error {
	var err error
	switch key {
	case KeyTargetLow:
		p.TargetLow, err = parseFloat(key, value)
	case KeyTargetHigh:
		p.TargetHigh, err = parseFloat(key, value)
	case KeyHardMax:
		p.HardMax, err = parseFloat(key, value)
	case KeyChangeWindow:
		p.ChangeWindow, err = parseDuration(key, value)
	case KeyStepSize:
		p.StepSize, err = parseInt(key, value)
	case KeyMin:
		p.Min, err = parseInt(key, value)
	case KeyMax:
		p.Max, err = parseInt(key, value)
	default:
		err = fmt.Errorf("%w: unknown key %q", control.ErrInvalidPolicy, key)
	}
	return err
}

func parseFloat(key, value string) (float64, error) {
	v, err := control.ParseSampleValue(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a finite number", control.ErrInvalidPolicy, key, value)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", control.ErrInvalidPolicy, key, value)
	}
	return v, nil
}

// parseDuration accepts Go durations ("90s") and bare milliseconds ("90000").
func parseDuration(key, value string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", control.ErrInvalidPolicy, key, value)
	}
	return d, nil
}
