package control

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeoutPolicy() HysteresisPolicy {
	return HysteresisPolicy{
		Target:                4,
		DeadbandPct:           0.75,
		PanicMultiplier:       2,
		DecreaseStablePeriods: 3,
		IncreaseCooldown:      time.Minute,
		DecreaseCooldown:      3 * time.Minute,
		StepSize:              100,
		Min:                   700,
		Max:                   1500,
	}
}

func retryPolicy() HysteresisPolicy {
	return HysteresisPolicy{
		Target:                1,
		DeadbandPct:           0.3,
		PanicMultiplier:       3,
		DecreaseStablePeriods: 10,
		IncreaseCooldown:      time.Minute,
		DecreaseCooldown:      10 * time.Minute,
		StepSize:              1,
		Min:                   1,
		Max:                   3,
		PartialIncreaseCap:    2,
	}
}

func TestHysteresisPolicy_Band(t *testing.T) {
	b := timeoutPolicy().Band()
	assert.InDelta(t, 3.25, b.Lower, 1e-9)
	assert.InDelta(t, 4.75, b.Upper, 1e-9)
	assert.InDelta(t, 8.0, b.Panic, 1e-9)

	p := timeoutPolicy()
	p.Target = 0.5
	assert.Equal(t, 0.0, p.Band().Lower, "lower edge never goes negative")
}

func TestHysteresisPolicy_Regions(t *testing.T) {
	p := timeoutPolicy()
	cases := []struct {
		value float64
		want  Region
	}{
		{9, RegionPanic},
		{8, RegionPanic},
		{7.99, RegionAboveBand},
		{4.76, RegionAboveBand},
		{4.75, RegionInBand},
		{3.25, RegionInBand},
		{3.24, RegionBelowBand},
		{0, RegionBelowBand},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, p.Region(tc.value), "value %v", tc.value)
	}
}

func TestHysteresisPolicy_PanicFastPath(t *testing.T) {
	d := timeoutPolicy().Decide(State{CurrentValue: 1000, StableStreak: 2}, 9)
	assert.Equal(t, ActionIncrease, d.Action)
	assert.Equal(t, RegionPanic, d.Region)
	assert.Equal(t, 1100, d.Next)
	assert.Equal(t, 0, d.Streak)
}

func TestHysteresisPolicy_InBandResetsStreak(t *testing.T) {
	d := timeoutPolicy().Decide(State{CurrentValue: 1000, StableStreak: 2}, 4)
	assert.Equal(t, ActionNoop, d.Action)
	assert.Equal(t, ActionNoop, d.Proposed)
	assert.Equal(t, 0, d.Streak)
	assert.Equal(t, 1000, d.Next)
}

func TestHysteresisPolicy_StabilityGating(t *testing.T) {
	p := timeoutPolicy()
	st := State{CurrentValue: 1300}

	wantActions := []Action{ActionNoop, ActionNoop, ActionDecrease}
	wantStreaks := []int{1, 2, 0}
	for i := range wantActions {
		d := p.Decide(st, 2.0)
		assert.Equal(t, wantActions[i], d.Action, "sample %d", i+1)
		assert.Equal(t, wantStreaks[i], d.Streak, "sample %d", i+1)
		st.StableStreak = d.Streak
	}
}

func TestHysteresisPolicy_ClampAtBoundsDegeneratesToNoop(t *testing.T) {
	p := timeoutPolicy()

	up := p.Decide(State{CurrentValue: 1500}, 9)
	assert.Equal(t, ActionIncrease, up.Proposed)
	assert.Equal(t, ActionNoop, up.Action)
	assert.Equal(t, 1500, up.Next)

	down := p.Decide(State{CurrentValue: 700, StableStreak: 2}, 1)
	assert.Equal(t, ActionDecrease, down.Proposed)
	assert.Equal(t, ActionNoop, down.Action)
	assert.Equal(t, 0, down.Streak, "streak resets on the proposal even when clamped")
}

func TestHysteresisPolicy_ClampPartialStep(t *testing.T) {
	p := timeoutPolicy()
	d := p.Decide(State{CurrentValue: 1450}, 9)
	assert.Equal(t, 1500, d.Next)

	d = p.Decide(State{CurrentValue: 750, StableStreak: 2}, 1)
	assert.Equal(t, 700, d.Next)
}

func TestHysteresisPolicy_RetryPartialCap(t *testing.T) {
	p := retryPolicy()

	above := p.Decide(State{CurrentValue: 1}, 1.5)
	assert.Equal(t, RegionAboveBand, above.Region)
	assert.Equal(t, ActionIncrease, above.Action)
	assert.Equal(t, 2, above.Next)

	capped := p.Decide(State{CurrentValue: 2}, 1.5)
	assert.Equal(t, ActionIncrease, capped.Proposed)
	assert.Equal(t, ActionNoop, capped.Action, "non-panic increases stop at the partial cap")
	assert.Equal(t, 2, capped.Next)

	panicked := p.Decide(State{CurrentValue: 2}, 3.5)
	assert.Equal(t, RegionPanic, panicked.Region)
	assert.Equal(t, 3, panicked.Next)
}

func TestHysteresisPolicy_AboveBandPullsBackToPartialCap(t *testing.T) {
	p := retryPolicy()
	p.Max = 5
	d := p.Decide(State{CurrentValue: 4}, 1.5)
	assert.Equal(t, RegionAboveBand, d.Region)
	assert.Equal(t, ActionIncrease, d.Action)
	assert.Equal(t, 2, d.Next)
}

func TestHysteresisPolicy_ClampInvariant(t *testing.T) {
	p := timeoutPolicy()
	p.StepSize = 70
	st := State{CurrentValue: 1000}
	samples := []float64{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5}
	for _, v := range samples {
		d := p.Decide(st, v)
		require.GreaterOrEqual(t, d.Next, p.Min)
		require.LessOrEqual(t, d.Next, p.Max)
		st.CurrentValue = d.Next
		st.StableStreak = d.Streak
	}
}

func TestHysteresisPolicy_Windows(t *testing.T) {
	p := timeoutPolicy()
	assert.Equal(t, time.Minute, p.Window(ActionIncrease))
	assert.Equal(t, 3*time.Minute, p.Window(ActionDecrease))
	assert.Equal(t, 3*time.Minute, p.MaxWindow())
}

func TestHysteresisPolicy_Validate(t *testing.T) {
	require.NoError(t, timeoutPolicy().Validate())
	require.NoError(t, retryPolicy().Validate())

	mutations := map[string]func(*HysteresisPolicy){
		"nan target":        func(p *HysteresisPolicy) { p.Target = math.NaN() },
		"negative deadband": func(p *HysteresisPolicy) { p.DeadbandPct = -1 },
		"panic below one":   func(p *HysteresisPolicy) { p.PanicMultiplier = 0.5 },
		"zero periods":      func(p *HysteresisPolicy) { p.DecreaseStablePeriods = 0 },
		"negative cooldown": func(p *HysteresisPolicy) { p.DecreaseCooldown = -time.Second },
		"zero step":         func(p *HysteresisPolicy) { p.StepSize = 0 },
		"inverted bounds":   func(p *HysteresisPolicy) { p.Min, p.Max = 10, 5 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := timeoutPolicy()
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
}

func TestCooldownElapsed(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, CooldownElapsed(base.Add(time.Minute), base, time.Minute), "boundary is inclusive")
	assert.False(t, CooldownElapsed(base.Add(59*time.Second), base, time.Minute))
	assert.True(t, CooldownElapsed(base, base, 0))
}
