package devicesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
	"github.com/dokzlo13/lumina/internal/wled/wledtest"
)

var base = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

// rule builds an enabled daily rule updated i minutes after base.
func rule(i int, trigger rules.Trigger, action rules.Action) rules.Rule {
	return rules.Rule{
		ID:        fmt.Sprintf("r%d", i),
		Trigger:   trigger,
		Repeat:    rules.EveryDay(),
		Action:    action,
		Enabled:   true,
		UpdatedAt: base.Add(time.Duration(i) * time.Minute),
	}
}

func withOff(r rules.Rule, off rules.Trigger) rules.Rule {
	r.OffTrigger = &off
	return r
}

func withPreset(r rules.Rule, id int) rules.Rule {
	r.DevicePresetID = wled.Int(id)
	return r
}

func TestCompile_TruncatesToTimerCapacity(t *testing.T) {
	var rs []rules.Rule
	for i := 0; i < 10; i++ {
		rs = append(rs, rule(i, rules.Clock(18, i), rules.PowerOn("")))
	}

	plan := Compile(rs)
	require.Len(t, plan.Entries, wled.MaxTimers)
	require.Equal(t, []string{"r1", "r0"}, plan.Dropped)
	require.Equal(t, "r9", plan.Entries[0].RuleID)
}

func TestCompile_TiesKeepStoreOrder(t *testing.T) {
	var rs []rules.Rule
	for i := 0; i < 9; i++ {
		r := rule(i, rules.Clock(7, i), rules.PowerOn(""))
		r.UpdatedAt = base
		rs = append(rs, r)
	}

	plan := Compile(rs)
	require.Equal(t, []string{"r8"}, plan.Dropped)
	require.Equal(t, "r0", plan.Entries[0].RuleID)
}

func TestCompile_WindowNeedsTwoSlots(t *testing.T) {
	var rs []rules.Rule
	for i := 10; i < 17; i++ {
		rs = append(rs, rule(i, rules.Clock(6, i), rules.PowerOn("")))
	}
	rs = append(rs, withOff(rule(5, rules.SunsetTrigger(0), rules.PowerOn("")), rules.Clock(23, 0)))
	rs = append(rs, rule(1, rules.Clock(5, 0), rules.PowerOff()))

	plan := Compile(rs)
	require.Len(t, plan.Entries, wled.MaxTimers)
	require.Equal(t, []string{"r5"}, plan.Dropped)
	require.Equal(t, "r1", plan.Entries[7].RuleID)
}

func TestCompile_WindowEntries(t *testing.T) {
	r := withOff(rule(1, rules.SunsetTrigger(-15), rules.SetBrightness(50)), rules.Clock(23, 30))
	r.Repeat = rules.OnDays(rules.Mon, rules.Wed, rules.Fri)

	plan := Compile([]rules.Rule{r})
	require.Equal(t, []wled.Timer{
		{Enabled: true, Hour: wled.HourSunset, Minute: -15, Macro: 4, DOW: 42},
		{Enabled: true, Hour: 23, Minute: 30, Macro: PresetOff, DOW: 42},
	}, plan.Timers())
	require.True(t, plan.Entries[1].Off)

	ids := make([]int, 0, len(plan.Presets))
	for _, p := range plan.Presets {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []int{PresetOff, 4}, ids)
	require.Empty(t, plan.Assignments)
}

func TestCompile_DayMasks(t *testing.T) {
	tests := []struct {
		name   string
		repeat rules.RepeatDays
		want   uint8
	}{
		{"daily", rules.EveryDay(), 127},
		{"mon_wed_fri", rules.OnDays(rules.Mon, rules.Wed, rules.Fri), 42},
		{"weekend", rules.OnDays(rules.Sat, rules.Sun), 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule(1, rules.Clock(8, 0), rules.PowerOff())
			r.Repeat = tt.repeat
			plan := Compile([]rules.Rule{r})
			require.Equal(t, tt.want, plan.Entries[0].Timer.DOW)
		})
	}
}

func TestCompile_ReservedPresets(t *testing.T) {
	tests := []struct {
		name   string
		action rules.Action
		want   int
	}{
		{"off", rules.PowerOff(), PresetOff},
		{"plain_on", rules.PowerOn(""), PresetOn},
		{"brightness_25", rules.SetBrightness(25), 3},
		{"brightness_100", rules.SetBrightness(100), 6},
		{"brightness_40", rules.SetBrightness(40), UserPresetFirst},
		{"named_on", rules.PowerOn("Warm White"), UserPresetFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Compile([]rules.Rule{rule(1, rules.Clock(8, 0), tt.action)})
			require.Equal(t, tt.want, plan.Entries[0].Timer.Macro)
		})
	}
}

func TestCompile_PresetAllocation(t *testing.T) {
	pattern := rules.RunPattern("Candy Cane", &wled.State{Segments: []wled.Segment{{Effect: wled.Int(44)}}})

	rs := []rules.Rule{
		withPreset(rule(4, rules.Clock(17, 0), pattern), 12), // keeps 12
		withPreset(rule(3, rules.Clock(18, 0), pattern), 12), // duplicate, reallocated
		rule(2, rules.Clock(19, 0), pattern),                 // new
		withPreset(rule(1, rules.Clock(20, 0), rules.PowerOff()), 15),
		withPreset(rule(0, rules.Clock(21, 0), pattern), 3), // outside the band
	}

	plan := Compile(rs)
	require.Equal(t, map[string]int{
		"r3": 10,
		"r2": 11,
		"r1": 0,
		"r0": 13,
	}, plan.Assignments)

	macros := map[string]int{}
	for _, e := range plan.Entries {
		macros[e.RuleID] = e.Timer.Macro
	}
	require.Equal(t, 12, macros["r4"])
	require.Equal(t, PresetOff, macros["r1"])
}

func TestCompile_DroppedRulesHoldNoPreset(t *testing.T) {
	var rs []rules.Rule
	for i := 0; i < 10; i++ {
		rs = append(rs, rule(i, rules.Clock(18, i), rules.PowerOn(fmt.Sprintf("p%d", i))))
	}
	// r0 is dropped for capacity; its old id goes to a rule that fits.
	rs[0] = withPreset(rs[0], 17)

	plan := Compile(rs)
	require.Equal(t, []string{"r1", "r0"}, plan.Dropped)
	require.Equal(t, map[string]int{
		"r9": 10, "r8": 11, "r7": 12, "r6": 13,
		"r5": 14, "r4": 15, "r3": 16, "r2": 17,
		"r0": 0,
	}, plan.Assignments)

	written := map[int]string{}
	for _, p := range plan.Presets {
		written[p.ID] = p.RuleID
	}
	require.Len(t, written, wled.MaxTimers)
	require.Equal(t, "r2", written[17])
	for ruleID, preset := range plan.Assignments {
		if preset != 0 {
			require.Equal(t, ruleID, written[preset])
		}
	}
}

func TestCompile_IgnoresDisabled(t *testing.T) {
	r := rule(1, rules.Clock(8, 0), rules.PowerOff())
	r.Enabled = false
	plan := Compile([]rules.Rule{r})
	require.Empty(t, plan.Entries)
	require.Empty(t, plan.Dropped)
	require.Empty(t, plan.Presets)
}

func TestPush_SunsetRule(t *testing.T) {
	dev := wledtest.New(nil)
	r := rule(1, rules.SunsetTrigger(0), rules.PowerOn("Warm White"))

	res := Push(context.Background(), dev, []rules.Rule{r})
	require.True(t, res.Success)
	require.NoError(t, res.Err)
	require.Equal(t, map[string]int{"r1": 10}, res.Assigned)

	require.Equal(t, []wled.Timer{{Enabled: true, Hour: 25, Minute: 0, Macro: 10, DOW: 127}}, dev.Timers())
	require.Equal(t, "Warm White", dev.Names[10])
	require.True(t, dev.Presets[10].IsOn())
	require.Len(t, dev.Config.Timers.Instances, wled.MaxTimers)
}

func TestPush_NoController(t *testing.T) {
	res := Push(context.Background(), nil, []rules.Rule{rule(1, rules.Clock(8, 0), rules.PowerOff())})
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, ErrNoController)
	require.Nil(t, res.Assigned)
}

func TestPush_PartialPresetFailure(t *testing.T) {
	dev := wledtest.New(nil)
	dev.PresetErr[10] = errors.New("flash full")

	rs := []rules.Rule{
		rule(2, rules.Clock(18, 0), rules.PowerOn("Warm White")),
		rule(1, rules.Clock(23, 0), rules.PowerOff()),
	}

	res := Push(context.Background(), dev, rs)
	require.False(t, res.Success)
	require.True(t, res.Partial)
	require.Error(t, res.Err)
	require.Len(t, res.PresetErrors, 1)
	require.Equal(t, "r2", res.PresetErrors[0].RuleID)
	require.Equal(t, []string{"r2"}, res.Skipped)
	require.Nil(t, res.Assigned)

	require.Equal(t, []wled.Timer{{Enabled: true, Hour: 23, Minute: 0, Macro: PresetOff, DOW: 127}}, dev.Timers())
}

func TestPush_SkippedRuleLosesPresetID(t *testing.T) {
	dev := wledtest.New(nil)
	dev.PresetErr[12] = errors.New("flash full")

	rs := []rules.Rule{
		withPreset(rule(3, rules.Clock(18, 0), rules.PowerOn("Warm White")), 12),
		rule(2, rules.Clock(19, 0), rules.RunPattern("Fire", &wled.State{On: wled.Bool(true)})),
	}

	res := Push(context.Background(), dev, rs)
	require.True(t, res.Partial)
	require.Equal(t, []string{"r3"}, res.Skipped)
	require.Equal(t, map[string]int{"r3": 0, "r2": 10}, res.Assigned)
	require.Equal(t, []wled.Timer{{Enabled: true, Hour: 19, Minute: 0, Macro: 10, DOW: 127}}, dev.Timers())
}

func TestPush_TimerFailure(t *testing.T) {
	dev := wledtest.New(nil)
	dev.ConfigErr = fmt.Errorf("post cfg: %w", wled.ErrUnreachable)

	res := Push(context.Background(), dev, []rules.Rule{rule(1, rules.Clock(8, 0), rules.PowerOff())})
	require.False(t, res.Success)
	require.False(t, res.Partial)
	require.ErrorIs(t, res.Err, wled.ErrUnreachable)
	require.ErrorIs(t, res.TimerError, wled.ErrUnreachable)
	require.Nil(t, dev.Config)
}

func TestPush_EmptyRuleSetClearsTable(t *testing.T) {
	dev := wledtest.New(nil)
	res := Push(context.Background(), dev, nil)
	require.True(t, res.Success)
	require.NotNil(t, dev.Config)
	require.Empty(t, dev.Timers())
}
