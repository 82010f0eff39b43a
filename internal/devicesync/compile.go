// Package devicesync compiles the enabled rule set into the controller's
// preset and timer tables and pushes them.
package devicesync

import (
	"fmt"
	"sort"

	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

// Reserved preset ids. System presets live below the user band.
const (
	PresetOff = 1
	PresetOn  = 2

	UserPresetFirst = 10
	UserPresetLast  = 25
)

// brightnessTiers maps percentages with a reserved preset to its id.
var brightnessTiers = map[int]int{25: 3, 50: 4, 75: 5, 100: 6}

// SystemPreset returns the state and name stored under a reserved id.
func SystemPreset(id int) (*wled.State, string, bool) {
	switch id {
	case PresetOff:
		return &wled.State{On: wled.Bool(false)}, "Off", true
	case PresetOn:
		return &wled.State{On: wled.Bool(true)}, "On", true
	}
	for pct, tier := range brightnessTiers {
		if tier == id {
			return &wled.State{On: wled.Bool(true), Bri: wled.Int(rules.PercentToDevice(pct))}, fmt.Sprintf("Brightness %d%%", pct), true
		}
	}
	return nil, "", false
}

// IsUserPreset reports whether id lies in the user band.
func IsUserPreset(id int) bool {
	return id >= UserPresetFirst && id <= UserPresetLast
}

// Entry is one compiled timer slot.
type Entry struct {
	RuleID string
	Timer  wled.Timer
	Off    bool // end-of-window entry
}

// PresetWrite is one preset to store before the timer table is pushed.
type PresetWrite struct {
	ID     int
	Name   string
	State  *wled.State
	RuleID string // empty for system presets
}

// Plan is the compiled form of a rule set.
type Plan struct {
	Entries []Entry
	Presets []PresetWrite

	// Assignments are device preset id changes to record in the store.
	// A zero value clears a stale id.
	Assignments map[string]int

	// Dropped lists enabled rules that got no timer entry, in priority order.
	Dropped []string
}

// Timers returns the timer of every entry.
func (p Plan) Timers() []wled.Timer {
	out := make([]wled.Timer, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Timer
	}
	return out
}

// Priority orders enabled rules for truncation: most recently updated first,
// ties keep store order.
func Priority(rs []rules.Rule) []rules.Rule {
	var out []rules.Rule
	for _, r := range rs {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// reservedPreset returns the system preset a rule can use without a user preset.
func reservedPreset(a rules.Action) (int, bool) {
	switch a.Kind {
	case rules.ActionPowerOff:
		return PresetOff, true
	case rules.ActionPowerOn:
		if a.Pattern == "" && a.Payload == nil {
			return PresetOn, true
		}
	case rules.ActionSetBrightness:
		if id, ok := brightnessTiers[a.Percent]; ok {
			return id, true
		}
	}
	return 0, false
}

// EncodeTrigger converts a trigger to timer hour and minute fields.
func EncodeTrigger(t rules.Trigger) (hour, minute int) {
	if t.IsSolar() {
		if t.Event == rules.Sunrise {
			return wled.HourSunrise, t.OffsetMinutes
		}
		return wled.HourSunset, t.OffsetMinutes
	}
	return t.Hour, t.Minute
}

func timerFor(t rules.Trigger, macro int, dow uint8) wled.Timer {
	hour, minute := EncodeTrigger(t)
	return wled.Timer{Enabled: true, Hour: hour, Minute: minute, Macro: macro, DOW: dow}
}

// Compile fills at most wled.MaxTimers entries in priority order, then
// allocates presets for the rules that made it. It does not touch the
// device or the rules.
func Compile(rs []rules.Rule) Plan {
	ordered := Priority(rs)
	plan := Plan{Assignments: make(map[string]int)}

	var included []*rules.Rule
	slots := 0
	for i := range ordered {
		r := &ordered[i]
		needed := 1
		if r.OffTrigger != nil {
			needed = 2
		}
		if slots+needed > wled.MaxTimers {
			plan.Dropped = append(plan.Dropped, r.ID)
			// Its preset is not written, so the old id may hold anything.
			if r.DevicePresetID != nil {
				plan.Assignments[r.ID] = 0
			}
			continue
		}
		slots += needed
		included = append(included, r)
	}

	macros := allocatePresets(included, plan.Assignments)

	systemUsed := make(map[int]bool)
	for _, r := range included {
		macro := macros[r.ID]
		dow := r.Repeat.Mask()
		plan.Entries = append(plan.Entries, Entry{RuleID: r.ID, Timer: timerFor(r.Trigger, macro, dow)})
		if r.OffTrigger != nil {
			plan.Entries = append(plan.Entries, Entry{RuleID: r.ID, Timer: timerFor(*r.OffTrigger, PresetOff, dow), Off: true})
			systemUsed[PresetOff] = true
		}

		if IsUserPreset(macro) {
			plan.Presets = append(plan.Presets, PresetWrite{
				ID:     macro,
				Name:   r.DisplayName(),
				State:  r.Action.PresetState(),
				RuleID: r.ID,
			})
		} else {
			systemUsed[macro] = true
		}
	}

	// System presets first, in id order.
	var system []PresetWrite
	for id := PresetOff; id < UserPresetFirst; id++ {
		if !systemUsed[id] {
			continue
		}
		state, name, _ := SystemPreset(id)
		system = append(system, PresetWrite{ID: id, Name: name, State: state})
	}
	plan.Presets = append(system, plan.Presets...)

	if len(plan.Assignments) == 0 {
		plan.Assignments = nil
	}
	return plan
}

// allocatePresets picks the macro of every included rule and records id
// changes in assignments. The user band holds more ids than the timer table
// holds entries, so every included rule gets one.
func allocatePresets(included []*rules.Rule, assignments map[string]int) map[string]int {
	macros := make(map[string]int, len(included))
	claimed := make(map[int]bool)

	// Keep existing user-band ids, first claimant wins.
	for _, r := range included {
		if _, ok := reservedPreset(r.Action); ok || r.DevicePresetID == nil {
			continue
		}
		id := *r.DevicePresetID
		if IsUserPreset(id) && !claimed[id] {
			claimed[id] = true
			macros[r.ID] = id
		}
	}

	next := UserPresetFirst
	for _, r := range included {
		if id, ok := reservedPreset(r.Action); ok {
			macros[r.ID] = id
			if r.DevicePresetID != nil {
				assignments[r.ID] = 0
			}
			continue
		}
		if _, ok := macros[r.ID]; ok {
			continue
		}
		for claimed[next] {
			next++
		}
		claimed[next] = true
		macros[r.ID] = next
		assignments[r.ID] = next
	}
	return macros
}
