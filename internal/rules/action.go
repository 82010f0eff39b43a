package rules

import (
	"fmt"
	"math"

	"github.com/dokzlo13/lumina/internal/wled"
)

// ActionKind discriminates the Action union.
type ActionKind string

const (
	ActionPowerOff      ActionKind = "power_off"
	ActionPowerOn       ActionKind = "power_on"
	ActionSetBrightness ActionKind = "set_brightness"
	ActionRunPattern    ActionKind = "run_pattern"
)

// Action is what a rule does when its start trigger fires.
type Action struct {
	Kind    ActionKind  `json:"kind"`
	Percent int         `json:"percent,omitempty"` // set_brightness, 1-100
	Pattern string      `json:"pattern,omitempty"` // display name, optional for power_on
	Payload *wled.State `json:"payload,omitempty"` // full device state, required for run_pattern
}

// PowerOff returns an action that switches the lights off.
func PowerOff() Action { return Action{Kind: ActionPowerOff} }

// PowerOn returns an action that switches the lights on, optionally with a named pattern.
func PowerOn(pattern string) Action { return Action{Kind: ActionPowerOn, Pattern: pattern} }

// SetBrightness returns an action that sets brightness in percent.
func SetBrightness(percent int) Action { return Action{Kind: ActionSetBrightness, Percent: percent} }

// RunPattern returns an action that applies a full device payload.
func RunPattern(name string, payload *wled.State) Action {
	return Action{Kind: ActionRunPattern, Pattern: name, Payload: payload}
}

// Validate checks the fields required by the action's kind.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionPowerOff, ActionPowerOn:
	case ActionSetBrightness:
		if a.Percent < 1 || a.Percent > 100 {
			return fmt.Errorf("brightness %d%% out of range 1-100", a.Percent)
		}
	case ActionRunPattern:
		if a.Pattern == "" {
			return fmt.Errorf("run_pattern requires a pattern name")
		}
		if a.Payload == nil {
			return fmt.Errorf("run_pattern %q requires a device payload", a.Pattern)
		}
	default:
		return fmt.Errorf("unknown action kind: %q", a.Kind)
	}
	return nil
}

// PercentToDevice converts 0-100% to the controller's 0-255 brightness.
func PercentToDevice(percent int) int {
	return int(math.Round(float64(percent) * 255 / 100))
}

// IntendedState is the device payload the action should leave behind,
// or nil if the action carries nothing comparable.
func (a Action) IntendedState() *wled.State {
	switch a.Kind {
	case ActionPowerOff:
		return &wled.State{On: wled.Bool(false)}
	case ActionPowerOn:
		if a.Payload != nil {
			st := a.Payload.Clone()
			st.On = wled.Bool(true)
			return st
		}
		return &wled.State{On: wled.Bool(true)}
	case ActionSetBrightness:
		return &wled.State{On: wled.Bool(true), Bri: wled.Int(PercentToDevice(a.Percent))}
	case ActionRunPattern:
		if a.Payload == nil {
			return nil
		}
		st := a.Payload.Clone()
		if st.On == nil {
			st.On = wled.Bool(true)
		}
		return st
	}
	return nil
}

// PresetState is the state saved on the controller behind this action's
// timer. Power-off actions use the reserved off preset and return nil.
func (a Action) PresetState() *wled.State {
	if a.Kind == ActionPowerOff {
		return nil
	}
	return a.IntendedState()
}

// Label is a short human-readable description.
func (a Action) Label() string {
	switch a.Kind {
	case ActionPowerOff:
		return "off"
	case ActionPowerOn:
		if a.Pattern != "" {
			return "on (" + a.Pattern + ")"
		}
		return "on"
	case ActionSetBrightness:
		return fmt.Sprintf("brightness %d%%", a.Percent)
	case ActionRunPattern:
		return "pattern " + a.Pattern
	}
	return string(a.Kind)
}
