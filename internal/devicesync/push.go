package devicesync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

// ErrNoController is returned when no controller is configured.
var ErrNoController = errors.New("no controller configured")

// PresetError records one failed preset write.
type PresetError struct {
	PresetID int
	RuleID   string // empty for system presets
	Err      error
}

func (e PresetError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("preset %d: %v", e.PresetID, e.Err)
	}
	return fmt.Sprintf("preset %d (rule %s): %v", e.PresetID, e.RuleID, e.Err)
}

func (e PresetError) Unwrap() error { return e.Err }

// Result summarizes one push.
type Result struct {
	// Success is true only when every preset and the timer table were written.
	Success bool
	// Partial is true when the timer table was written but some presets failed.
	Partial bool
	Err     error

	PresetErrors []PresetError
	TimerError   error

	// Assigned are preset id changes for the store to record. Zero clears.
	Assigned map[string]int
	// Dropped lists rules left off the timer table.
	Dropped []string
	// Skipped lists rules whose entries were removed because their preset failed.
	Skipped []string
	Timers  []wled.Timer
}

// Push compiles rs and writes presets, then the timer table, to device.
// Preset failures do not stop the timer push; entries that reference a
// failed preset are left out of it. Nothing is retried.
func Push(ctx context.Context, device wled.Device, rs []rules.Rule) Result {
	if device == nil {
		return Result{Err: ErrNoController}
	}

	plan := Compile(rs)
	res := Result{Dropped: plan.Dropped}

	failed := make(map[int]bool)
	for _, p := range plan.Presets {
		if err := device.SavePreset(ctx, p.ID, p.State, p.Name); err != nil {
			log.Warn().Err(err).Int("preset", p.ID).Str("rule", p.RuleID).Msg("Preset write failed")
			res.PresetErrors = append(res.PresetErrors, PresetError{PresetID: p.ID, RuleID: p.RuleID, Err: err})
			failed[p.ID] = true
		}
	}

	skipped := make(map[string]bool)
	for _, e := range plan.Entries {
		if failed[e.Timer.Macro] {
			skipped[e.RuleID] = true
		}
	}
	for _, e := range plan.Entries {
		if skipped[e.RuleID] {
			continue
		}
		res.Timers = append(res.Timers, e.Timer)
	}
	for _, e := range plan.Entries {
		if skipped[e.RuleID] && !slices.Contains(res.Skipped, e.RuleID) {
			res.Skipped = append(res.Skipped, e.RuleID)
		}
	}
	res.Assigned = assigned(plan.Assignments, rs, skipped)

	if err := device.ApplyConfig(ctx, wled.NewTimerConfig(res.Timers)); err != nil {
		res.TimerError = err
	}

	errs := make([]error, 0, len(res.PresetErrors)+1)
	for _, pe := range res.PresetErrors {
		errs = append(errs, pe)
	}
	if res.TimerError != nil {
		errs = append(errs, fmt.Errorf("timer table: %w", res.TimerError))
	}
	res.Err = errors.Join(errs...)
	res.Success = res.Err == nil
	res.Partial = res.TimerError == nil && len(res.PresetErrors) > 0

	ev := log.Info()
	if !res.Success {
		ev = log.Warn().Err(res.Err)
	}
	ev.Int("timers", len(res.Timers)).
		Int("presets", len(plan.Presets)).
		Int("preset_errors", len(res.PresetErrors)).
		Int("dropped", len(res.Dropped)).
		Bool("partial", res.Partial).
		Msg("Device sync finished")
	return res
}

// assigned drops the new ids of skipped rules and clears the ids they held:
// the preset on the device does not hold their action.
func assigned(planned map[string]int, rs []rules.Rule, skipped map[string]bool) map[string]int {
	if len(skipped) == 0 {
		return planned
	}
	out := make(map[string]int, len(planned))
	for id, preset := range planned {
		if !skipped[id] {
			out[id] = preset
		}
	}
	for _, r := range rs {
		if skipped[r.ID] && r.DevicePresetID != nil {
			out[r.ID] = 0
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
