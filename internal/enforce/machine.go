// Package enforce keeps the controller on schedule. A polling state machine
// compares live device state to the active rule and re-applies it on drift,
// holding off for a grace period after a manual override.
package enforce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/geo"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

// State of the enforcement machine.
type State int

const (
	StateDisabled State = iota
	StateWatching
	StateGracePeriod
	StateEnforcing
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateWatching:
		return "watching"
	case StateGracePeriod:
		return "grace_period"
	case StateEnforcing:
		return "enforcing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode selects enforcement strictness.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeSoft     Mode = "soft"
	ModeStrict   Mode = "strict"
)

// ParseMode accepts "disabled", "soft" or "strict". Empty means disabled.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDisabled:
		return ModeDisabled, nil
	case ModeSoft, ModeStrict:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown enforcement mode: %q", s)
}

// Timing holds the mode-dependent intervals.
type Timing struct {
	PollInterval time.Duration `json:"poll_interval"`
	GracePeriod  time.Duration `json:"grace_period"`
	Cooldown     time.Duration `json:"cooldown"`
}

// DefaultTiming returns the built-in intervals for m.
func DefaultTiming(m Mode) Timing {
	if m == ModeStrict {
		return Timing{PollInterval: 30 * time.Second, GracePeriod: 5 * time.Minute, Cooldown: time.Minute}
	}
	return Timing{PollInterval: 2 * time.Minute, GracePeriod: 30 * time.Minute, Cooldown: 5 * time.Minute}
}

// DefaultBrightnessTolerance is the accepted brightness difference in device units.
const DefaultBrightnessTolerance = 10

// RuleSource provides the rules to enforce.
type RuleSource interface {
	Enabled() []rules.Rule
}

// Finder picks the rule active at an instant.
type Finder interface {
	FindActive(now time.Time, rs []rules.Rule, coords *geo.Coordinates) *rules.Rule
}

// Options configure a Machine. Zero timing fields fall back to DefaultTiming.
type Options struct {
	Mode                Mode
	Timings             map[Mode]Timing
	BrightnessTolerance int
	Coordinates         *geo.Coordinates
	Clock               Clock
}

// OutcomeKind says what a tick did.
type OutcomeKind string

const (
	OutcomeDisabled     OutcomeKind = "disabled"
	OutcomeGracePeriod  OutcomeKind = "grace_period"
	OutcomeCooldown     OutcomeKind = "cooldown"
	OutcomeNoActiveRule OutcomeKind = "no_active_rule"
	OutcomeNoPayload    OutcomeKind = "no_payload"
	OutcomeInSync       OutcomeKind = "in_sync"
	OutcomeCorrected    OutcomeKind = "corrected"
	OutcomeFailed       OutcomeKind = "failed"
)

// Outcome describes one tick.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	RuleID   string      `json:"rule_id,omitempty"`
	Drift    []string    `json:"drift,omitempty"`
	PresetID int         `json:"preset_id,omitempty"` // set when the correction loaded a preset
	At       time.Time   `json:"at"`
}

// Runtime is a snapshot of the machine's service-local state.
type Runtime struct {
	State             State      `json:"state"`
	Mode              Mode       `json:"mode"`
	Timing            Timing     `json:"timing"`
	OverridePending   bool       `json:"override_pending"`
	LastOverrideAt    *time.Time `json:"last_override_at,omitempty"`
	LastEnforcementAt *time.Time `json:"last_enforcement_at,omitempty"`
}

// Machine is the enforcement state machine. Tick must not run concurrently
// with itself; Service takes care of that. RecordOverride and Runtime are
// safe from any goroutine.
type Machine struct {
	device wled.Device
	source RuleSource
	finder Finder
	coords *geo.Coordinates
	clock  Clock
	tol    int

	timings map[Mode]Timing

	mu              sync.Mutex
	mode            Mode
	state           State
	overridePending bool
	lastOverride    time.Time
	lastEnforcement time.Time
	modeChanged     chan struct{}
}

// NewMachine creates a machine in Watching state, or Disabled for ModeDisabled.
func NewMachine(device wled.Device, source RuleSource, finder Finder, opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.BrightnessTolerance <= 0 {
		opts.BrightnessTolerance = DefaultBrightnessTolerance
	}
	if opts.Mode == "" {
		opts.Mode = ModeDisabled
	}

	timings := make(map[Mode]Timing, 2)
	for _, m := range []Mode{ModeSoft, ModeStrict} {
		t := DefaultTiming(m)
		if custom, ok := opts.Timings[m]; ok {
			if custom.PollInterval > 0 {
				t.PollInterval = custom.PollInterval
			}
			if custom.GracePeriod > 0 {
				t.GracePeriod = custom.GracePeriod
			}
			if custom.Cooldown > 0 {
				t.Cooldown = custom.Cooldown
			}
		}
		timings[m] = t
	}

	m := &Machine{
		device:      device,
		source:      source,
		finder:      finder,
		coords:      opts.Coordinates,
		clock:       opts.Clock,
		tol:         opts.BrightnessTolerance,
		timings:     timings,
		mode:        opts.Mode,
		modeChanged: make(chan struct{}, 1),
	}
	m.state = m.restingState()
	return m
}

// restingState is the state outside a tick. Callers hold mu.
func (m *Machine) restingState() State {
	switch {
	case m.mode == ModeDisabled:
		return StateDisabled
	case m.overridePending:
		return StateGracePeriod
	default:
		return StateWatching
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Timing returns the intervals of the current mode.
func (m *Machine) Timing() Timing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timings[m.mode]
}

// SetMode switches mode. A running Service picks up the new poll interval.
func (m *Machine) SetMode(mode Mode) {
	m.mu.Lock()
	if m.mode == mode {
		m.mu.Unlock()
		return
	}
	m.mode = mode
	if mode == ModeDisabled {
		m.overridePending = false
	}
	m.state = m.restingState()
	m.mu.Unlock()

	log.Info().Str("mode", string(mode)).Msg("Enforcement mode changed")
	select {
	case m.modeChanged <- struct{}{}:
	default:
	}
}

// RecordOverride notes a manual change on the device. The next ticks within
// the grace period take no action. Returns false when enforcement is disabled.
func (m *Machine) RecordOverride() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeDisabled {
		return false
	}
	m.lastOverride = m.clock.Now()
	m.overridePending = true
	if m.state != StateEnforcing {
		m.state = StateGracePeriod
	}
	log.Info().Time("at", m.lastOverride).Dur("grace", m.timings[m.mode].GracePeriod).Msg("Manual override recorded")
	return true
}

// Runtime returns a snapshot. An elapsed grace period reads as watching
// before the next tick clears it.
func (m *Machine) Runtime() Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := Runtime{
		State:           m.state,
		Mode:            m.mode,
		Timing:          m.timings[m.mode],
		OverridePending: m.overridePending,
	}
	if m.overridePending && m.clock.Now().Sub(m.lastOverride) >= rt.Timing.GracePeriod {
		rt.OverridePending = false
		if rt.State == StateGracePeriod {
			rt.State = StateWatching
		}
	}
	if !m.lastOverride.IsZero() {
		t := m.lastOverride
		rt.LastOverrideAt = &t
	}
	if !m.lastEnforcement.IsZero() {
		t := m.lastEnforcement
		rt.LastEnforcementAt = &t
	}
	return rt
}

// Tick runs one poll. Device errors are returned with OutcomeFailed and leave
// the machine ready for the next tick.
func (m *Machine) Tick(ctx context.Context) (Outcome, error) {
	now := m.clock.Now()
	out := Outcome{At: now}

	m.mu.Lock()
	if m.mode == ModeDisabled {
		m.mu.Unlock()
		out.Kind = OutcomeDisabled
		return out, nil
	}
	timing := m.timings[m.mode]
	if m.overridePending {
		if now.Sub(m.lastOverride) < timing.GracePeriod {
			m.mu.Unlock()
			out.Kind = OutcomeGracePeriod
			return out, nil
		}
		m.overridePending = false
		m.state = StateWatching
		log.Debug().Msg("Grace period elapsed")
	}
	if !m.lastEnforcement.IsZero() && now.Sub(m.lastEnforcement) < timing.Cooldown {
		m.mu.Unlock()
		out.Kind = OutcomeCooldown
		return out, nil
	}
	m.mu.Unlock()

	active := m.finder.FindActive(now, m.source.Enabled(), m.coords)
	if active == nil {
		out.Kind = OutcomeNoActiveRule
		return out, nil
	}
	out.RuleID = active.ID

	intended := active.Action.IntendedState()
	if intended == nil {
		out.Kind = OutcomeNoPayload
		return out, nil
	}

	live, err := m.device.GetState(ctx)
	if err != nil {
		out.Kind = OutcomeFailed
		return out, fmt.Errorf("read device state: %w", err)
	}

	out.Drift = Compare(intended, live, m.tol)
	if len(out.Drift) == 0 {
		out.Kind = OutcomeInSync
		return out, nil
	}

	m.setState(StateEnforcing)
	log.Info().Str("rule", active.ID).Strs("drift", out.Drift).Msg("Drift detected, enforcing schedule")

	if active.DevicePresetID != nil {
		out.PresetID = *active.DevicePresetID
		err = m.device.LoadPreset(ctx, out.PresetID)
	} else {
		err = m.device.ApplyJSON(ctx, intended)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = m.restingState()
		out.Kind = OutcomeFailed
		return out, fmt.Errorf("apply rule %s: %w", active.ID, err)
	}

	m.lastEnforcement = now
	// An override recorded while the correction was in flight stays pending.
	if m.overridePending && !m.lastOverride.After(now) {
		m.overridePending = false
	}
	m.state = m.restingState()
	out.Kind = OutcomeCorrected
	return out, nil
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
