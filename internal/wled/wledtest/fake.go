// Package wledtest provides an in-memory controller for tests.
package wledtest

import (
	"context"
	"sync"

	"github.com/dokzlo13/lumina/internal/wled"
)

// Fake is a wled.Device that keeps state in memory and records writes.
type Fake struct {
	mu sync.Mutex

	State   *wled.State
	Presets map[int]*wled.State
	Names   map[int]string
	Config  *wled.TimerConfig

	Applied []*wled.State
	Loaded  []int

	// Failure injection. PresetErr is keyed by preset id.
	GetErr    error
	ApplyErr  error
	ConfigErr error
	LoadErr   error
	PresetErr map[int]error
}

// New returns a fake that reports the given live state.
func New(state *wled.State) *Fake {
	if state == nil {
		state = &wled.State{On: wled.Bool(false)}
	}
	return &Fake{
		State:     state,
		Presets:   make(map[int]*wled.State),
		Names:     make(map[int]string),
		PresetErr: make(map[int]error),
	}
}

var _ wled.Device = (*Fake)(nil)

func (f *Fake) GetState(ctx context.Context) (*wled.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.State.Clone(), nil
}

func (f *Fake) ApplyJSON(ctx context.Context, state *wled.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	f.Applied = append(f.Applied, state.Clone())
	f.merge(state)
	return nil
}

func (f *Fake) ApplyConfig(ctx context.Context, cfg wled.TimerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigErr != nil {
		return f.ConfigErr
	}
	f.Config = &cfg
	return nil
}

func (f *Fake) SavePreset(ctx context.Context, id int, state *wled.State, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.PresetErr[id]; err != nil {
		return err
	}
	f.Presets[id] = state.Clone()
	f.Names[id] = name
	return nil
}

func (f *Fake) LoadPreset(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.Loaded = append(f.Loaded, id)
	if p, ok := f.Presets[id]; ok {
		f.merge(p)
	}
	return nil
}

// SetState replaces the live state.
func (f *Fake) SetState(s *wled.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.State = s.Clone()
}

// Timers returns the enabled entries of the last pushed timer table.
func (f *Fake) Timers() []wled.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Config == nil {
		return nil
	}
	var out []wled.Timer
	for _, t := range f.Config.Timers.Instances {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Calls returns the number of state writes (ApplyJSON and LoadPreset).
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Applied) + len(f.Loaded)
}

func (f *Fake) merge(s *wled.State) {
	if s.On != nil {
		f.State.On = wled.Bool(*s.On)
	}
	if s.Bri != nil {
		f.State.Bri = wled.Int(*s.Bri)
	}
	if s.Segments != nil {
		f.State.Segments = s.Clone().Segments
	}
}
