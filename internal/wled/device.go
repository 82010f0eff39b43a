package wled

import (
	"context"
	"errors"
)

// ErrUnreachable wraps transport failures (connection refused, timeouts, broker down).
var ErrUnreachable = errors.New("controller unreachable")

// Device is the controller surface the engine depends on.
// Every call is a single request; nothing is retried or queued.
type Device interface {
	// GetState reads the live /json/state document.
	GetState(ctx context.Context) (*State, error)

	// ApplyJSON posts a partial state document.
	ApplyJSON(ctx context.Context, state *State) error

	// ApplyConfig posts a configuration document (timer table).
	ApplyConfig(ctx context.Context, cfg TimerConfig) error

	// SavePreset stores state under the given preset id and name.
	SavePreset(ctx context.Context, id int, state *State, name string) error

	// LoadPreset activates a stored preset.
	LoadPreset(ctx context.Context, id int) error
}

// InfoReader is implemented by transports that can read /json/info.
type InfoReader interface {
	GetInfo(ctx context.Context) (*Info, error)
}

// SavePresetRequest builds the state document that stores state as preset id.
// The controller saves the whole request body, so the preset keeps every
// field of state, including unmodelled ones.
func SavePresetRequest(id int, state *State, name string) *State {
	req := state.Clone()
	if req == nil {
		req = &State{}
	}
	req.Preset = nil
	req.SavePreset = Int(id)
	req.Name = name
	return req
}

// LoadPresetRequest builds the state document that activates preset id.
func LoadPresetRequest(id int) *State {
	return &State{Preset: Int(id)}
}
