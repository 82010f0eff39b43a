// Package script runs the rules bootstrap file. The file is plain Lua that
// declares rules through the "schedule" module:
//
//	local schedule = require("schedule")
//	schedule.rule{ id = "porch", at = "@sunset - 15m", to = "23:00",
//	               days = {"mon", "wed", "fri"}, action = "on", pattern = "Warm White" }
//
// Evaluating the file produces a rule list; the script has no access to the
// device or the store.
package script

import (
	"fmt"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lumina/internal/rules"
)

// Runtime evaluates one script. It is not safe for concurrent use.
type Runtime struct {
	L        *lua.LState
	schedule *ScheduleModule
}

// NewRuntime creates a Lua state with the log and schedule modules preloaded.
func NewRuntime() *Runtime {
	L := lua.NewState()
	r := &Runtime{L: L, schedule: NewScheduleModule()}
	L.PreloadModule("log", NewLogModule().Loader)
	L.PreloadModule("schedule", r.schedule.Loader)
	return r
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	r.L.Close()
}

// DoFile runs the script at path.
func (r *Runtime) DoFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// DoString runs src.
func (r *Runtime) DoString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// Rules returns the rules declared so far.
func (r *Runtime) Rules() []rules.Rule {
	return rules.CloneAll(r.schedule.rules)
}

// LoadFile evaluates the script at path and returns its rules.
func LoadFile(path string) ([]rules.Rule, error) {
	rt := NewRuntime()
	defer rt.Close()

	log.Info().Str("path", path).Msg("Loading rules script")
	if err := rt.DoFile(path); err != nil {
		return nil, err
	}
	rs := rt.Rules()
	log.Info().Int("rules", len(rs)).Msg("Rules script loaded")
	return rs, nil
}
