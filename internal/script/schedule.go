package script

import (
	"encoding/json"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

// ScheduleModule provides schedule.rule{...} to Lua.
//
// rule() raises a Lua error for an invalid declaration, which aborts the script.
type ScheduleModule struct {
	rules []rules.Rule
}

// NewScheduleModule creates a new schedule module
func NewScheduleModule() *ScheduleModule {
	return &ScheduleModule{}
}

// Loader is the module loader for Lua
func (m *ScheduleModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "rule", L.NewFunction(m.rule))
	L.SetField(mod, "count", L.NewFunction(m.count))
	L.SetField(mod, "DAILY", lua.LString("daily"))

	L.Push(mod)
	return 1
}

// rule{id, name, at, to, days, action, brightness, pattern, payload, enabled} -> id
func (m *ScheduleModule) rule(L *lua.LState) int {
	tbl := L.CheckTable(1)

	r, err := m.parseRule(tbl)
	if err != nil {
		L.RaiseError("schedule.rule: %s", err.Error())
		return 0
	}
	m.rules = append(m.rules, r)

	L.Push(lua.LString(r.ID))
	return 1
}

// count() -> number of rules declared so far
func (m *ScheduleModule) count(L *lua.LState) int {
	L.Push(lua.LNumber(len(m.rules)))
	return 1
}

func (m *ScheduleModule) parseRule(tbl *lua.LTable) (rules.Rule, error) {
	r := rules.Rule{
		ID:        optString(tbl, "id"),
		Name:      optString(tbl, "name"),
		Enabled:   true,
		CreatedBy: rules.OriginScript,
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("script-%d", len(m.rules)+1)
	}
	if v := tbl.RawGetString("enabled"); v != lua.LNil {
		r.Enabled = lua.LVAsBool(v)
	}

	at := optString(tbl, "at")
	if at == "" {
		return r, fmt.Errorf("rule %s: 'at' is required", r.ID)
	}
	trigger, err := rules.ParseTrigger(at)
	if err != nil {
		return r, fmt.Errorf("rule %s: at: %w", r.ID, err)
	}
	r.Trigger = trigger

	if to := optString(tbl, "to"); to != "" {
		off, err := rules.ParseTrigger(to)
		if err != nil {
			return r, fmt.Errorf("rule %s: to: %w", r.ID, err)
		}
		r.OffTrigger = &off
	}

	r.Repeat, err = parseDays(tbl.RawGetString("days"))
	if err != nil {
		return r, fmt.Errorf("rule %s: days: %w", r.ID, err)
	}

	r.Action, err = parseAction(tbl)
	if err != nil {
		return r, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return r, nil
}

func parseDays(v lua.LValue) (rules.RepeatDays, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return rules.EveryDay(), nil
	case lua.LString:
		if strings.EqualFold(string(val), "daily") {
			return rules.EveryDay(), nil
		}
		return parseDayList(strings.Split(string(val), ","))
	case *lua.LTable:
		var names []string
		val.ForEach(func(_, d lua.LValue) {
			names = append(names, d.String())
		})
		return parseDayList(names)
	}
	return rules.RepeatDays{}, fmt.Errorf("expected string or list, got %s", v.Type())
}

func parseDayList(names []string) (rules.RepeatDays, error) {
	var days []rules.Weekday
	for _, n := range names {
		d, err := rules.ParseWeekday(strings.TrimSpace(n))
		if err != nil {
			return rules.RepeatDays{}, err
		}
		days = append(days, d)
	}
	return rules.OnDays(days...), nil
}

func parseAction(tbl *lua.LTable) (rules.Action, error) {
	pattern := optString(tbl, "pattern")

	switch kind := optString(tbl, "action"); kind {
	case "off", string(rules.ActionPowerOff):
		return rules.PowerOff(), nil
	case "on", string(rules.ActionPowerOn):
		a := rules.PowerOn(pattern)
		if p := tbl.RawGetString("payload"); p != lua.LNil {
			state, err := parsePayload(p)
			if err != nil {
				return rules.Action{}, err
			}
			a.Payload = state
		}
		return a, nil
	case "brightness", string(rules.ActionSetBrightness):
		n, ok := tbl.RawGetString("brightness").(lua.LNumber)
		if !ok {
			return rules.Action{}, fmt.Errorf("brightness action needs a numeric 'brightness'")
		}
		return rules.SetBrightness(int(n)), nil
	case "pattern", string(rules.ActionRunPattern):
		state, err := parsePayload(tbl.RawGetString("payload"))
		if err != nil {
			return rules.Action{}, err
		}
		return rules.RunPattern(pattern, state), nil
	case "":
		return rules.Action{}, fmt.Errorf("'action' is required")
	default:
		return rules.Action{}, fmt.Errorf("unknown action %q", kind)
	}
}

// parsePayload converts a Lua table to a controller state document.
func parsePayload(v lua.LValue) (*wled.State, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("payload must be a table")
	}
	raw, err := json.Marshal(LuaToGo(tbl))
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	var state wled.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return &state, nil
}

func optString(tbl *lua.LTable, key string) string {
	if v, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(v)
	}
	return ""
}
