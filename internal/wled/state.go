// Package wled describes the JSON wire protocol of the lighting controller
// and provides transports that speak it.
//
// The controller's state document is loosely typed and grows fields between
// firmware versions. State and Segment model the fields the engine reads or
// writes; everything else round-trips through the Extra bag untouched.
package wled

import (
	"encoding/json"
	"sort"
)

// State is the controller's /json/state document.
type State struct {
	On         *bool     `json:"on,omitempty"`
	Bri        *int      `json:"bri,omitempty"` // 0-255
	Transition *int      `json:"transition,omitempty"`
	Preset     *int      `json:"ps,omitempty"`    // load preset
	SavePreset *int      `json:"psave,omitempty"` // save request as preset
	Name       string    `json:"n,omitempty"`     // preset name, only with psave
	Segments   []Segment `json:"seg,omitempty"`

	// Extra holds keys this package does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// Segment is one entry of the "seg" array.
type Segment struct {
	ID        *int    `json:"id,omitempty"`
	On        *bool   `json:"on,omitempty"`
	Bri       *int    `json:"bri,omitempty"`
	Effect    *int    `json:"fx,omitempty"`
	Speed     *int    `json:"sx,omitempty"`
	Intensity *int    `json:"ix,omitempty"`
	Palette   *int    `json:"pal,omitempty"`
	Colors    [][]int `json:"col,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Info is the subset of /json/info the engine reports.
type Info struct {
	Version string `json:"ver"`
	Name    string `json:"name"`
	MAC     string `json:"mac,omitempty"`
	LEDs    struct {
		Count int `json:"count"`
	} `json:"leds"`
}

var (
	stateKeys   = []string{"on", "bri", "transition", "ps", "psave", "n", "seg"}
	segmentKeys = []string{"id", "on", "bri", "fx", "sx", "ix", "pal", "col"}
)

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// MarshalJSON merges modelled fields with the Extra bag.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	base, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, s.Extra)
}

// UnmarshalJSON decodes modelled fields and keeps the rest in Extra.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := collectExtra(data, stateKeys)
	if err != nil {
		return err
	}
	*s = State(p)
	s.Extra = extra
	return nil
}

// MarshalJSON merges modelled fields with the Extra bag.
func (s Segment) MarshalJSON() ([]byte, error) {
	type plain Segment
	base, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, s.Extra)
}

// UnmarshalJSON decodes modelled fields and keeps the rest in Extra.
func (s *Segment) UnmarshalJSON(data []byte) error {
	type plain Segment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := collectExtra(data, segmentKeys)
	if err != nil {
		return err
	}
	*s = Segment(p)
	s.Extra = extra
	return nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.On = clonePtr(s.On)
	c.Bri = clonePtr(s.Bri)
	c.Transition = clonePtr(s.Transition)
	c.Preset = clonePtr(s.Preset)
	c.SavePreset = clonePtr(s.SavePreset)
	c.Extra = cloneExtra(s.Extra)
	if s.Segments != nil {
		c.Segments = make([]Segment, len(s.Segments))
		for i, seg := range s.Segments {
			c.Segments[i] = seg.clone()
		}
	}
	return &c
}

func (s Segment) clone() Segment {
	c := s
	c.ID = clonePtr(s.ID)
	c.On = clonePtr(s.On)
	c.Bri = clonePtr(s.Bri)
	c.Effect = clonePtr(s.Effect)
	c.Speed = clonePtr(s.Speed)
	c.Intensity = clonePtr(s.Intensity)
	c.Palette = clonePtr(s.Palette)
	c.Extra = cloneExtra(s.Extra)
	if s.Colors != nil {
		c.Colors = make([][]int, len(s.Colors))
		for i, col := range s.Colors {
			c.Colors[i] = append([]int(nil), col...)
		}
	}
	return c
}

// IsOn reports the power flag, treating an absent flag as off.
func (s *State) IsOn() bool {
	return s != nil && s.On != nil && *s.On
}

// PrimaryEffect returns the effect id of the first segment that carries one.
func (s *State) PrimaryEffect() (int, bool) {
	if s == nil {
		return 0, false
	}
	for _, seg := range s.Segments {
		if seg.Effect != nil {
			return *seg.Effect, true
		}
	}
	return 0, false
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	c := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		c[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

func mergeExtra(base []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		// Modelled fields win over a stale copy in the bag.
		if _, ok := merged[k]; !ok {
			merged[k] = extra[k]
		}
	}
	return json.Marshal(merged)
}

func collectExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
