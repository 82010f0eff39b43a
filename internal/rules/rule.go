// Package rules defines the persisted schedule rule model shared by the
// store, resolver, device sync and enforcement packages.
package rules

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule is wrapped by every validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

// Origin records which path created a rule.
type Origin string

const (
	OriginUser       Origin = "user"
	OriginClassifier Origin = "classifier"
	OriginScript     Origin = "script"
)

// Rule is one recurring automation.
type Rule struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Trigger    Trigger    `json:"trigger"`
	OffTrigger *Trigger   `json:"off_trigger,omitempty"` // nil: active until superseded
	Repeat     RepeatDays `json:"repeat"`
	Action     Action     `json:"action"`
	Enabled    bool       `json:"enabled"`

	// DevicePresetID is assigned lazily by device sync and written only by the store.
	DevicePresetID *int `json:"device_preset_id,omitempty"`

	CreatedBy   Origin    `json:"created_by,omitempty"`
	DerivedFrom string    `json:"derived_from,omitempty"` // source request text
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Validate checks every invariant of a persisted rule.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if err := r.Trigger.Validate(); err != nil {
		return &ValidationError{Field: "trigger", Reason: err.Error()}
	}
	if r.OffTrigger != nil {
		if err := r.OffTrigger.Validate(); err != nil {
			return &ValidationError{Field: "off_trigger", Reason: err.Error()}
		}
	}
	if err := r.Repeat.Validate(); err != nil {
		return &ValidationError{Field: "repeat", Reason: err.Error()}
	}
	if err := r.Action.Validate(); err != nil {
		return &ValidationError{Field: "action", Reason: err.Error()}
	}
	return nil
}

// HasWindow reports whether the rule defines an explicit on/off window.
func (r *Rule) HasWindow() bool {
	return r.OffTrigger != nil
}

// NeedsCoordinates reports whether any trigger is solar.
func (r *Rule) NeedsCoordinates() bool {
	return r.Trigger.IsSolar() || (r.OffTrigger != nil && r.OffTrigger.IsSolar())
}

// DisplayName falls back to the id.
func (r *Rule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Action.Pattern != "" {
		return r.Action.Pattern
	}
	return r.ID
}

// Clone returns a deep copy.
func (r Rule) Clone() Rule {
	c := r
	if r.OffTrigger != nil {
		off := *r.OffTrigger
		c.OffTrigger = &off
	}
	if r.Repeat.Days != nil {
		c.Repeat.Days = append([]Weekday(nil), r.Repeat.Days...)
	}
	if r.DevicePresetID != nil {
		id := *r.DevicePresetID
		c.DevicePresetID = &id
	}
	c.Action.Payload = r.Action.Payload.Clone()
	return c
}

// CloneAll deep-copies a rule list.
func CloneAll(in []Rule) []Rule {
	if in == nil {
		return nil
	}
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// String is a compact one-line description used in logs and prompts.
func (r *Rule) String() string {
	s := fmt.Sprintf("%s: %s at %s", r.DisplayName(), r.Action.Label(), r.Trigger)
	if r.OffTrigger != nil {
		s += fmt.Sprintf(" until %s", *r.OffTrigger)
	}
	s += " [" + r.Repeat.String() + "]"
	if !r.Enabled {
		s += " (disabled)"
	}
	return s
}
