package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TriggerKind discriminates the Trigger union.
type TriggerKind string

const (
	TriggerClock TriggerKind = "clock"
	TriggerSolar TriggerKind = "solar"
)

// SolarEvent is the sun event a solar trigger is relative to.
type SolarEvent string

const (
	Sunrise SolarEvent = "sunrise"
	Sunset  SolarEvent = "sunset"
)

// MaxSolarOffset is the largest offset the controller can encode in a timer's minute field.
const MaxSolarOffset = 59

// Trigger is either a fixed clock time or an offset from sunrise/sunset.
type Trigger struct {
	Kind          TriggerKind `json:"kind"`
	Hour          int         `json:"hour,omitempty"`
	Minute        int         `json:"minute,omitempty"`
	Event         SolarEvent  `json:"event,omitempty"`
	OffsetMinutes int         `json:"offset_minutes,omitempty"`
}

// Clock returns a fixed-time trigger.
func Clock(hour, minute int) Trigger {
	return Trigger{Kind: TriggerClock, Hour: hour, Minute: minute}
}

// SunriseTrigger returns a trigger offset minutes after (or before, if negative) sunrise.
func SunriseTrigger(offset int) Trigger {
	return Trigger{Kind: TriggerSolar, Event: Sunrise, OffsetMinutes: offset}
}

// SunsetTrigger returns a trigger offset minutes after (or before, if negative) sunset.
func SunsetTrigger(offset int) Trigger {
	return Trigger{Kind: TriggerSolar, Event: Sunset, OffsetMinutes: offset}
}

// IsSolar reports whether the trigger needs coordinates to resolve.
func (t Trigger) IsSolar() bool {
	return t.Kind == TriggerSolar
}

// Validate checks field ranges for the trigger's kind.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerClock:
		if t.Hour < 0 || t.Hour > 23 {
			return fmt.Errorf("invalid hour: %d", t.Hour)
		}
		if t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("invalid minute: %d", t.Minute)
		}
	case TriggerSolar:
		if t.Event != Sunrise && t.Event != Sunset {
			return fmt.Errorf("unknown solar event: %q", t.Event)
		}
		if t.OffsetMinutes < -MaxSolarOffset || t.OffsetMinutes > MaxSolarOffset {
			return fmt.Errorf("solar offset %d out of range (±%d minutes)", t.OffsetMinutes, MaxSolarOffset)
		}
	default:
		return fmt.Errorf("unknown trigger kind: %q", t.Kind)
	}
	return nil
}

// String renders the trigger in the syntax ParseTrigger accepts.
func (t Trigger) String() string {
	if t.Kind == TriggerSolar {
		switch {
		case t.OffsetMinutes > 0:
			return fmt.Sprintf("@%s + %dm", t.Event, t.OffsetMinutes)
		case t.OffsetMinutes < 0:
			return fmt.Sprintf("@%s - %dm", t.Event, -t.OffsetMinutes)
		default:
			return "@" + string(t.Event)
		}
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var (
	// Match patterns like "@sunset", "@sunrise - 30m", "@sunset + 1h"
	solarPattern = regexp.MustCompile(`^@(\w+)\s*(?:([+-])\s*(\d+[hm](?:\d+m)?))?$`)
	// Match patterns like "22:15", "06:30"
	clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseTrigger parses "HH:MM" or "@sunrise|@sunset [+|- offset]".
func ParseTrigger(expr string) (Trigger, error) {
	expr = strings.TrimSpace(expr)

	if m := clockPattern.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		t := Clock(hour, minute)
		if err := t.Validate(); err != nil {
			return Trigger{}, err
		}
		return t, nil
	}

	if m := solarPattern.FindStringSubmatch(strings.ToLower(expr)); m != nil {
		var event SolarEvent
		switch m[1] {
		case "sunrise":
			event = Sunrise
		case "sunset":
			event = Sunset
		default:
			return Trigger{}, fmt.Errorf("unsupported solar event: %s", m[1])
		}

		offset := 0
		if m[3] != "" {
			d, err := time.ParseDuration(m[3])
			if err != nil {
				return Trigger{}, fmt.Errorf("invalid offset: %w", err)
			}
			offset = int(d / time.Minute)
			if m[2] == "-" {
				offset = -offset
			}
		}

		t := Trigger{Kind: TriggerSolar, Event: event, OffsetMinutes: offset}
		if err := t.Validate(); err != nil {
			return Trigger{}, err
		}
		return t, nil
	}

	return Trigger{}, fmt.Errorf("invalid trigger expression: %s", expr)
}
