package rules

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is a lower-case three letter day abbreviation ("sun" ... "sat").
type Weekday string

const (
	Sun Weekday = "sun"
	Mon Weekday = "mon"
	Tue Weekday = "tue"
	Wed Weekday = "wed"
	Thu Weekday = "thu"
	Fri Weekday = "fri"
	Sat Weekday = "sat"
)

var weekdayOrder = []Weekday{Sun, Mon, Tue, Wed, Thu, Fri, Sat}

var weekdayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// WeekdayOf returns the abbreviation of a time.Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	return weekdayOrder[int(d)%7]
}

// ParseWeekday accepts abbreviations and full names, case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for i, name := range weekdayNames {
			if strings.HasPrefix(name, s) {
				return weekdayOrder[i], nil
			}
		}
	}
	return "", fmt.Errorf("unknown weekday: %q", s)
}

func (d Weekday) index() int {
	for i, w := range weekdayOrder {
		if w == d {
			return i
		}
	}
	return -1
}

// RepeatDays is either "every day" or an explicit set of weekdays.
type RepeatDays struct {
	Daily bool      `json:"daily,omitempty"`
	Days  []Weekday `json:"days,omitempty"`
}

// EveryDay returns a daily repeat set.
func EveryDay() RepeatDays {
	return RepeatDays{Daily: true}
}

// OnDays returns a repeat set for the given weekdays.
func OnDays(days ...Weekday) RepeatDays {
	return RepeatDays{Days: days}
}

// Includes reports whether the set fires on d.
func (r RepeatDays) Includes(d time.Weekday) bool {
	if r.Daily {
		return true
	}
	w := WeekdayOf(d)
	for _, day := range r.Days {
		if day == w {
			return true
		}
	}
	return false
}

// IsEmpty reports a non-daily set with no days.
func (r RepeatDays) IsEmpty() bool {
	return !r.Daily && len(r.Days) == 0
}

// Mask encodes the set as the controller's 7-bit day mask, bit0=Sunday.
// A daily set, or one naming all seven days, encodes as 127.
func (r RepeatDays) Mask() uint8 {
	if r.Daily {
		return 127
	}
	var mask uint8
	for _, d := range r.Days {
		if i := d.index(); i >= 0 {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Validate rejects empty sets and unknown weekday names.
func (r RepeatDays) Validate() error {
	if r.IsEmpty() {
		return fmt.Errorf("repeat days must not be empty unless daily")
	}
	for _, d := range r.Days {
		if d.index() < 0 {
			return fmt.Errorf("unknown weekday: %q", d)
		}
	}
	return nil
}

// String renders "daily" or a comma separated day list in week order.
func (r RepeatDays) String() string {
	if r.Daily || r.Mask() == 127 {
		return "daily"
	}
	var parts []string
	mask := r.Mask()
	for i, d := range weekdayOrder {
		if mask&(1<<uint(i)) != 0 {
			parts = append(parts, string(d))
		}
	}
	return strings.Join(parts, ",")
}
