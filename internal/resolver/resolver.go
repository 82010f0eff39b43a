// Package resolver decides which schedule rule governs the lights at a
// given instant.
package resolver

import (
	"time"

	"github.com/dokzlo13/lumina/internal/geo"
	"github.com/dokzlo13/lumina/internal/rules"
)

// Match is an active rule with its resolved window.
type Match struct {
	Rule  rules.Rule
	Start time.Time
	End   time.Time // zero when the rule has no off trigger
}

// Resolver is read-only and safe for concurrent use.
type Resolver struct {
	calc *geo.Calculator
}

// New creates a resolver. calc may be nil, in which case solar triggers
// never resolve.
func New(calc *geo.Calculator) *Resolver {
	return &Resolver{calc: calc}
}

// FindActive returns the rule active at now, or nil.
func (r *Resolver) FindActive(now time.Time, rs []rules.Rule, coords *geo.Coordinates) *rules.Rule {
	m, ok := r.Resolve(now, rs, coords)
	if !ok {
		return nil
	}
	return &m.Rule
}

// Resolve finds the active rule with the latest start. Rules whose triggers
// cannot be resolved (solar without coordinates) are skipped.
func (r *Resolver) Resolve(now time.Time, rs []rules.Rule, coords *geo.Coordinates) (Match, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	var best Match
	found := false
	consider := func(rule *rules.Rule, start, end time.Time) {
		if !found || start.After(best.Start) {
			best = Match{Rule: rule.Clone(), Start: start, End: end}
			found = true
		}
	}

	for i := range rs {
		rule := &rs[i]
		if !rule.Enabled {
			continue
		}

		if rule.Repeat.Includes(today.Weekday()) {
			if start, end, ok := r.activeToday(now, today, rule, coords); ok {
				consider(rule, start, end)
			}
		}

		// Overnight windows that started yesterday may still be running.
		if rule.OffTrigger != nil && rule.Repeat.Includes(yesterday.Weekday()) {
			if start, end, ok := r.activeFromYesterday(now, yesterday, today, rule, coords); ok {
				consider(rule, start, end)
			}
		}
	}
	return best, found
}

func (r *Resolver) activeToday(now, today time.Time, rule *rules.Rule, coords *geo.Coordinates) (start, end time.Time, ok bool) {
	start, ok = r.At(rule.Trigger, today, coords)
	if !ok || start.After(now) {
		return time.Time{}, time.Time{}, false
	}
	if rule.OffTrigger == nil {
		return start, time.Time{}, true
	}

	end, ok = r.At(*rule.OffTrigger, today, coords)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if wraps(start, end) {
		// Ends tomorrow.
		return start, end.AddDate(0, 0, 1), true
	}
	if !end.After(now) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (r *Resolver) activeFromYesterday(now, yesterday, today time.Time, rule *rules.Rule, coords *geo.Coordinates) (start, end time.Time, ok bool) {
	start, ok = r.At(rule.Trigger, yesterday, coords)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok = r.At(*rule.OffTrigger, today, coords)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if !wraps(start, end) || !now.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// wraps reports whether end's clock value is at or before start's, meaning
// the window crosses midnight.
func wraps(start, end time.Time) bool {
	return clockSeconds(end) <= clockSeconds(start)
}

func clockSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// At resolves a trigger to an instant on day's calendar date in day's location.
func (r *Resolver) At(t rules.Trigger, day time.Time, coords *geo.Coordinates) (time.Time, bool) {
	switch t.Kind {
	case rules.TriggerClock:
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location()), true
	case rules.TriggerSolar:
		if coords == nil || r.calc == nil {
			return time.Time{}, false
		}
		times := r.calc.TimesAt(*coords, day)
		base := times.Sunset
		if t.Event == rules.Sunrise {
			base = times.Sunrise
		}
		return base.Add(time.Duration(t.OffsetMinutes) * time.Minute), true
	}
	return time.Time{}, false
}
