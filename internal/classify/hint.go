package classify

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/lumina/internal/extract"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

func guidance(r Routing) string {
	switch r {
	case ReadyToExecute:
		return "The request is unambiguous. Create the rules directly and report what was scheduled."
	case NeedsClarificationFirst:
		return "The request is open-ended. Ask the clarifying questions needed to pin down times, days and looks " +
			"before proposing any rules. Do not create rules yet."
	default:
		return "Summarize the rules you intend to create, including times, days and actions, " +
			"and ask the user to confirm before creating them."
	}
}

// BuildAIContextHint renders the classification, extracted entities and
// conflict warnings against the existing rules as an instruction block for a
// generative assistant.
func BuildAIContextHint(r Result, existing []rules.Rule) string {
	var b strings.Builder

	b.WriteString("## Request classification\n")
	fmt.Fprintf(&b, "Complexity: %s\n", r.Complexity)
	fmt.Fprintf(&b, "Routing: %s\n", r.Routing)
	fmt.Fprintf(&b, "Scores: simple=%.1f moderate=%.1f complex=%.1f\n", r.Scores.Simple, r.Scores.Moderate, r.Scores.Complex)
	if len(r.Signals) > 0 {
		fmt.Fprintf(&b, "Signals: %s\n", strings.Join(r.Signals, ", "))
	}
	fmt.Fprintf(&b, "Reasoning: %s\n", r.Reasoning)

	if r.Entities.HasEntities() {
		b.WriteString("\n## Extracted entities\n")
		writeEntities(&b, r.Entities)
	}

	warnings := conflictWarnings(r, existing)
	if len(warnings) > 0 {
		b.WriteString("\n## Conflict warnings\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\n## Guidance\n")
	b.WriteString(guidance(r.Routing))
	b.WriteString("\n")
	return b.String()
}

func writeEntities(b *strings.Builder, e extract.Entities) {
	list := func(label string, values []string) {
		if len(values) > 0 {
			fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(values, ", "))
		}
	}
	one := func(label, value string) {
		if value != "" {
			fmt.Fprintf(b, "- %s: %s\n", label, value)
		}
	}
	list("Times", e.TimeReferences)
	list("Dates", e.DateReferences)
	one("Duration", e.Duration)
	one("Recurrence", e.Recurrence)
	one("Team", e.Team)
	one("Holiday", e.Holiday)
	list("Zones", e.Zones)
	list("Actions", e.Actions)
	one("Variation", e.Variation)
	one("Time of day", e.TimeOfDay)
}

// slotsNeeded counts timer entries the enabled rules occupy on the controller.
func slotsNeeded(existing []rules.Rule) (enabled, slots int) {
	for i := range existing {
		if !existing[i].Enabled {
			continue
		}
		enabled++
		slots++
		if existing[i].OffTrigger != nil {
			slots++
		}
	}
	return enabled, slots
}

func conflictWarnings(r Result, existing []rules.Rule) []string {
	var out []string

	enabled, slots := slotsNeeded(existing)
	switch {
	case slots >= wled.MaxTimers:
		out = append(out, fmt.Sprintf("Timer capacity: %d enabled rules already use %d of %d controller timer slots; "+
			"new rules will not sync unless others are disabled.", enabled, slots, wled.MaxTimers))
	case r.MultiDay && slots+2 > wled.MaxTimers:
		out = append(out, fmt.Sprintf("Timer capacity: %d of %d timer slots in use; a multi-day plan may exceed the controller limit.",
			slots, wled.MaxTimers))
	}

	for i := range existing {
		rule := &existing[i]
		if !rule.Enabled {
			continue
		}
		for _, ref := range r.Entities.TimeReferences {
			if triggerMatches(rule.Trigger, ref) {
				out = append(out, fmt.Sprintf("Overlap: rule %q already triggers at %s (%s).", rule.DisplayName(), rule.Trigger, rule.Repeat))
				break
			}
		}
	}

	if r.Entities.HasAction(extract.CancelActions...) {
		targets := cancellationTargets(r.Entities, existing)
		if len(targets) == 0 {
			out = append(out, "Cancellation: no existing rule clearly matches; list the current rules and ask which to remove.")
		} else {
			out = append(out, "Cancellation targets: "+strings.Join(targets, "; ")+".")
		}
	}
	return out
}

// triggerMatches compares a rule trigger with an extracted time reference
// ("HH:MM", "sunset" or "sunrise").
func triggerMatches(t rules.Trigger, ref string) bool {
	if t.IsSolar() {
		return string(t.Event) == ref
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) == ref
}

func cancellationTargets(e extract.Entities, existing []rules.Rule) []string {
	var keywords []string
	for _, v := range []string{e.Holiday, e.Team} {
		if v != "" {
			keywords = append(keywords, strings.ReplaceAll(v, "_", " "))
		}
	}

	var out []string
	for i := range existing {
		rule := &existing[i]
		matched := false
		for _, ref := range e.TimeReferences {
			if triggerMatches(rule.Trigger, ref) {
				matched = true
			}
		}
		haystack := strings.ToLower(rule.Name + " " + rule.Action.Pattern + " " + rule.DerivedFrom)
		for _, k := range keywords {
			for _, word := range strings.Fields(k) {
				if len(word) > 3 && strings.Contains(haystack, word) {
					matched = true
				}
			}
		}
		if matched {
			out = append(out, fmt.Sprintf("%q (%s)", rule.DisplayName(), rule.ID))
		}
	}
	return out
}
