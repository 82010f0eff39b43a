// Package extract pulls structured scheduling entities out of free-text
// lighting requests. Extraction is a deterministic keyword and pattern scan
// with no external dependencies.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Entities is the structured view of one request. Empty fields mean the
// category did not match.
type Entities struct {
	TimeReferences []string `json:"time_references,omitempty"`
	DateReferences []string `json:"date_references,omitempty"`
	Duration       string   `json:"duration,omitempty"`
	Recurrence     string   `json:"recurrence,omitempty"`
	Team           string   `json:"team,omitempty"`
	Holiday        string   `json:"holiday,omitempty"`
	Zones          []string `json:"zones,omitempty"`
	Actions        []string `json:"actions,omitempty"`
	Variation      string   `json:"variation,omitempty"`
	TimeOfDay      string   `json:"time_of_day,omitempty"`
}

// HasEntities reports whether any category matched.
func (e Entities) HasEntities() bool {
	return len(e.TimeReferences) > 0 || len(e.DateReferences) > 0 ||
		e.Duration != "" || e.Recurrence != "" || e.Team != "" || e.Holiday != "" ||
		len(e.Zones) > 0 || len(e.Actions) > 0 || e.Variation != "" || e.TimeOfDay != ""
}

// HasAction reports whether any of the given action tokens was extracted.
func (e Entities) HasAction(actions ...string) bool {
	for _, have := range e.Actions {
		for _, want := range actions {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Normalize lower-cases, trims and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// Extract runs every category extractor over text. It never fails.
func Extract(text string) Entities {
	norm := Normalize(text)
	if norm == "" {
		return Entities{}
	}
	return Entities{
		TimeReferences: timeReferences(norm),
		DateReferences: dateReferences(norm),
		Duration:       firstToken(norm, durationPatterns),
		Recurrence:     firstToken(norm, recurrencePatterns),
		Team:           first(teamDict.match(norm)),
		Holiday:        first(holidayDict.match(norm)),
		Zones:          zoneDict.match(norm),
		Actions:        actionDict.match(norm),
		Variation:      firstToken(norm, variationPatterns),
		TimeOfDay:      firstToken(norm, timeOfDayPatterns),
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// firstToken returns the token of the first pattern that matches.
func firstToken(text string, patterns []tokenPattern) string {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return expandToken(p.token, m)
	}
	return ""
}

func expandToken(token string, m []string) string {
	if !strings.Contains(token, "%s") {
		return token
	}
	capture := ""
	if len(m) > 1 {
		capture = m[1]
	}
	if n, ok := numberWords[capture]; ok {
		capture = n
	}
	return fmt.Sprintf(token, capture)
}

// hit is a match at a byte offset, used to order results by appearance.
type hit struct {
	pos   int
	value string
}

// collect orders hits by position and drops repeated values.
func collect(hits []hit) []string {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	var out []string
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.value] {
			continue
		}
		seen[h.value] = true
		out = append(out, h.value)
	}
	return out
}

// mask blanks [start,end) so later patterns cannot match inside it.
func mask(text string, start, end int) string {
	return text[:start] + strings.Repeat(" ", end-start) + text[end:]
}

func timeReferences(text string) []string {
	var hits []hit
	for _, loc := range clockTime12.FindAllStringSubmatchIndex(text, -1) {
		hour := atoi(text[loc[2]:loc[3]])
		minute := 0
		if loc[4] >= 0 {
			minute = atoi(text[loc[4]:loc[5]])
		}
		pm := strings.HasPrefix(text[loc[6]:loc[7]], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		hits = append(hits, hit{loc[0], fmt.Sprintf("%02d:%02d", hour, minute)})
		text = mask(text, loc[0], loc[1])
	}
	for _, loc := range clockTime24.FindAllStringSubmatchIndex(text, -1) {
		hour := atoi(text[loc[2]:loc[3]])
		minute := atoi(text[loc[4]:loc[5]])
		hits = append(hits, hit{loc[0], fmt.Sprintf("%02d:%02d", hour, minute)})
	}
	for _, p := range solarKeywords {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{loc[0], p.token})
		}
	}
	return collect(hits)
}

func dateReferences(text string) []string {
	var hits []hit

	// Relative phrases are listed longest first; mask each match so
	// "tomorrow night" does not also yield "tomorrow".
	for _, p := range relativeDates {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{loc[0], p.token})
			text = mask(text, loc[0], loc[1])
		}
	}

	full := fullWeekdays.FindAllStringSubmatchIndex(text, -1)
	for _, loc := range full {
		hits = append(hits, hit{loc[0], text[loc[2]:loc[3]]})
	}
	if len(full) == 0 {
		for _, loc := range shortWeekdays.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, hit{loc[0], shortWeekdayNames[text[loc[2]:loc[3]]]})
		}
	}

	for _, loc := range calendarDate.FindAllStringSubmatchIndex(text, -1) {
		month := text[loc[2]:loc[3]]
		if long, ok := monthAbbrev[month]; ok {
			month = long
		}
		day := atoi(text[loc[4]:loc[5]])
		if day < 1 || day > 31 {
			continue
		}
		hits = append(hits, hit{loc[0], fmt.Sprintf("%s_%d", month, day)})
	}
	for _, loc := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{loc[0], fmt.Sprintf("%d/%d", atoi(text[loc[2]:loc[3]]), atoi(text[loc[4]:loc[5]]))})
	}
	return collect(hits)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// dictionary maps alias phrases to canonical values. Keys are tried longest
// first and each match is masked, so a short alias never re-matches inside
// a longer phrase that already matched.
type dictionary struct {
	keys     []string
	values   map[string]string
	patterns map[string]*regexp.Regexp
}

func newDictionary(aliases map[string]string) *dictionary {
	d := &dictionary{
		keys:     make([]string, 0, len(aliases)),
		values:   aliases,
		patterns: make(map[string]*regexp.Regexp, len(aliases)),
	}
	for k := range aliases {
		d.keys = append(d.keys, k)
		d.patterns[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
	}
	sort.Slice(d.keys, func(i, j int) bool {
		if len(d.keys[i]) != len(d.keys[j]) {
			return len(d.keys[i]) > len(d.keys[j])
		}
		return d.keys[i] < d.keys[j]
	})
	return d
}

// match returns the distinct canonical values found in text, in order of appearance.
func (d *dictionary) match(text string) []string {
	var hits []hit
	for _, k := range d.keys {
		for _, loc := range d.patterns[k].FindAllStringIndex(text, -1) {
			hits = append(hits, hit{loc[0], d.values[k]})
			text = mask(text, loc[0], loc[1])
		}
	}
	return collect(hits)
}

// canonical returns the set of values the dictionary can produce.
func (d *dictionary) canonical() map[string]bool {
	out := make(map[string]bool, len(d.values))
	for _, v := range d.values {
		out[v] = true
	}
	return out
}
