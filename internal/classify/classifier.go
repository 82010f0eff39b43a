// Package classify scores free-text automation requests for complexity and
// decides how much autonomy a downstream generation step should take.
//
// Scoring is deterministic keyword weighting over the normalized text plus
// contextual bonuses derived from extracted entities and the current rule
// count. All tables and thresholds live in Config.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dokzlo13/lumina/internal/extract"
)

// Complexity is the classification outcome.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// Routing tells the generation step how to proceed.
type Routing string

const (
	ReadyToExecute          Routing = "ready_to_execute"
	ConfirmPlan             Routing = "confirm_plan"
	NeedsClarificationFirst Routing = "needs_clarification_first"
)

// Scores are the clamped per-bucket totals.
type Scores struct {
	Simple   float64 `json:"simple"`
	Moderate float64 `json:"moderate"`
	Complex  float64 `json:"complex"`
}

// Result is one classification.
type Result struct {
	Text       string           `json:"text"`
	Complexity Complexity       `json:"complexity"`
	Signals    []string         `json:"signals"`
	Entities   extract.Entities `json:"entities"`
	Routing    Routing          `json:"routing"`
	Scores     Scores           `json:"scores"`
	Reasoning  string           `json:"reasoning"`
	RuleCount  int              `json:"rule_count"`
	MultiDay   bool             `json:"multi_day"`
	Creative   bool             `json:"creative"`
}

// RuleCounter reports how many rules currently exist.
type RuleCounter interface {
	Count() int
}

type compiledSignal struct {
	Signal
	re *regexp.Regexp
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	cfg     Config
	counter RuleCounter

	simple   []compiledSignal
	moderate []compiledSignal
	complex  []compiledSignal
	multiDay []compiledSignal
	creative []compiledSignal
}

// New compiles the signal tables of cfg. counter may be nil, in which case
// the rule count is taken as zero.
func New(cfg Config, counter RuleCounter) *Classifier {
	return &Classifier{
		cfg:      cfg,
		counter:  counter,
		simple:   compileSignals(cfg.SimpleSignals),
		moderate: compileSignals(cfg.ModerateSignals),
		complex:  compileSignals(cfg.ComplexSignals),
		multiDay: compileSignals(cfg.MultiDayIndicators),
		creative: compileSignals(cfg.CreativeIndicators),
	}
}

func compileSignals(signals []Signal) []compiledSignal {
	out := make([]compiledSignal, 0, len(signals))
	for _, s := range signals {
		if len(s.Phrases) == 0 {
			continue
		}
		quoted := make([]string, len(s.Phrases))
		for i, p := range s.Phrases {
			quoted[i] = regexp.QuoteMeta(strings.ToLower(p))
		}
		out = append(out, compiledSignal{
			Signal: s,
			re:     regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		})
	}
	return out
}

// Classify scores text against the current rule count.
func (c *Classifier) Classify(text string) Result {
	count := 0
	if c.counter != nil {
		count = c.counter.Count()
	}
	return c.ClassifyWithCount(count, text)
}

// ClassifyWithCount is a pure function of (count, text).
func (c *Classifier) ClassifyWithCount(count int, text string) Result {
	norm := extract.Normalize(text)
	entities := extract.Extract(text)

	res := Result{Text: text, Entities: entities, RuleCount: count}
	var s Scores
	var notes []string

	for _, sig := range c.simple {
		if sig.re.MatchString(norm) {
			s.Simple += sig.Weight
			res.Signals = append(res.Signals, sig.Name)
		}
	}
	for _, sig := range c.moderate {
		if sig.re.MatchString(norm) {
			s.Moderate += sig.Weight
			res.Signals = append(res.Signals, sig.Name)
		}
	}
	for _, sig := range c.complex {
		if sig.re.MatchString(norm) {
			s.Complex += sig.Weight
			res.Signals = append(res.Signals, sig.Name)
		}
	}

	for _, sig := range c.multiDay {
		if sig.re.MatchString(norm) {
			res.MultiDay = true
			s.Moderate += sig.Weight * c.cfg.MultiDayModerateFactor
			res.Signals = append(res.Signals, sig.Name)
		}
	}
	for _, sig := range c.creative {
		if sig.re.MatchString(norm) {
			res.Creative = true
			s.Moderate += sig.Weight * c.cfg.CreativeModerateFactor
			s.Complex += sig.Weight * c.cfg.CreativeComplexFactor
			res.Signals = append(res.Signals, sig.Name)
		}
	}

	bonus := func(name string, cond bool, complexDelta float64, note string) {
		if !cond {
			return
		}
		s.Complex += complexDelta
		res.Signals = append(res.Signals, name)
		notes = append(notes, note)
	}
	hasVariation := entities.Variation != ""
	bonus("multi_zone", len(entities.Zones) > 1, c.cfg.MultiZoneBonus,
		fmt.Sprintf("%d zones referenced", len(entities.Zones)))
	bonus("variation_multi_day", hasVariation && res.MultiDay, c.cfg.VariationMultiDayBonus,
		"varies across multiple days")
	bonus("creative_multi_day", res.Creative && res.MultiDay, c.cfg.CreativeMultiDayBonus,
		"open-ended creative request spanning multiple days")
	bonus("team_variation", entities.Team != "" && hasVariation, c.cfg.TeamVariationBonus,
		"team theme with variation")

	if entities.HasAction(extract.CancelActions...) {
		s.Complex -= c.cfg.CancelPenalty
		s.Moderate -= c.cfg.CancelPenalty
		res.Signals = append(res.Signals, "cancel_penalty")
		notes = append(notes, "cancellation request")
	}

	if res.MultiDay {
		switch {
		case count >= c.cfg.ConflictComplexCount:
			s.Complex += c.cfg.ConflictComplexBonus
			res.Signals = append(res.Signals, "conflict_risk_high")
			notes = append(notes, fmt.Sprintf("%d existing rules may exceed timer capacity", count))
		case count >= c.cfg.ConflictModerateCount:
			s.Moderate += c.cfg.ConflictModerateBonus
			res.Signals = append(res.Signals, "conflict_risk")
			notes = append(notes, fmt.Sprintf("%d existing rules may conflict", count))
		}
	}

	s.Simple = clamp(s.Simple)
	s.Moderate = clamp(s.Moderate)
	s.Complex = clamp(s.Complex)
	res.Scores = s

	var why string
	res.Complexity, why = c.decide(s, res.Creative, res.MultiDay, hasVariation)
	res.Routing = route(res.Complexity, entities)
	res.Reasoning = reasoning(res, why, notes)
	return res
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// decide walks the ordered decision list; first match wins.
func (c *Classifier) decide(s Scores, creative, multiDay, variation bool) (Complexity, string) {
	switch {
	case s.Complex > c.cfg.ComplexOverride:
		return Complex, "complex score above override threshold"
	case s.Complex-s.Simple >= c.cfg.ComplexMargin && s.Complex > s.Moderate:
		return Complex, "complex score leads simple by margin"
	case s.Simple > c.cfg.SimpleFloor && s.Simple > s.Moderate && s.Simple > s.Complex:
		return Simple, "simple score dominates"
	case s.Moderate > c.cfg.ModerateFloor:
		return Moderate, "moderate score above floor"
	case creative && !multiDay && !variation:
		return Moderate, "single creative request"
	case s.Simple > 0 && s.Simple >= s.Moderate && s.Simple >= s.Complex:
		return Simple, "simple score not dominated"
	case s.Complex > s.Moderate:
		return Complex, "complex score edges out moderate"
	case s.Moderate > 0:
		return Moderate, "moderate signals present"
	default:
		return Moderate, "no signals matched"
	}
}

// route maps complexity to a routing instruction.
func route(c Complexity, e extract.Entities) Routing {
	switch c {
	case Simple:
		return ReadyToExecute
	case Complex:
		if strongEntities(e) {
			return ConfirmPlan
		}
		return NeedsClarificationFirst
	default:
		return ConfirmPlan
	}
}

// strongEntities: a time, a span or recurrence, and a theme or action.
func strongEntities(e extract.Entities) bool {
	hasTime := len(e.TimeReferences) > 0
	hasSpan := e.Duration != "" || e.Recurrence != ""
	hasSubject := e.Team != "" || e.Holiday != "" || len(e.Actions) > 0
	return hasTime && hasSpan && hasSubject
}

func reasoning(r Result, why string, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classified as %s (%s). ", r.Complexity, why)
	fmt.Fprintf(&b, "Scores: simple=%.1f moderate=%.1f complex=%.1f.", r.Scores.Simple, r.Scores.Moderate, r.Scores.Complex)
	if len(r.Signals) > 0 {
		fmt.Fprintf(&b, " Signals: %s.", strings.Join(r.Signals, ", "))
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, " Context: %s.", strings.Join(notes, "; "))
	}
	return b.String()
}
