package classify

// Signal is a named set of phrases carrying a weight. Any phrase matching
// on word boundaries fires the signal once.
type Signal struct {
	Name    string   `yaml:"name" json:"name"`
	Phrases []string `yaml:"phrases" json:"phrases"`
	Weight  float64  `yaml:"weight" json:"weight"`
}

// Config holds every table and threshold the classifier consults.
type Config struct {
	SimpleSignals   []Signal `yaml:"simple_signals"`
	ModerateSignals []Signal `yaml:"moderate_signals"`
	ComplexSignals  []Signal `yaml:"complex_signals"`

	MultiDayIndicators     []Signal `yaml:"multi_day_indicators"`
	MultiDayModerateFactor float64  `yaml:"multi_day_moderate_factor"`

	CreativeIndicators     []Signal `yaml:"creative_indicators"`
	CreativeModerateFactor float64  `yaml:"creative_moderate_factor"`
	CreativeComplexFactor  float64  `yaml:"creative_complex_factor"`

	MultiZoneBonus         float64 `yaml:"multi_zone_bonus"`
	VariationMultiDayBonus float64 `yaml:"variation_multi_day_bonus"`
	CreativeMultiDayBonus  float64 `yaml:"creative_multi_day_bonus"`
	TeamVariationBonus     float64 `yaml:"team_variation_bonus"`
	CancelPenalty          float64 `yaml:"cancel_penalty"`

	// Rule-count thresholds for anticipated timer conflicts on multi-day requests.
	ConflictComplexCount  int     `yaml:"conflict_complex_count"`
	ConflictModerateCount int     `yaml:"conflict_moderate_count"`
	ConflictComplexBonus  float64 `yaml:"conflict_complex_bonus"`
	ConflictModerateBonus float64 `yaml:"conflict_moderate_bonus"`

	ComplexOverride float64 `yaml:"complex_override"`
	ComplexMargin   float64 `yaml:"complex_margin"`
	SimpleFloor     float64 `yaml:"simple_floor"`
	ModerateFloor   float64 `yaml:"moderate_floor"`
}

// DefaultConfig returns the stock tables.
func DefaultConfig() Config {
	return Config{
		SimpleSignals: []Signal{
			{Name: "power_toggle", Phrases: []string{"turn on", "turn off", "switch on", "switch off", "shut off", "lights on", "lights off"}, Weight: 2.0},
			{Name: "brightness_change", Phrases: []string{"dim", "dimmer", "brighten", "brighter", "brightness", "percent"}, Weight: 1.5},
			{Name: "cancel_request", Phrases: []string{"cancel", "delete", "remove", "disable", "stop"}, Weight: 2.5},
			{Name: "single_occurrence", Phrases: []string{"tonight", "tomorrow", "today", "once", "right now"}, Weight: 1.0},
			{Name: "standard_trigger", Phrases: []string{"at sunset", "at sunrise", "at dusk", "at dawn"}, Weight: 1.0},
		},
		ModerateSignals: []Signal{
			{Name: "recurring_days", Phrases: []string{"weekdays", "weekends", "every weekday", "every weekend", "mondays", "tuesdays", "wednesdays", "thursdays", "fridays", "saturdays", "sundays"}, Weight: 1.5},
			{Name: "time_window", Phrases: []string{"until", "between", "from", "till"}, Weight: 1.5},
			{Name: "sequenced_steps", Phrases: []string{"and then", "after that", "followed by"}, Weight: 1.5},
			{Name: "pattern_choice", Phrases: []string{"pattern", "effect", "colors", "color", "scene"}, Weight: 1.0},
			{Name: "holiday_theme", Phrases: []string{"christmas", "halloween", "thanksgiving", "holiday", "valentine's", "valentines", "fourth of july", "easter"}, Weight: 1.5},
			{Name: "modify_existing", Phrases: []string{"change", "instead", "update", "move", "shift", "switch to"}, Weight: 1.0},
		},
		ComplexSignals: []Signal{
			{Name: "team_theme", Phrases: []string{"team colors", "game day", "game night", "touchdown", "playoffs", "when they win", "score"}, Weight: 2.5},
			{Name: "rotation", Phrases: []string{"rotate", "rotating", "alternate", "alternating", "cycle through", "different each", "different every"}, Weight: 3.0},
			{Name: "conditional", Phrases: []string{"if", "unless", "whenever", "depending on", "only when"}, Weight: 2.5},
			{Name: "choreography", Phrases: []string{"in sequence", "synchronize", "synchronized", "sync", "wave", "one after another"}, Weight: 3.0},
			{Name: "progression", Phrases: []string{"countdown", "count down", "gradually", "ramp up", "build up", "each day brighter"}, Weight: 2.5},
			{Name: "event_series", Phrases: []string{"every game", "all season", "whole season", "each game", "home games"}, Weight: 3.0},
		},
		MultiDayIndicators: []Signal{
			{Name: "span_month", Phrases: []string{"all month", "whole month", "entire month", "this month"}, Weight: 2.0},
			{Name: "span_week", Phrases: []string{"all week", "whole week", "entire week", "this week"}, Weight: 2.0},
			{Name: "span_through", Phrases: []string{"through", "thru", "until the end"}, Weight: 2.0},
			{Name: "span_count", Phrases: []string{"days", "nights", "weeks"}, Weight: 2.0},
			{Name: "span_nightly", Phrases: []string{"every night", "each night", "nightly", "every evening"}, Weight: 1.5},
			{Name: "span_season", Phrases: []string{"season", "all season", "holiday season"}, Weight: 2.0},
		},
		MultiDayModerateFactor: 0.4,
		CreativeIndicators: []Signal{
			{Name: "creative_open", Phrases: []string{"surprise", "creative", "something cool", "something fun", "get creative"}, Weight: 2.0},
			{Name: "creative_mood", Phrases: []string{"festive", "spooky", "magical", "cozy", "romantic", "party", "celebrate"}, Weight: 1.5},
			{Name: "creative_show", Phrases: []string{"light show", "show", "theme", "themed"}, Weight: 1.5},
		},
		CreativeModerateFactor: 0.3,
		CreativeComplexFactor:  0.3,

		MultiZoneBonus:         2.0,
		VariationMultiDayBonus: 4.0,
		CreativeMultiDayBonus:  2.0,
		TeamVariationBonus:     2.0,
		CancelPenalty:          3.0,

		ConflictComplexCount:  5,
		ConflictModerateCount: 3,
		ConflictComplexBonus:  2.0,
		ConflictModerateBonus: 1.5,

		ComplexOverride: 8.0,
		ComplexMargin:   2.0,
		SimpleFloor:     2.0,
		ModerateFloor:   2.0,
	}
}
