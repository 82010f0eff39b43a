package wled

// Timer table limits and sentinels of the controller firmware.
const (
	MaxTimers   = 8
	HourSunrise = 24
	HourSunset  = 25
	DOWDaily    = 127
)

// Timer is one slot of the controller's timer table.
// For solar timers Hour is HourSunrise/HourSunset and Minute is the offset.
type Timer struct {
	Enabled bool  `json:"en"`
	Hour    int   `json:"hour"`
	Minute  int   `json:"min"`
	Macro   int   `json:"macro"` // preset id, 0 = none
	DOW     uint8 `json:"dow"`   // bit0=Sunday ... bit6=Saturday
}

// IsSolar reports whether the timer fires relative to sunrise or sunset.
func (t Timer) IsSolar() bool {
	return t.Hour == HourSunrise || t.Hour == HourSunset
}

// TimerConfig is the /json/cfg document carrying the timer table.
type TimerConfig struct {
	Timers TimerTable `json:"timers"`
}

// TimerTable wraps the instance list.
type TimerTable struct {
	Instances []Timer `json:"ins"`
}

// NewTimerConfig builds a config document from compiled entries.
// Unused slots are filled with disabled entries so timers left over from a
// previous sync stop firing.
func NewTimerConfig(entries []Timer) TimerConfig {
	n := len(entries)
	if n > MaxTimers {
		n = MaxTimers
	}
	ins := make([]Timer, MaxTimers)
	copy(ins, entries[:n])
	for i := n; i < MaxTimers; i++ {
		ins[i] = Timer{Enabled: false, DOW: DOWDaily}
	}
	return TimerConfig{Timers: TimerTable{Instances: ins}}
}
