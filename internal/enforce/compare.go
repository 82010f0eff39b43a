package enforce

import "github.com/dokzlo13/lumina/internal/wled"

// Drift field names reported by Compare.
const (
	DriftPower      = "power"
	DriftBrightness = "brightness"
	DriftEffect     = "effect"
)

// Compare lists the fields where live differs from intended. Brightness
// differences up to tolerance (device units) are ignored. The effect is only
// compared when intended carries segments. Nothing beyond power is compared
// when the intended state is off.
func Compare(intended, live *wled.State, tolerance int) []string {
	if intended == nil {
		return nil
	}
	var drift []string

	if intended.On != nil && *intended.On != live.IsOn() {
		drift = append(drift, DriftPower)
	}
	if intended.On != nil && !*intended.On {
		return drift
	}

	if intended.Bri != nil {
		if live == nil || live.Bri == nil || abs(*live.Bri-*intended.Bri) > tolerance {
			drift = append(drift, DriftBrightness)
		}
	}

	if len(intended.Segments) > 0 {
		if want, ok := intended.PrimaryEffect(); ok {
			if got, ok := live.PrimaryEffect(); !ok || got != want {
				drift = append(drift, DriftEffect)
			}
		}
	}
	return drift
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
