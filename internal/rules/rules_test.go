package rules

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/lumina/internal/wled"
	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		expr    string
		want    Trigger
		wantErr bool
	}{
		{expr: "19:00", want: Clock(19, 0)},
		{expr: "6:30", want: Clock(6, 30)},
		{expr: "@sunset", want: SunsetTrigger(0)},
		{expr: "@sunrise - 30m", want: SunriseTrigger(-30)},
		{expr: "@Sunset + 45m", want: SunsetTrigger(45)},
		{expr: "@sunset + 1h", wantErr: true}, // offset exceeds device range
		{expr: "24:00", wantErr: true},
		{expr: "@noon", wantErr: true},
		{expr: "tonight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseTrigger(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTrigger_StringRoundTrip(t *testing.T) {
	for _, tr := range []Trigger{Clock(7, 5), SunsetTrigger(0), SunsetTrigger(-15), SunriseTrigger(20)} {
		parsed, err := ParseTrigger(tr.String())
		require.NoError(t, err, tr.String())
		require.Equal(t, tr, parsed)
	}
}

func TestRepeatDays_Mask(t *testing.T) {
	tests := []struct {
		name string
		days RepeatDays
		want uint8
	}{
		{"daily", EveryDay(), 127},
		{"mon_wed_fri", OnDays(Mon, Wed, Fri), 42},
		{"sunday_only", OnDays(Sun), 1},
		{"saturday_only", OnDays(Sat), 64},
		{"all_seven_listed", OnDays(Sun, Mon, Tue, Wed, Thu, Fri, Sat), 127},
		{"duplicates", OnDays(Mon, Mon), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.days.Mask())
		})
	}
}

func TestRepeatDays_Includes(t *testing.T) {
	weekdays := OnDays(Mon, Tue, Wed, Thu, Fri)
	require.True(t, weekdays.Includes(time.Monday))
	require.False(t, weekdays.Includes(time.Sunday))
	require.True(t, EveryDay().Includes(time.Saturday))
	require.Equal(t, "mon,tue,wed,thu,fri", weekdays.String())
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]Weekday{"Mon": Mon, "thursday": Thu, "tues": Tue, "SUN": Sun} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	for _, bad := range []string{"sunset", "mo", "funday"} {
		_, err := ParseWeekday(bad)
		require.Error(t, err, bad)
	}
}

func TestAction_IntendedState(t *testing.T) {
	off := PowerOff().IntendedState()
	require.False(t, off.IsOn())
	require.Nil(t, PowerOff().PresetState())

	bri := SetBrightness(50).IntendedState()
	require.True(t, bri.IsOn())
	require.Equal(t, 128, *bri.Bri)
	require.Equal(t, 255, PercentToDevice(100))

	on := PowerOn("Warm White").PresetState()
	require.True(t, on.IsOn())
	require.Nil(t, on.Bri)

	payload := &wled.State{Segments: []wled.Segment{{Effect: wled.Int(9)}}}
	pat := RunPattern("Rainbow", payload).IntendedState()
	require.True(t, pat.IsOn())
	fx, ok := pat.PrimaryEffect()
	require.True(t, ok)
	require.Equal(t, 9, fx)
	require.Nil(t, payload.On, "intended state must not alias the rule payload")
}

func TestRule_Validate(t *testing.T) {
	valid := Rule{ID: "r1", Trigger: Clock(19, 0), Repeat: EveryDay(), Action: PowerOn(""), Enabled: true}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		mut   func(r *Rule)
		field string
	}{
		{"empty_id", func(r *Rule) { r.ID = "" }, "id"},
		{"bad_hour", func(r *Rule) { r.Trigger = Clock(25, 0) }, "trigger"},
		{"bad_off_trigger", func(r *Rule) { off := SunsetTrigger(90); r.OffTrigger = &off }, "off_trigger"},
		{"empty_repeat", func(r *Rule) { r.Repeat = RepeatDays{} }, "repeat"},
		{"brightness_zero", func(r *Rule) { r.Action = SetBrightness(0) }, "action"},
		{"pattern_without_payload", func(r *Rule) { r.Action = RunPattern("Rainbow", nil) }, "action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid.Clone()
			tt.mut(&r)
			err := r.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidRule))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRule_CloneIsDeep(t *testing.T) {
	off := Clock(6, 0)
	preset := 12
	r := Rule{
		ID: "r1", Trigger: Clock(22, 0), OffTrigger: &off, Repeat: OnDays(Mon),
		Action:         RunPattern("Fire", &wled.State{Bri: wled.Int(100)}),
		DevicePresetID: &preset,
	}
	c := r.Clone()
	c.OffTrigger.Hour = 5
	c.Repeat.Days[0] = Tue
	*c.DevicePresetID = 13
	*c.Action.Payload.Bri = 1

	require.Equal(t, 6, r.OffTrigger.Hour)
	require.Equal(t, Mon, r.Repeat.Days[0])
	require.Equal(t, 12, *r.DevicePresetID)
	require.Equal(t, 100, *r.Action.Payload.Bri)
}

func TestRule_JSONDocument(t *testing.T) {
	off := Clock(6, 0)
	r := Rule{
		ID: "r1", Trigger: SunsetTrigger(-15), OffTrigger: &off, Repeat: OnDays(Fri, Sat),
		Action: SetBrightness(75), Enabled: true, CreatedBy: OriginClassifier,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, r.Trigger, back.Trigger)
	require.Equal(t, *r.OffTrigger, *back.OffTrigger)
	require.Equal(t, uint8(96), back.Repeat.Mask())
	require.Equal(t, r.Action, back.Action)
	require.NoError(t, back.Validate())
}
