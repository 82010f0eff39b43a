package enforce

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lumina/internal/devicesync"
	"github.com/dokzlo13/lumina/internal/resolver"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
	"github.com/dokzlo13/lumina/internal/wled/wledtest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type staticSource []rules.Rule

func (s staticSource) Enabled() []rules.Rule { return s }

// Wednesday evening.
var evening = time.Date(2024, 12, 4, 20, 0, 0, 0, time.UTC)

func brightRule() rules.Rule {
	return rules.Rule{
		ID:      "evening",
		Trigger: rules.Clock(18, 0),
		Repeat:  rules.EveryDay(),
		Action:  rules.SetBrightness(100),
		Enabled: true,
	}
}

func newMachine(t *testing.T, mode Mode, dev wled.Device, rs ...rules.Rule) (*Machine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: evening}
	m := NewMachine(dev, staticSource(rs), resolver.New(nil), Options{Mode: mode, Clock: clock})
	return m, clock
}

func TestCompare(t *testing.T) {
	fx := func(id int) []wled.Segment { return []wled.Segment{{Effect: wled.Int(id)}} }

	tests := []struct {
		name     string
		intended *wled.State
		live     *wled.State
		want     []string
	}{
		{"nil_intended", nil, &wled.State{}, nil},
		{"power_matches", &wled.State{On: wled.Bool(false)}, &wled.State{On: wled.Bool(false), Bri: wled.Int(3)}, nil},
		{"power_differs", &wled.State{On: wled.Bool(false)}, &wled.State{On: wled.Bool(true)}, []string{DriftPower}},
		{"bri_within_tolerance", &wled.State{On: wled.Bool(true), Bri: wled.Int(128)}, &wled.State{On: wled.Bool(true), Bri: wled.Int(138)}, nil},
		{"bri_outside_tolerance", &wled.State{On: wled.Bool(true), Bri: wled.Int(128)}, &wled.State{On: wled.Bool(true), Bri: wled.Int(139)}, []string{DriftBrightness}},
		{"bri_missing", &wled.State{Bri: wled.Int(128)}, &wled.State{}, []string{DriftBrightness}},
		{"effect_differs", &wled.State{On: wled.Bool(true), Segments: fx(44)}, &wled.State{On: wled.Bool(true), Segments: fx(0)}, []string{DriftEffect}},
		{"effect_ignored_without_segments", &wled.State{On: wled.Bool(true)}, &wled.State{On: wled.Bool(true), Segments: fx(9)}, nil},
		{"everything", &wled.State{On: wled.Bool(true), Bri: wled.Int(255), Segments: fx(44)}, &wled.State{On: wled.Bool(false)}, []string{DriftPower, DriftBrightness, DriftEffect}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Compare(tt.intended, tt.live, DefaultBrightnessTolerance))
		})
	}
}

func TestMachine_GracePeriodThenSingleCorrection(t *testing.T) {
	ctx := context.Background()
	dev := wledtest.New(&wled.State{On: wled.Bool(false)})
	m, clock := newMachine(t, ModeStrict, dev, brightRule())
	require.Equal(t, StateWatching, m.Runtime().State)

	require.True(t, m.RecordOverride())
	require.Equal(t, StateGracePeriod, m.Runtime().State)

	out, err := m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeGracePeriod, out.Kind)
	require.Zero(t, dev.Calls())

	clock.Advance(DefaultTiming(ModeStrict).GracePeriod + time.Second)
	out, err = m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeCorrected, out.Kind)
	require.Equal(t, "evening", out.RuleID)
	require.Equal(t, []string{DriftPower, DriftBrightness}, out.Drift)
	require.Equal(t, 1, dev.Calls())

	rt := m.Runtime()
	require.Equal(t, StateWatching, rt.State)
	require.False(t, rt.OverridePending)
	require.NotNil(t, rt.LastEnforcementAt)
	require.NotNil(t, rt.LastOverrideAt)

	out, err = m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeCooldown, out.Kind)

	clock.Advance(2 * time.Minute)
	out, err = m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeInSync, out.Kind)
	require.Equal(t, 1, dev.Calls())
}

func TestMachine_RuntimeAfterGracePeriod(t *testing.T) {
	dev := wledtest.New(nil)
	m, clock := newMachine(t, ModeSoft, dev, brightRule())
	grace := DefaultTiming(ModeSoft).GracePeriod

	require.True(t, m.RecordOverride())
	clock.Advance(grace - time.Second)
	rt := m.Runtime()
	require.Equal(t, StateGracePeriod, rt.State)
	require.True(t, rt.OverridePending)

	clock.Advance(time.Second)
	rt = m.Runtime()
	require.Equal(t, StateWatching, rt.State)
	require.False(t, rt.OverridePending)
	require.NotNil(t, rt.LastOverrideAt)
	require.Zero(t, dev.Calls())
}

func TestMachine_NoActiveRule(t *testing.T) {
	r := brightRule()
	r.Trigger = rules.Clock(22, 0)
	dev := wledtest.New(nil)
	m, _ := newMachine(t, ModeSoft, dev, r)

	out, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNoActiveRule, out.Kind)
	require.Zero(t, dev.Calls())
}

func TestMachine_DeviceErrorIsRecoverable(t *testing.T) {
	ctx := context.Background()
	dev := wledtest.New(nil)
	dev.GetErr = fmt.Errorf("dial: %w", wled.ErrUnreachable)
	m, _ := newMachine(t, ModeSoft, dev, brightRule())

	out, err := m.Tick(ctx)
	require.ErrorIs(t, err, wled.ErrUnreachable)
	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, StateWatching, m.Runtime().State)
	require.Nil(t, m.Runtime().LastEnforcementAt)

	dev.GetErr = nil
	dev.ApplyErr = fmt.Errorf("post: %w", wled.ErrUnreachable)
	out, err = m.Tick(ctx)
	require.ErrorIs(t, err, wled.ErrUnreachable)
	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, StateWatching, m.Runtime().State)

	dev.ApplyErr = nil
	out, err = m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeCorrected, out.Kind)
}

func TestMachine_LoadsAssignedPreset(t *testing.T) {
	r := brightRule()
	r.Action = rules.PowerOn("Warm White")
	r.DevicePresetID = wled.Int(12)
	dev := wledtest.New(nil)
	m, _ := newMachine(t, ModeSoft, dev, r)

	out, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeCorrected, out.Kind)
	require.Equal(t, 12, out.PresetID)
	require.Equal(t, []int{12}, dev.Loaded)
	require.Empty(t, dev.Applied)
}

func TestMachine_DroppedRuleAppliesPayload(t *testing.T) {
	ctx := context.Background()
	day := evening.Add(-24 * time.Hour)

	var rs []rules.Rule
	for i := 0; i < wled.MaxTimers; i++ {
		r := brightRule()
		r.ID = fmt.Sprintf("r%d", i)
		r.Trigger = rules.Clock(10+i, 0)
		r.Action = rules.RunPattern(fmt.Sprintf("p%d", i), &wled.State{On: wled.Bool(true), Bri: wled.Int(100 + i)})
		r.UpdatedAt = day.Add(time.Duration(i+1) * time.Minute)
		rs = append(rs, r)
	}
	// Oldest update, latest start: left off the timer table but active now.
	late := brightRule()
	late.ID = "late"
	late.Trigger = rules.Clock(19, 30)
	late.Action = rules.RunPattern("Fire", &wled.State{On: wled.Bool(true), Bri: wled.Int(200)})
	late.UpdatedAt = day
	late.DevicePresetID = wled.Int(17)
	rs = append(rs, late)

	dev := wledtest.New(&wled.State{On: wled.Bool(false)})
	res := devicesync.Push(ctx, dev, rs)
	require.True(t, res.Success)
	require.Equal(t, []string{"late"}, res.Dropped)
	for i := range rs {
		id, ok := res.Assigned[rs[i].ID]
		if !ok {
			continue
		}
		rs[i].DevicePresetID = nil
		if id != 0 {
			rs[i].DevicePresetID = wled.Int(id)
		}
	}
	require.Nil(t, rs[len(rs)-1].DevicePresetID)
	for _, r := range rs[:wled.MaxTimers] {
		require.NotNil(t, r.DevicePresetID)
		require.Contains(t, dev.Presets, *r.DevicePresetID)
	}

	m, _ := newMachine(t, ModeSoft, dev, rs...)
	out, err := m.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeCorrected, out.Kind)
	require.Equal(t, "late", out.RuleID)
	require.Zero(t, out.PresetID)
	require.Empty(t, dev.Loaded)
	require.Len(t, dev.Applied, 1)
	require.Equal(t, 200, *dev.Applied[0].Bri)
}

func TestMachine_Disabled(t *testing.T) {
	dev := wledtest.New(nil)
	m, _ := newMachine(t, ModeDisabled, dev, brightRule())

	require.False(t, m.RecordOverride())
	out, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeDisabled, out.Kind)
	require.Equal(t, StateDisabled, m.Runtime().State)
	require.Zero(t, dev.Calls())

	m.SetMode(ModeSoft)
	require.Equal(t, StateWatching, m.Runtime().State)
}

func TestNewMachine_Timings(t *testing.T) {
	m := NewMachine(nil, staticSource(nil), resolver.New(nil), Options{
		Mode:    ModeSoft,
		Timings: map[Mode]Timing{ModeSoft: {GracePeriod: time.Hour}},
	})
	require.Equal(t, Timing{PollInterval: 2 * time.Minute, GracePeriod: time.Hour, Cooldown: 5 * time.Minute}, m.Timing())

	m.SetMode(ModeStrict)
	require.Equal(t, DefaultTiming(ModeStrict), m.Timing())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeDisabled, "soft": ModeSoft, "strict": ModeStrict, "disabled": ModeDisabled} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseMode("aggressive")
	require.Error(t, err)
}

type fakeTicker struct{ c chan time.Time }

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               {}

type tickerRecorder struct {
	mu        sync.Mutex
	intervals []time.Duration
	ticker    *fakeTicker
}

func (r *tickerRecorder) factory(d time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervals = append(r.intervals, d)
	return r.ticker
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intervals)
}

type blockingDevice struct {
	*wledtest.Fake
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDevice) GetState(ctx context.Context) (*wled.State, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Fake.GetState(ctx)
}

func TestService_SkipsTickWhileInFlight(t *testing.T) {
	dev := &blockingDevice{Fake: wledtest.New(nil), entered: make(chan struct{}, 1), release: make(chan struct{})}
	m, _ := newMachine(t, ModeStrict, dev, brightRule())
	rec := &tickerRecorder{ticker: &fakeTicker{c: make(chan time.Time)}}

	outcomes := make(chan Outcome, 4)
	svc := NewService(m, rec.factory, func(o Outcome, err error) { outcomes <- o })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	rec.ticker.c <- evening
	<-dev.entered
	rec.ticker.c <- evening
	require.Eventually(t, func() bool { return svc.Skipped() == 1 }, time.Second, time.Millisecond)

	close(dev.release)
	require.Equal(t, OutcomeCorrected, (<-outcomes).Kind)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, []time.Duration{30 * time.Second}, rec.intervals)
	require.Equal(t, 1, dev.Calls())
}

func TestService_DisabledModeIdlesUntilEnabled(t *testing.T) {
	m, _ := newMachine(t, ModeDisabled, wledtest.New(nil), brightRule())
	rec := &tickerRecorder{ticker: &fakeTicker{c: make(chan time.Time)}}
	svc := NewService(m, rec.factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Never(t, func() bool { return rec.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	m.SetMode(ModeSoft)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestService_TickNow(t *testing.T) {
	dev := wledtest.New(nil)
	m, _ := newMachine(t, ModeSoft, dev, brightRule())
	svc := NewService(m, nil, nil)

	out, ran, err := svc.TickNow(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, OutcomeCorrected, out.Kind)
}
