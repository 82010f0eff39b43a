package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/config"
	"github.com/dokzlo13/lumina/internal/enforce"
	"github.com/dokzlo13/lumina/internal/eventbus"
	"github.com/dokzlo13/lumina/internal/geo"
	"github.com/dokzlo13/lumina/internal/ledger"
	"github.com/dokzlo13/lumina/internal/wled"
)

// EnforceService runs the enforcement poll loop and records its
// corrections and overrides in the ledger.
type EnforceService struct {
	Machine *enforce.Machine
	service *enforce.Service
	ledger  *ledger.Ledger
	bus     *eventbus.Bus
	device  wled.Device

	done chan struct{}
}

// NewEnforceService creates the machine from the enforcement config.
func NewEnforceService(
	cfg *config.Config,
	device wled.Device,
	source enforce.RuleSource,
	finder enforce.Finder,
	coords *geo.Coordinates,
	l *ledger.Ledger,
	bus *eventbus.Bus,
	loc *time.Location,
) (*EnforceService, error) {
	ec := cfg.Enforcement
	mode, err := enforce.ParseMode(ec.Mode)
	if err != nil {
		return nil, err
	}
	if device == nil && mode != enforce.ModeDisabled {
		log.Warn().Str("mode", string(mode)).Msg("Enforcement needs a device, starting disabled")
		mode = enforce.ModeDisabled
	}

	machine := enforce.NewMachine(device, source, finder, enforce.Options{
		Mode: mode,
		Timings: map[enforce.Mode]enforce.Timing{
			enforce.ModeSoft:   toTiming(ec.Soft),
			enforce.ModeStrict: toTiming(ec.Strict),
		},
		BrightnessTolerance: ec.BrightnessTolerance,
		Coordinates:         coords,
		Clock:               enforce.ClockFunc(func() time.Time { return time.Now().In(loc) }),
	})

	s := &EnforceService{Machine: machine, ledger: l, bus: bus, device: device, done: make(chan struct{})}
	s.service = enforce.NewService(machine, enforce.RealTicker, s.observe)
	return s, nil
}

func toTiming(t config.ModeTiming) enforce.Timing {
	return enforce.Timing{
		PollInterval: t.PollInterval.Duration(),
		GracePeriod:  t.GracePeriod.Duration(),
		Cooldown:     t.Cooldown.Duration(),
	}
}

// observe writes corrections and failed ticks to the ledger.
func (s *EnforceService) observe(out enforce.Outcome, err error) {
	var eventType ledger.EventType
	payload := map[string]any{"mode": string(s.Machine.Mode())}
	switch {
	case err != nil:
		eventType = ledger.EventEnforcementFailed
		payload["error"] = err.Error()
	case out.Kind == enforce.OutcomeCorrected:
		eventType = ledger.EventEnforcementApplied
		payload["drift"] = out.Drift
		if out.PresetID != 0 {
			payload["preset"] = out.PresetID
		}
	default:
		return
	}

	if s.ledger != nil {
		if lerr := s.ledger.AppendWithSource(eventType, "enforcement", out.RuleID, payload); lerr != nil {
			log.Error().Err(lerr).Msg("Failed to write enforcement ledger entry")
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeEnforcement,
			Data: map[string]any{"outcome": string(out.Kind), "rule": out.RuleID},
		})
	}
}

// Start launches the poll loop and the override recorder.
func (s *EnforceService) Start(ctx context.Context) {
	if s.bus != nil && s.ledger != nil {
		s.bus.Subscribe(eventbus.EventTypeOverride, func(ev eventbus.Event) {
			source, _ := ev.Data["source"].(string)
			payload := map[string]any{"mode": string(s.Machine.Mode())}
			if err := s.ledger.AppendWithSource(ledger.EventOverrideRecorded, source, "", payload); err != nil {
				log.Error().Err(err).Msg("Failed to write override ledger entry")
			}
		})
	}

	if s.device == nil {
		close(s.done)
		return
	}
	go func() {
		defer close(s.done)
		if err := s.service.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Enforcement loop error")
		}
	}()
}

// Done is closed once the poll loop and its in-flight ticks have finished.
func (s *EnforceService) Done() <-chan struct{} {
	return s.done
}
