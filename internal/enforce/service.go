package enforce

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Observer receives every completed tick.
type Observer func(Outcome, error)

// Service drives a Machine from a ticker. At most one tick runs at a time;
// a tick that comes due while another is in flight is skipped.
type Service struct {
	machine  *Machine
	tickers  TickerFactory
	observer Observer

	inflight atomic.Bool
	skipped  atomic.Int64
	wg       sync.WaitGroup
}

// NewService creates a service. tickers may be nil to use RealTicker.
func NewService(machine *Machine, tickers TickerFactory, observer Observer) *Service {
	if tickers == nil {
		tickers = RealTicker
	}
	return &Service{machine: machine, tickers: tickers, observer: observer}
}

// Machine returns the driven machine.
func (s *Service) Machine() *Machine {
	return s.machine
}

// Skipped returns how many ticks were skipped because one was in flight.
func (s *Service) Skipped() int64 {
	return s.skipped.Load()
}

// Run polls until ctx is cancelled. While the mode is disabled no ticker runs.
func (s *Service) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		mode := s.machine.Mode()
		if mode == ModeDisabled {
			log.Info().Msg("Enforcement disabled, poll loop idle")
			select {
			case <-ctx.Done():
				return nil
			case <-s.machine.modeChanged:
				continue
			}
		}

		interval := s.machine.Timing().PollInterval
		log.Info().Str("mode", string(mode)).Dur("interval", interval).Msg("Enforcement poll loop started")
		ticker := s.tickers(interval)

		restart := false
		for !restart {
			select {
			case <-ctx.Done():
				ticker.Stop()
				log.Info().Msg("Enforcement poll loop stopping")
				return nil
			case <-s.machine.modeChanged:
				restart = true
			case <-ticker.C():
				s.tick(ctx)
			}
		}
		ticker.Stop()
	}
}

// TickNow runs a tick immediately unless one is in flight. The bool
// reports whether the tick ran.
func (s *Service) TickNow(ctx context.Context) (Outcome, bool, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return Outcome{}, false, nil
	}
	defer s.inflight.Store(false)
	out, err := s.machine.Tick(ctx)
	s.report(out, err)
	return out, true, err
}

func (s *Service) tick(ctx context.Context) {
	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		log.Debug().Msg("Enforcement tick skipped, previous tick still running")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)
		out, err := s.machine.Tick(ctx)
		s.report(out, err)
	}()
}

func (s *Service) report(out Outcome, err error) {
	if err != nil {
		log.Warn().Err(err).Str("rule", out.RuleID).Msg("Enforcement tick failed, retrying next tick")
	} else if out.Kind == OutcomeCorrected {
		log.Info().Str("rule", out.RuleID).Strs("drift", out.Drift).Msg("Schedule enforced")
	} else {
		log.Debug().Str("outcome", string(out.Kind)).Msg("Enforcement tick")
	}
	if s.observer != nil {
		s.observer(out, err)
	}
}
