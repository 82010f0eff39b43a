package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/batch"
	"github.com/dokzlo13/lumina/internal/config"
	"github.com/dokzlo13/lumina/internal/devicesync"
	"github.com/dokzlo13/lumina/internal/eventbus"
	"github.com/dokzlo13/lumina/internal/ledger"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/store"
	"github.com/dokzlo13/lumina/internal/wled"
)

// RuleStore is the part of the store device sync needs.
type RuleStore interface {
	Rules() []rules.Rule
	SetPresetIDs(ctx context.Context, assignments map[string]int) error
	Subscribe(fn store.Listener) (cancel func())
}

// SyncService pushes the rule set to the controller on demand, on a cron
// schedule and optionally after every rule change.
type SyncService struct {
	store    RuleStore
	device   wled.Device
	ledger   *ledger.Ledger
	bus      *eventbus.Bus
	timeout  time.Duration
	debounce time.Duration
	onChange bool

	cron    *cron.Cron
	changes *batch.IntervalCollector

	// mu serializes pushes; the timer table is written as a whole.
	mu          sync.Mutex
	unsubscribe func()
}

// NewSyncService creates a SyncService. An invalid cron expression is an error.
func NewSyncService(
	cfg *config.Config,
	st RuleStore,
	device wled.Device,
	l *ledger.Ledger,
	bus *eventbus.Bus,
	loc *time.Location,
) (*SyncService, error) {
	s := &SyncService{
		store:    st,
		device:   device,
		ledger:   l,
		bus:      bus,
		timeout:  cfg.Sync.Timeout.Duration(),
		debounce: cfg.Sync.Debounce.Duration(),
		onChange: cfg.Sync.OnChange,
	}
	if cfg.Sync.Cron != "" {
		s.cron = cron.New(cron.WithLocation(loc))
		if _, err := s.cron.AddFunc(cfg.Sync.Cron, s.scheduled); err != nil {
			return nil, fmt.Errorf("invalid sync.cron %q: %w", cfg.Sync.Cron, err)
		}
	}
	return s, nil
}

// Sync compiles and pushes the current rules, records preset assignments
// in the store and writes the outcome to the ledger.
func (s *SyncService) Sync(ctx context.Context) devicesync.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := devicesync.Push(ctx, s.device, s.store.Rules())
	if len(res.Assigned) > 0 {
		if err := s.store.SetPresetIDs(ctx, res.Assigned); err != nil {
			log.Error().Err(err).Msg("Failed to record preset assignments")
		}
	}
	s.record(res)
	return res
}

func (s *SyncService) record(res devicesync.Result) {
	payload := map[string]any{
		"timers":  len(res.Timers),
		"dropped": res.Dropped,
		"partial": res.Partial,
	}
	if len(res.Skipped) > 0 {
		payload["skipped"] = res.Skipped
	}

	eventType := ledger.EventSyncCompleted
	if res.Err != nil {
		eventType = ledger.EventSyncFailed
		payload["error"] = res.Err.Error()
	}
	if s.ledger != nil {
		if err := s.ledger.AppendWithSource(eventType, "sync", "", payload); err != nil {
			log.Error().Err(err).Msg("Failed to write sync ledger entry")
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeSync,
			Data: map[string]any{"success": res.Success, "partial": res.Partial},
		})
	}
}

func (s *SyncService) scheduled() {
	if s.device == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	log.Debug().Msg("Scheduled device sync")
	s.Sync(ctx)
}

// handleChange reacts to visible rule changes. Preset id bookkeeping does
// not change what the device should run.
func (s *SyncService) handleChange(ch store.Change) {
	if ch.Op == "set_preset_ids" {
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeRulesChanged,
			Data: map[string]any{"op": ch.Op, "rules": len(ch.Rules)},
		})
	}
}

// Start begins the cron schedule and subscribes to rule changes.
func (s *SyncService) Start(ctx context.Context) {
	s.unsubscribe = s.store.Subscribe(s.handleChange)

	if s.onChange && s.bus != nil && s.device != nil {
		s.changes = batch.NewIntervalCollector(s.debounce, func(events []map[string]any) {
			syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			log.Debug().Int("changes", len(events)).Msg("Rules changed, syncing device")
			s.Sync(syncCtx)
		})
		// Store listeners run inside the mutation; the push happens off the bus workers.
		s.bus.Subscribe(eventbus.EventTypeRulesChanged, func(ev eventbus.Event) {
			s.changes.AddEvent(ev.Data)
		})

		// The script may have replaced the rules before anyone was listening.
		go func() {
			syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			s.Sync(syncCtx)
		}()
	}

	if s.cron != nil {
		s.cron.Start()
		log.Info().Msg("Periodic device sync scheduled")
	}
}

// Stop halts the cron schedule and waits for a running sync to finish.
func (s *SyncService) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.changes != nil {
		s.changes.Close()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
