// Package store is the canonical collection of schedule rules.
//
// Mutations are optimistic: the in-memory cache changes immediately and is
// visible to readers before the remote write completes. A failed remote write
// restores the pre-mutation snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/rules"
)

var (
	ErrNotFound    = errors.New("rule not found")
	ErrDuplicateID = errors.New("duplicate rule id")
	ErrPersistence = errors.New("persistence failed")
)

// Remote is the persistent document store, keyed by user id.
type Remote interface {
	Load(ctx context.Context, userID string) ([]rules.Rule, error)
	Add(ctx context.Context, userID string, r rules.Rule) error
	AddAll(ctx context.Context, userID string, rs []rules.Rule) error
	Remove(ctx context.Context, userID, id string) error
	Update(ctx context.Context, userID string, r rules.Rule) error
	ReplaceAll(ctx context.Context, userID string, rs []rules.Rule) error
}

// Change describes one visible change of the rule list.
type Change struct {
	Op    string // add, add_all, remove, update, replace_all, set_preset_ids, load, rollback
	Rules []rules.Rule
}

// Listener is called synchronously after every visible change.
type Listener func(Change)

// Store caches the rule list and mirrors mutations to a Remote.
type Store struct {
	userID string
	remote Remote
	now    func() time.Time

	mu      sync.RWMutex
	rules   []rules.Rule
	version uint64

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

// New creates a store. An empty userID or nil remote selects local-only mode.
func New(userID string, remote Remote) *Store {
	return &Store{
		userID:    userID,
		remote:    remote,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// LocalOnly reports whether mutations stay in memory.
func (s *Store) LocalOnly() bool {
	return s.userID == "" || s.remote == nil
}

// Rules returns a copy of all rules in store order.
func (s *Store) Rules() []rules.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rules.CloneAll(s.rules)
}

// Enabled returns a copy of the enabled rules in store order.
func (s *Store) Enabled() []rules.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rules.Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Get returns a copy of the rule with id.
func (s *Store) Get(id string) (rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.rules, id); i >= 0 {
		return s.rules[i].Clone(), nil
	}
	return rules.Rule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Count returns the number of rules.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Subscribe registers fn for change notifications. The returned function
// unregisters it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(op string) {
	ch := Change{Op: op, Rules: s.Rules()}

	s.subMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// Load replaces the cache with the remote's rule list.
func (s *Store) Load(ctx context.Context) error {
	if s.LocalOnly() {
		return nil
	}
	loaded, err := s.remote.Load(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("%w: load rules: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	s.rules = loaded
	s.version++
	s.mu.Unlock()

	log.Info().Str("user", s.userID).Int("rules", len(loaded)).Msg("Rules loaded")
	s.notify("load")
	return nil
}

// Add validates and appends r. A missing id is generated.
func (s *Store) Add(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	r = s.prepareNew(r)
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	err := s.execute(ctx, &addCommand{rule: r})
	return r.Clone(), err
}

// AddAll validates and appends rs as one mutation.
func (s *Store) AddAll(ctx context.Context, rs []rules.Rule) ([]rules.Rule, error) {
	prepared, err := s.prepareAll(rs)
	if err != nil {
		return nil, err
	}
	err = s.execute(ctx, &addAllCommand{rules: prepared})
	return rules.CloneAll(prepared), err
}

// Remove deletes the rule with id.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.execute(ctx, &removeCommand{id: id})
}

// Update replaces the rule with r.ID. Creation time and device preset id are
// carried over from the stored rule.
func (s *Store) Update(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	r = r.Clone()
	r.UpdatedAt = s.now()
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	cmd := &updateCommand{rule: r}
	err := s.execute(ctx, cmd)
	return cmd.rule.Clone(), err
}

// ReplaceAll swaps the whole rule list.
func (s *Store) ReplaceAll(ctx context.Context, rs []rules.Rule) ([]rules.Rule, error) {
	prepared, err := s.prepareAll(rs)
	if err != nil {
		return nil, err
	}
	err = s.execute(ctx, &replaceAllCommand{rules: prepared})
	return rules.CloneAll(prepared), err
}

// SetPresetIDs records device preset assignments. A zero id clears the
// assignment. Ids of rules no longer in the store are ignored.
func (s *Store) SetPresetIDs(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}
	return s.execute(ctx, &presetCommand{assignments: assignments})
}

func (s *Store) prepareNew(r rules.Rule) rules.Rule {
	r = r.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.CreatedBy == "" {
		r.CreatedBy = rules.OriginUser
	}
	r.DevicePresetID = nil
	return r
}

func (s *Store) prepareAll(rs []rules.Rule) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(rs))
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		r = s.prepareNew(r)
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

// execute applies cmd to the cache, notifies listeners, then persists.
// On remote failure the snapshot is restored if no later mutation landed;
// otherwise the cache is reloaded from the remote.
func (s *Store) execute(ctx context.Context, cmd command) error {
	s.mu.Lock()
	snapshot := s.rules
	next, err := cmd.apply(rules.CloneAll(s.rules))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.rules = next
	s.version++
	applied := s.version
	s.mu.Unlock()

	s.notify(cmd.name())

	if s.LocalOnly() {
		return nil
	}

	if err := cmd.persist(ctx, s.remote, s.userID); err != nil {
		log.Error().Err(err).Str("op", cmd.name()).Str("user", s.userID).Msg("Remote write failed, rolling back")
		s.rollback(ctx, snapshot, applied)
		return fmt.Errorf("%w: %s: %w", ErrPersistence, cmd.name(), err)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, snapshot []rules.Rule, applied uint64) {
	s.mu.Lock()
	if s.version == applied {
		s.rules = snapshot
		s.version++
		s.mu.Unlock()
		s.notify("rollback")
		return
	}
	s.mu.Unlock()

	// A later mutation already built on top of ours; the snapshot is stale.
	if err := s.Load(ctx); err != nil {
		log.Error().Err(err).Str("user", s.userID).Msg("Reload after failed write also failed")
	}
}

func indexOf(rs []rules.Rule, id string) int {
	for i := range rs {
		if rs[i].ID == id {
			return i
		}
	}
	return -1
}
