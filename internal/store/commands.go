package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dokzlo13/lumina/internal/rules"
)

// command is one store mutation: a pure transformation of the cached list
// plus the remote write that mirrors it.
type command interface {
	name() string
	apply(current []rules.Rule) ([]rules.Rule, error)
	persist(ctx context.Context, remote Remote, userID string) error
}

type addCommand struct {
	rule rules.Rule
}

func (c *addCommand) name() string { return "add" }

func (c *addCommand) apply(current []rules.Rule) ([]rules.Rule, error) {
	if indexOf(current, c.rule.ID) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, c.rule.ID)
	}
	return append(current, c.rule.Clone()), nil
}

func (c *addCommand) persist(ctx context.Context, remote Remote, userID string) error {
	return remote.Add(ctx, userID, c.rule)
}

type addAllCommand struct {
	rules []rules.Rule
}

func (c *addAllCommand) name() string { return "add_all" }

func (c *addAllCommand) apply(current []rules.Rule) ([]rules.Rule, error) {
	for _, r := range c.rules {
		if indexOf(current, r.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
	}
	return append(current, rules.CloneAll(c.rules)...), nil
}

func (c *addAllCommand) persist(ctx context.Context, remote Remote, userID string) error {
	return remote.AddAll(ctx, userID, c.rules)
}

type removeCommand struct {
	id string
}

func (c *removeCommand) name() string { return "remove" }

func (c *removeCommand) apply(current []rules.Rule) ([]rules.Rule, error) {
	i := indexOf(current, c.id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.id)
	}
	return append(current[:i], current[i+1:]...), nil
}

func (c *removeCommand) persist(ctx context.Context, remote Remote, userID string) error {
	return remote.Remove(ctx, userID, c.id)
}

type updateCommand struct {
	rule rules.Rule
}

func (c *updateCommand) name() string { return "update" }

func (c *updateCommand) apply(current []rules.Rule) ([]rules.Rule, error) {
	i := indexOf(current, c.rule.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.rule.ID)
	}
	old := current[i]
	c.rule.CreatedAt = old.CreatedAt
	c.rule.CreatedBy = old.CreatedBy
	c.rule.DevicePresetID = nil
	// A preset holds the action it was written with.
	if old.DevicePresetID != nil && reflect.DeepEqual(old.Action, c.rule.Action) {
		id := *old.DevicePresetID
		c.rule.DevicePresetID = &id
	}
	current[i] = c.rule.Clone()
	return current, nil
}

func (c *updateCommand) persist(ctx context.Context, remote Remote, userID string) error {
	return remote.Update(ctx, userID, c.rule)
}

type replaceAllCommand struct {
	rules []rules.Rule
}

func (c *replaceAllCommand) name() string { return "replace_all" }

func (c *replaceAllCommand) apply([]rules.Rule) ([]rules.Rule, error) {
	return rules.CloneAll(c.rules), nil
}

func (c *replaceAllCommand) persist(ctx context.Context, remote Remote, userID string) error {
	return remote.ReplaceAll(ctx, userID, c.rules)
}

// presetCommand writes device preset ids without touching UpdatedAt, so
// sync bookkeeping does not change rule recency.
type presetCommand struct {
	assignments map[string]int
	changed     []rules.Rule
}

func (c *presetCommand) name() string { return "set_preset_ids" }

func (c *presetCommand) apply(current []rules.Rule) ([]rules.Rule, error) {
	c.changed = c.changed[:0]
	for i := range current {
		id, ok := c.assignments[current[i].ID]
		if !ok {
			continue
		}
		if id == 0 {
			if current[i].DevicePresetID == nil {
				continue
			}
			current[i].DevicePresetID = nil
		} else {
			if current[i].DevicePresetID != nil && *current[i].DevicePresetID == id {
				continue
			}
			preset := id
			current[i].DevicePresetID = &preset
		}
		c.changed = append(c.changed, current[i].Clone())
	}
	return current, nil
}

func (c *presetCommand) persist(ctx context.Context, remote Remote, userID string) error {
	for _, r := range c.changed {
		if err := remote.Update(ctx, userID, r); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}
