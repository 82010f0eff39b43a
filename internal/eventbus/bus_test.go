package eventbus

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToSubscribers(t *testing.T) {
	b := NewWithConfig(2, 10)

	var rules, overrides atomic.Int32
	b.Subscribe(EventTypeRulesChanged, func(e Event) {
		require.Equal(t, "add", e.Data["op"])
		rules.Add(1)
	})
	b.Subscribe(EventTypeOverride, func(Event) { overrides.Add(1) })

	b.Publish(Event{Type: EventTypeRulesChanged, Data: map[string]any{"op": "add"}})
	b.Publish(Event{Type: EventTypeRulesChanged, Data: map[string]any{"op": "add"}})
	b.Publish(Event{Type: EventTypeSync})

	b.Close(context.Background())
	require.Equal(t, int32(2), rules.Load())
	require.Zero(t, overrides.Load())
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := NewWithConfig(1, 1)
	var n atomic.Int32
	b.Subscribe(EventTypeOverride, func(Event) { n.Add(1) })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(Event{Type: EventTypeOverride})
	require.Zero(t, n.Load())
}

func TestBus_HandlerPanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 10)
	var n atomic.Int32
	b.Subscribe(EventTypeSync, func(e Event) {
		if e.Data["boom"] == true {
			panic("boom")
		}
		n.Add(1)
	})

	b.Publish(Event{Type: EventTypeSync, Data: map[string]any{"boom": true}})
	b.Publish(Event{Type: EventTypeSync})
	b.Close(context.Background())
	require.Equal(t, int32(1), n.Load())
}
