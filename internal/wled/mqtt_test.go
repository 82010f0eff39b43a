package wled

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type statusMessage struct {
	topic   string
	payload []byte
}

func (m statusMessage) Duplicate() bool   { return false }
func (m statusMessage) Qos() byte         { return 1 }
func (m statusMessage) Retained() bool    { return false }
func (m statusMessage) Topic() string     { return m.topic }
func (m statusMessage) MessageID() uint16 { return 0 }
func (m statusMessage) Payload() []byte   { return m.payload }
func (m statusMessage) Ack()              {}

// fakeBridge answers published commands the way the relay firmware does:
// it routes on the action field and falls back to setState.
type fakeBridge struct {
	mqtt.Client

	mu        sync.Mutex
	target    *MQTTClient
	endpoints []string
	reply     func(endpoint string) []byte

	// periodic is pushed before each reply, and replyDelay holds the reply
	// back, like a status publish that beats a slow controller response.
	periodic   []byte
	replyDelay time.Duration
}

func relayEndpoint(action string) string {
	switch action {
	case "getState":
		return "GET /json/state"
	case "getInfo":
		return "GET /json/info"
	case "setConfig", "applyConfig":
		return "POST /json/cfg"
	default:
		return "POST /json/state"
	}
}

func (b *fakeBridge) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload.([]byte), &doc); err != nil {
		return doneToken{err: err}
	}
	action := "setState"
	if raw, ok := doc["action"]; ok {
		_ = json.Unmarshal(raw, &action)
	}
	endpoint := relayEndpoint(action)

	b.mu.Lock()
	b.endpoints = append(b.endpoints, endpoint)
	b.mu.Unlock()

	if b.periodic != nil {
		b.target.handleStatus(nil, statusMessage{topic: b.target.statusTopic, payload: b.periodic})
	}
	resp := b.reply(endpoint)
	if resp == nil {
		return doneToken{}
	}
	deliver := func() {
		b.target.handleStatus(nil, statusMessage{topic: b.target.statusTopic, payload: resp})
	}
	if b.replyDelay > 0 {
		time.AfterFunc(b.replyDelay, deliver)
	} else {
		deliver()
	}
	return doneToken{}
}

func (b *fakeBridge) Disconnect(uint) {}

func (b *fakeBridge) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.endpoints...)
}

func newBridgePair(reply func(endpoint string) []byte) (*MQTTClient, *fakeBridge) {
	b := &fakeBridge{reply: reply}
	c := newMQTTClient(b, "dev-1", 100*time.Millisecond)
	b.target = c
	return c, b
}

func TestMQTTClient_Topics(t *testing.T) {
	c, _ := newBridgePair(func(string) []byte { return nil })
	require.Equal(t, "lumina/dev-1/command", c.commandTopic)
	require.Equal(t, "lumina/dev-1/status", c.statusTopic)
}

func TestMQTTClient_GetState(t *testing.T) {
	c, b := newBridgePair(func(endpoint string) []byte {
		if endpoint == "GET /json/state" {
			return []byte(`{"on":false,"bri":12}`)
		}
		return []byte(`{"success":true}`)
	})

	st, err := c.GetState(context.Background())
	require.NoError(t, err)
	require.False(t, st.IsOn())
	require.Equal(t, 12, *st.Bri)
	require.Equal(t, []string{"GET /json/state"}, b.calls())
}

func TestMQTTClient_RoutesEveryCommand(t *testing.T) {
	c, b := newBridgePair(func(endpoint string) []byte {
		switch endpoint {
		case "GET /json/state":
			return []byte(`{"on":true}`)
		case "GET /json/info":
			return []byte(`{"ver":"0.14.0","name":"desk"}`)
		}
		return []byte(`{"success":true}`)
	})
	ctx := context.Background()

	_, err := c.GetState(ctx)
	require.NoError(t, err)
	_, err = c.GetInfo(ctx)
	require.NoError(t, err)
	require.NoError(t, c.LoadPreset(ctx, 11))
	require.NoError(t, c.SavePreset(ctx, 12, &State{On: Bool(true)}, "Warm"))
	require.NoError(t, c.ApplyConfig(ctx, NewTimerConfig(nil)))

	require.Equal(t, []string{
		"GET /json/state",
		"GET /json/info",
		"POST /json/state",
		"POST /json/state",
		"POST /json/cfg",
	}, b.calls())
}

func TestCommand_Envelope(t *testing.T) {
	body, err := json.Marshal(command{Action: "applyConfig", Payload: NewTimerConfig(nil)})
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &doc))
	require.JSONEq(t, `"applyConfig"`, string(doc["action"]))
	require.Contains(t, doc, "payload")
	require.NotContains(t, doc, "type")
}

func TestMQTTClient_IgnoresPresenceAndStaleStatus(t *testing.T) {
	c, _ := newBridgePair(func(string) []byte { return []byte(`{"on":true}`) })

	// Stale periodic push and presence announcement before the request.
	c.handleStatus(nil, statusMessage{payload: []byte(`{"on":false,"bri":1}`)})
	c.handleStatus(nil, statusMessage{payload: []byte(`{"online":true,"bridge":"esp32-mqtt"}`)})

	st, err := c.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, st.IsOn())
	require.Nil(t, st.Bri)
}

func TestMQTTClient_TimeoutIsUnreachable(t *testing.T) {
	c, _ := newBridgePair(func(string) []byte { return nil })

	_, err := c.GetState(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnreachable))
}

func TestMQTTClient_BridgeError(t *testing.T) {
	c, _ := newBridgePair(func(string) []byte { return []byte(`{"error":"HTTP request failed"}`) })

	err := c.ApplyJSON(context.Background(), &State{On: Bool(true)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP request failed")
}

func TestMQTTClient_PeriodicStatusIsNotAResponse(t *testing.T) {
	c, b := newBridgePair(func(endpoint string) []byte {
		if endpoint == "POST /json/cfg" {
			return []byte(`{"error":"ERROR: HTTP 500","action":"applyConfig"}`)
		}
		return []byte(`{"on":false,"bri":40}`)
	})
	b.periodic = []byte(`{"on":true,"bri":255,"_bridge":"esp32-mqtt","_uptime":120,"_commands":3,"_errors":0}`)
	b.replyDelay = 20 * time.Millisecond
	ctx := context.Background()

	err := c.ApplyConfig(ctx, NewTimerConfig(nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 500")

	st, err := c.GetState(ctx)
	require.NoError(t, err)
	require.False(t, st.IsOn())
	require.Equal(t, 40, *st.Bri)
}
