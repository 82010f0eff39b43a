package wled

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the relay transport.
type MQTTConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	DeviceID        string
	ResponseTimeout time.Duration
}

// command is the envelope the bridge firmware accepts on the command topic.
// The firmware treats a missing or unknown action as setState.
type command struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// MQTTClient reaches the controller through the bridge relay: commands go to
// lumina/<device>/command and the controller's HTTP response is echoed on
// lumina/<device>/status. Requests are serialized because responses carry
// no correlation id.
type MQTTClient struct {
	client       mqtt.Client
	commandTopic string
	statusTopic  string
	timeout      time.Duration

	mu        sync.Mutex
	responses chan []byte
}

// DialMQTT connects to the broker and subscribes to the device status topic.
func DialMQTT(cfg MQTTConfig) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(60 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%w: failed to connect to MQTT broker: %v", ErrUnreachable, token.Error())
	}

	c := newMQTTClient(client, cfg.DeviceID, cfg.ResponseTimeout)
	if token := client.Subscribe(c.statusTopic, 1, c.handleStatus); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", c.statusTopic, token.Error())
	}

	log.Info().Str("broker", cfg.Broker).Str("device", cfg.DeviceID).Msg("Connected to MQTT relay")
	return c, nil
}

func newMQTTClient(client mqtt.Client, deviceID string, timeout time.Duration) *MQTTClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &MQTTClient{
		client:       client,
		commandTopic: fmt.Sprintf("lumina/%s/command", deviceID),
		statusTopic:  fmt.Sprintf("lumina/%s/status", deviceID),
		timeout:      timeout,
		responses:    make(chan []byte, 1),
	}
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() error {
	c.client.Disconnect(250)
	return nil
}

func (c *MQTTClient) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()

	// Presence announcements and the bridge's periodic state pushes are not
	// responses.
	var meta struct {
		Online *bool           `json:"online"`
		Bridge json.RawMessage `json:"_bridge"`
	}
	if json.Unmarshal(payload, &meta) == nil {
		if meta.Online != nil {
			log.Debug().Bool("online", *meta.Online).Msg("Bridge presence update")
			return
		}
		if meta.Bridge != nil {
			log.Trace().Msg("Periodic bridge status ignored")
			return
		}
	}

	select {
	case c.responses <- payload:
	default:
		// Nobody waiting and buffer full: keep the freshest message.
		select {
		case <-c.responses:
		default:
		}
		select {
		case c.responses <- payload:
		default:
		}
	}
}

// GetState asks the bridge for /json/state.
func (c *MQTTClient) GetState(ctx context.Context) (*State, error) {
	body, err := c.request(ctx, command{Action: "getState"})
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}

// GetInfo asks the bridge for /json/info.
func (c *MQTTClient) GetInfo(ctx context.Context) (*Info, error) {
	body, err := c.request(ctx, command{Action: "getInfo"})
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info: %w", err)
	}
	return &info, nil
}

// ApplyJSON relays a state document.
func (c *MQTTClient) ApplyJSON(ctx context.Context, state *State) error {
	body, err := c.request(ctx, command{Action: "applyJson", Payload: state})
	if err != nil {
		return err
	}
	return checkAck(body)
}

// ApplyConfig relays a configuration document.
func (c *MQTTClient) ApplyConfig(ctx context.Context, cfg TimerConfig) error {
	body, err := c.request(ctx, command{Action: "applyConfig", Payload: cfg})
	if err != nil {
		return err
	}
	return checkAck(body)
}

// SavePreset stores state as preset id.
func (c *MQTTClient) SavePreset(ctx context.Context, id int, state *State, name string) error {
	return c.ApplyJSON(ctx, SavePresetRequest(id, state, name))
}

// LoadPreset activates preset id.
func (c *MQTTClient) LoadPreset(ctx context.Context, id int) error {
	return c.ApplyJSON(ctx, LoadPresetRequest(id))
}

func (c *MQTTClient) request(ctx context.Context, cmd command) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop a response that arrived after its request gave up.
	select {
	case <-c.responses:
	default:
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	token := c.client.Publish(c.commandTopic, 1, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return nil, fmt.Errorf("%w: publish to %s timed out", ErrUnreachable, c.commandTopic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: failed to publish to topic %s: %v", ErrUnreachable, c.commandTopic, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response to %s within %s", ErrUnreachable, cmd.Action, c.timeout)
	case body := <-c.responses:
		var relayErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &relayErr) == nil && relayErr.Error != "" {
			return nil, fmt.Errorf("bridge reported error for %s: %s", cmd.Action, relayErr.Error)
		}
		return body, nil
	}
}
