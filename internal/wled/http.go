package wled

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HTTPClient talks to the controller's JSON API directly.
type HTTPClient struct {
	address string
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the controller at address ("192.168.1.50" or a full URL).
func NewHTTPClient(address string, timeout time.Duration, rateLimitRPS float64) *HTTPClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 5.0
	}

	baseURL := address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &HTTPClient{
		address: address,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

// GetState reads /json/state.
func (c *HTTPClient) GetState(ctx context.Context) (*State, error) {
	body, err := c.get(ctx, "/json/state")
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}

// GetInfo reads /json/info.
func (c *HTTPClient) GetInfo(ctx context.Context) (*Info, error) {
	body, err := c.get(ctx, "/json/info")
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info: %w", err)
	}
	return &info, nil
}

// ApplyJSON posts to /json/state.
func (c *HTTPClient) ApplyJSON(ctx context.Context, state *State) error {
	return c.post(ctx, "/json/state", state)
}

// ApplyConfig posts to /json/cfg.
func (c *HTTPClient) ApplyConfig(ctx context.Context, cfg TimerConfig) error {
	return c.post(ctx, "/json/cfg", cfg)
}

// SavePreset stores state as preset id.
func (c *HTTPClient) SavePreset(ctx context.Context, id int, state *State, name string) error {
	log.Debug().Str("address", c.address).Int("preset", id).Str("name", name).Msg("Saving preset")
	return c.ApplyJSON(ctx, SavePresetRequest(id, state, name))
}

// LoadPreset activates preset id.
func (c *HTTPClient) LoadPreset(ctx context.Context, id int) error {
	return c.ApplyJSON(ctx, LoadPresetRequest(id))
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUnreachable, path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status code: %d", path, resp.StatusCode())
	}
	return resp.Body(), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrUnreachable, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("POST %s: unexpected status code: %d", path, resp.StatusCode())
	}
	return checkAck(resp.Body())
}

// checkAck inspects a {"success": bool} or {"error": ...} acknowledgement.
// Bodies that are not acknowledgements (full state echoes) are accepted.
func checkAck(body []byte) error {
	var ack struct {
		Success *bool           `json:"success"`
		Error   json.RawMessage `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &ack) != nil {
		return nil
	}
	if len(ack.Error) > 0 && string(ack.Error) != "null" {
		return fmt.Errorf("controller rejected request: %s", string(ack.Error))
	}
	if ack.Success != nil && !*ack.Success {
		return fmt.Errorf("controller rejected request")
	}
	return nil
}
