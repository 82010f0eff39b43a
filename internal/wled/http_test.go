package wled

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu     sync.Mutex
	state  string
	posted map[string][]string
}

func newFakeController(t *testing.T) (*fakeController, *httptest.Server) {
	t.Helper()
	fc := &fakeController{
		state:  `{"on":true,"bri":64,"seg":[{"id":0,"fx":0}]}`,
		posted: make(map[string][]string),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/json/state":
			io.WriteString(w, fc.state)
		case r.Method == http.MethodGet && r.URL.Path == "/json/info":
			io.WriteString(w, `{"ver":"0.14.4","name":"Porch","leds":{"count":150}}`)
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			fc.posted[r.URL.Path] = append(fc.posted[r.URL.Path], string(body))
			io.WriteString(w, `{"success":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return fc, srv
}

func TestHTTPClient_GetStateAndInfo(t *testing.T) {
	_, srv := newFakeController(t)
	c := NewHTTPClient(srv.URL, time.Second, 100)

	st, err := c.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, st.IsOn())
	require.Equal(t, 64, *st.Bri)

	info, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.14.4", info.Version)
	require.Equal(t, 150, info.LEDs.Count)
}

func TestHTTPClient_PresetAndConfigRequests(t *testing.T) {
	fc, srv := newFakeController(t)
	c := NewHTTPClient(srv.URL, time.Second, 100)
	ctx := context.Background()

	require.NoError(t, c.SavePreset(ctx, 10, &State{On: Bool(true), Bri: Int(180)}, "Warm White"))
	require.NoError(t, c.LoadPreset(ctx, 10))
	require.NoError(t, c.ApplyConfig(ctx, NewTimerConfig(nil)))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.posted["/json/state"], 2)
	require.JSONEq(t, `{"on":true,"bri":180,"psave":10,"n":"Warm White"}`, fc.posted["/json/state"][0])
	require.JSONEq(t, `{"ps":10}`, fc.posted["/json/state"][1])

	var cfg TimerConfig
	require.NoError(t, json.Unmarshal([]byte(fc.posted["/json/cfg"][0]), &cfg))
	require.Len(t, cfg.Timers.Instances, MaxTimers)
}

func TestHTTPClient_Unreachable(t *testing.T) {
	_, srv := newFakeController(t)
	srv.Close()

	c := NewHTTPClient(srv.URL, 200*time.Millisecond, 100)
	_, err := c.GetState(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnreachable))
}

func TestCheckAck(t *testing.T) {
	require.NoError(t, checkAck([]byte(`{"success":true}`)))
	require.NoError(t, checkAck([]byte(`{"on":true}`)))
	require.NoError(t, checkAck(nil))
	require.Error(t, checkAck([]byte(`{"success":false}`)))
	require.Error(t, checkAck([]byte(`{"error":9}`)))
}
