package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/classify"
	"github.com/dokzlo13/lumina/internal/devicesync"
	"github.com/dokzlo13/lumina/internal/enforce"
	"github.com/dokzlo13/lumina/internal/eventbus"
	"github.com/dokzlo13/lumina/internal/rules"
	"github.com/dokzlo13/lumina/internal/wled"
)

// latestKey is the cache key of the most recent classification.
const latestKey = "latest"

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Classification classify.Result `json:"classification"`
	Hint           string          `json:"hint"`
}

func (s *server) classify(w http.ResponseWriter, r *http.Request) error {
	var req classifyRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: "text is required", Field: "text"}
	}

	result := s.Classifier.Classify(req.Text)
	if s.Cache != nil {
		if err := s.Cache.Put(r.Context(), latestKey, result); err != nil {
			log.Warn().Err(err).Msg("Failed to cache classification")
		}
	}
	return WriteJSON(w, http.StatusOK, classifyResponse{
		Classification: result,
		Hint:           classify.BuildAIContextHint(result, s.Store.Rules()),
	})
}

// latestClassification hands the cached result to one consumer.
func (s *server) latestClassification(w http.ResponseWriter, r *http.Request) error {
	if s.Cache == nil {
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "no classification cached"}
	}
	result, ok, err := s.Cache.Take(r.Context(), latestKey)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "no classification cached"}
	}
	return WriteJSON(w, http.StatusOK, result)
}

type rulesResponse struct {
	Rules []rules.Rule `json:"rules"`
	Count int          `json:"count"`
}

func (s *server) listRules(w http.ResponseWriter, r *http.Request) error {
	rs := s.Store.Rules()
	if rs == nil {
		rs = []rules.Rule{}
	}
	return WriteJSON(w, http.StatusOK, rulesResponse{Rules: rs, Count: len(rs)})
}

func (s *server) getRule(w http.ResponseWriter, r *http.Request) error {
	rule, err := s.Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, rule)
}

func (s *server) addRule(w http.ResponseWriter, r *http.Request) error {
	var rule rules.Rule
	if err := decode(r, &rule); err != nil {
		return err
	}
	added, err := s.Store.Add(r.Context(), rule)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusCreated, added)
}

func (s *server) replaceRules(w http.ResponseWriter, r *http.Request) error {
	var req rulesResponse
	if err := decode(r, &req); err != nil {
		return err
	}
	replaced, err := s.Store.ReplaceAll(r.Context(), req.Rules)
	if err != nil {
		return err
	}
	if replaced == nil {
		replaced = []rules.Rule{}
	}
	return WriteJSON(w, http.StatusOK, rulesResponse{Rules: replaced, Count: len(replaced)})
}

func (s *server) updateRule(w http.ResponseWriter, r *http.Request) error {
	var rule rules.Rule
	if err := decode(r, &rule); err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	if rule.ID != "" && rule.ID != id {
		return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: "id in body does not match path", Field: "id"}
	}
	rule.ID = id
	updated, err := s.Store.Update(r.Context(), rule)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, updated)
}

func (s *server) deleteRule(w http.ResponseWriter, r *http.Request) error {
	if err := s.Store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type activeResponse struct {
	Active *activeRule `json:"active"`
}

type activeRule struct {
	Rule  rules.Rule `json:"rule"`
	Start string     `json:"start"`
	End   string     `json:"end,omitempty"`
}

func (s *server) activeRule(w http.ResponseWriter, r *http.Request) error {
	match, ok := s.Resolver.Resolve(s.Now(), s.Store.Enabled(), s.Coordinates)
	if !ok {
		return WriteJSON(w, http.StatusOK, activeResponse{})
	}
	ar := &activeRule{Rule: match.Rule, Start: match.Start.Format(time.RFC3339)}
	if !match.End.IsZero() {
		ar.End = match.End.Format(time.RFC3339)
	}
	return WriteJSON(w, http.StatusOK, activeResponse{Active: ar})
}

type syncResponse struct {
	Success      bool           `json:"success"`
	Partial      bool           `json:"partial"`
	Error        string         `json:"error,omitempty"`
	PresetErrors []string       `json:"preset_errors,omitempty"`
	Assigned     map[string]int `json:"assigned,omitempty"`
	Dropped      []string       `json:"dropped,omitempty"`
	Skipped      []string       `json:"skipped,omitempty"`
	Timers       []wled.Timer   `json:"timers"`
}

func (s *server) sync(w http.ResponseWriter, r *http.Request) error {
	if s.Syncer == nil {
		return devicesync.ErrNoController
	}
	res := s.Syncer.Sync(r.Context())
	if errors.Is(res.Err, devicesync.ErrNoController) {
		return res.Err
	}

	body := syncResponse{
		Success:  res.Success,
		Partial:  res.Partial,
		Assigned: res.Assigned,
		Dropped:  res.Dropped,
		Skipped:  res.Skipped,
		Timers:   res.Timers,
	}
	if body.Timers == nil {
		body.Timers = []wled.Timer{}
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	for _, pe := range res.PresetErrors {
		body.PresetErrors = append(body.PresetErrors, pe.Error())
	}

	status := http.StatusOK
	if res.TimerError != nil {
		status = asError(res.TimerError).Status
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
	}
	return WriteJSON(w, status, body)
}

type overrideResponse struct {
	Recorded bool            `json:"recorded"`
	Runtime  enforce.Runtime `json:"runtime"`
}

func (s *server) override(w http.ResponseWriter, r *http.Request) error {
	if s.Enforcer == nil {
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: "enforcement not configured"}
	}
	recorded := s.Enforcer.RecordOverride()
	if recorded && s.Bus != nil {
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeOverride, Data: map[string]any{"source": "api"}})
	}
	return WriteJSON(w, http.StatusOK, overrideResponse{Recorded: recorded, Runtime: s.Enforcer.Runtime()})
}

func (s *server) enforcement(w http.ResponseWriter, r *http.Request) error {
	if s.Enforcer == nil {
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: "enforcement not configured"}
	}
	return WriteJSON(w, http.StatusOK, s.Enforcer.Runtime())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *server) setEnforcementMode(w http.ResponseWriter, r *http.Request) error {
	if s.Enforcer == nil {
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: "enforcement not configured"}
	}
	var req modeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	mode, err := enforce.ParseMode(req.Mode)
	if err != nil {
		return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: err.Error(), Field: "mode"}
	}
	s.Enforcer.SetMode(mode)
	return WriteJSON(w, http.StatusOK, s.Enforcer.Runtime())
}

type deviceResponse struct {
	State *wled.State `json:"state"`
	Info  *wled.Info  `json:"info,omitempty"`
}

func (s *server) device(w http.ResponseWriter, r *http.Request) error {
	if s.Device == nil {
		return devicesync.ErrNoController
	}
	state, err := s.Device.GetState(r.Context())
	if err != nil {
		return err
	}
	resp := deviceResponse{State: state}
	if ir, ok := s.Device.(wled.InfoReader); ok {
		info, err := ir.GetInfo(r.Context())
		if err != nil {
			return err
		}
		resp.Info = info
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (s *server) ledger(w http.ResponseWriter, r *http.Request) error {
	if s.Ledger == nil {
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "ledger not configured"}
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	entries, err := s.Ledger.Recent(limit)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
