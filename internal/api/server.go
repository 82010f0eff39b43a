// Package api is the HTTP control surface: rule CRUD, request
// classification, device sync, override recording and status.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dokzlo13/lumina/internal/classify"
	"github.com/dokzlo13/lumina/internal/devicesync"
	"github.com/dokzlo13/lumina/internal/enforce"
	"github.com/dokzlo13/lumina/internal/eventbus"
	"github.com/dokzlo13/lumina/internal/geo"
	"github.com/dokzlo13/lumina/internal/ledger"
	"github.com/dokzlo13/lumina/internal/resolver"
	"github.com/dokzlo13/lumina/internal/store"
	"github.com/dokzlo13/lumina/internal/wled"
)

// Syncer pushes the current rule set to the controller.
type Syncer interface {
	Sync(ctx context.Context) devicesync.Result
}

// Enforcer is the part of the enforcement machine the API drives.
type Enforcer interface {
	RecordOverride() bool
	Runtime() enforce.Runtime
	SetMode(enforce.Mode)
}

// Deps are the services behind the routes. Device, Enforcer, Syncer, Bus
// and Ledger may be nil.
type Deps struct {
	Store       *store.Store
	Classifier  *classify.Classifier
	Cache       classify.Cache
	Resolver    *resolver.Resolver
	Coordinates *geo.Coordinates
	Device      wled.Device
	Syncer      Syncer
	Enforcer    Enforcer
	Bus         *eventbus.Bus
	Ledger      *ledger.Ledger
	Now         func() time.Time
	Ready       func() bool
}

type server struct {
	Deps
}

// NewRouter builds the chi router.
func NewRouter(d Deps) chi.Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Ready == nil {
		d.Ready = func() bool { return true }
	}
	s := &server{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/classify", Handler(s.classify))
		r.Method(http.MethodGet, "/classify/latest", Handler(s.latestClassification))

		r.Method(http.MethodGet, "/rules", Handler(s.listRules))
		r.Method(http.MethodPost, "/rules", Handler(s.addRule))
		r.Method(http.MethodPut, "/rules", Handler(s.replaceRules))
		r.Method(http.MethodGet, "/rules/active", Handler(s.activeRule))
		r.Method(http.MethodGet, "/rules/{id}", Handler(s.getRule))
		r.Method(http.MethodPut, "/rules/{id}", Handler(s.updateRule))
		r.Method(http.MethodDelete, "/rules/{id}", Handler(s.deleteRule))

		r.Method(http.MethodPost, "/sync", Handler(s.sync))
		r.Method(http.MethodPost, "/override", Handler(s.override))
		r.Method(http.MethodGet, "/enforcement", Handler(s.enforcement))
		r.Method(http.MethodPut, "/enforcement", Handler(s.setEnforcementMode))
		r.Method(http.MethodGet, "/device", Handler(s.device))
		r.Method(http.MethodGet, "/ledger", Handler(s.ledger))
	})
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if !s.Ready() {
		_ = WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
