package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/api"
	"github.com/dokzlo13/lumina/internal/config"
)

// APIService serves the HTTP control surface.
type APIService struct {
	cfg     *config.Config
	handler http.Handler
	server  *http.Server
	ready   atomic.Bool
	done    chan struct{}
}

// NewAPIService builds the router over the application services.
func NewAPIService(cfg *config.Config, s *Services) *APIService {
	a := &APIService{cfg: cfg, done: make(chan struct{})}
	deps := api.Deps{
		Store:       s.Store,
		Classifier:  s.Classifier,
		Cache:       s.Cache,
		Resolver:    s.Resolver,
		Coordinates: s.Coordinates,
		Device:      s.Device,
		Syncer:      s.Sync,
		Bus:         s.Bus,
		Ledger:      s.Ledger,
		Now:         func() time.Time { return time.Now().In(s.Location) },
		Ready:       a.ready.Load,
	}
	if s.Device != nil {
		deps.Enforcer = s.Enforce.Machine
	}
	a.handler = api.NewRouter(deps)
	return a
}

// Start begins the API server if enabled.
func (a *APIService) Start(ctx context.Context) {
	a.ready.Store(true)
	if !a.cfg.API.Enabled {
		log.Info().Msg("HTTP API is disabled")
		close(a.done)
		return
	}
	go a.run(ctx)
}

// Done is closed once the server has shut down.
func (a *APIService) Done() <-chan struct{} {
	return a.done
}

func (a *APIService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", a.cfg.API.Host, a.cfg.API.Port)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting HTTP API server")

	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		a.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP API server shutdown error")
		}
	}()

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("HTTP API server error")
	}
	// Shutdown returns once in-flight handlers have finished.
	<-shutdown
	close(a.done)
}
