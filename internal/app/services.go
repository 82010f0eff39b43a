package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/classify"
	"github.com/dokzlo13/lumina/internal/config"
	"github.com/dokzlo13/lumina/internal/db"
	"github.com/dokzlo13/lumina/internal/eventbus"
	"github.com/dokzlo13/lumina/internal/geo"
	"github.com/dokzlo13/lumina/internal/ledger"
	"github.com/dokzlo13/lumina/internal/resolver"
	"github.com/dokzlo13/lumina/internal/script"
	"github.com/dokzlo13/lumina/internal/store"
	"github.com/dokzlo13/lumina/internal/wled"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Rules and their evaluation
	Store       *store.Store
	GeoCalc     *geo.Calculator
	Coordinates *geo.Coordinates
	Location    *time.Location
	Resolver    *resolver.Resolver
	Classifier  *classify.Classifier
	Cache       classify.Cache

	// Controller, nil when no transport is configured
	Device wled.Device

	// High-level services
	Sync    *SyncService
	Enforce *EnforceService
	API     *APIService

	redis   *redis.Client
	started bool
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	loc, err := time.LoadLocation(cfg.Geo.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Geo.Timezone, err)
	}
	s.Location = loc

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Rule store: local-only keeps everything in memory
	if cfg.Store.LocalOnly {
		s.Store = store.New("", nil)
		log.Warn().Msg("Rule store is local-only, changes will not be persisted")
	} else {
		s.Store = store.New(cfg.Store.UserID, store.NewSQLiteRemote(database.DB))
	}

	s.GeoCalc = geo.NewCalculator()
	s.Coordinates = resolveCoordinates(cfg.Geo, geo.NewCache(database.DB))
	s.Resolver = resolver.New(s.GeoCalc)
	s.Classifier = classify.New(cfg.Classifier, s.Store)

	if err := s.initCache(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.initDevice(); err != nil {
		s.Close()
		return nil, err
	}

	s.Sync, err = NewSyncService(cfg, s.Store, s.Device, s.Ledger, s.Bus, loc)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Enforce, err = NewEnforceService(cfg, s.Device, s.Store, s.Resolver, s.Coordinates, s.Ledger, s.Bus, loc)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.API = NewAPIService(cfg, s)
	return s, nil
}

// resolveCoordinates prefers configured lat/lon and falls back to a one-off
// geocoder lookup of the configured place name.
func resolveCoordinates(cfg config.GeoConfig, cache *geo.Cache) *geo.Coordinates {
	if cfg.HasCoordinates() {
		c := geo.Coordinates{Lat: cfg.Lat, Lon: cfg.Lon}
		if !c.Valid() {
			log.Warn().Str("coords", c.String()).Msg("Configured coordinates out of range, solar triggers disabled")
			return nil
		}
		return &c
	}
	if cfg.Name == "" {
		log.Warn().Msg("No location configured, solar triggers will never be active")
		return nil
	}

	log.Info().Str("name", cfg.Name).Msg("No lat/lon configured, looking up location")
	timeout := cfg.HTTPTimeout.Duration()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	loc, err := geo.NewGeocoder(cfg.GeocoderURL, timeout, cache).Lookup(ctx, cfg.Name)
	if err != nil {
		log.Warn().Err(err).Str("name", cfg.Name).Msg("Geocoding failed, solar triggers will never be active")
		return nil
	}
	log.Info().Str("name", loc.Name).Str("coords", loc.Coordinates.String()).Msg("Location resolved")
	return &loc.Coordinates
}

func (s *Services) initCache() error {
	ttl := s.cfg.Cache.TTL.Duration()
	switch s.cfg.Cache.Backend {
	case "memory":
		s.Cache = classify.NewMemoryCache(ttl)
	case "sqlite":
		s.Cache = classify.NewSQLiteCache(s.DB.DB, ttl)
	case "redis":
		rc := s.cfg.Cache.Redis
		s.redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
		}
		s.Cache = classify.NewRedisCache(s.redis, rc.Prefix, ttl)
		log.Info().Str("addr", rc.Addr).Msg("Classification cache uses redis")
	default:
		return fmt.Errorf("unknown cache backend: %q", s.cfg.Cache.Backend)
	}
	return nil
}

func (s *Services) initDevice() error {
	dc := s.cfg.Device
	switch dc.Transport {
	case "":
		log.Warn().Msg("No device transport configured, sync and enforcement are unavailable")
	case "http":
		if dc.Address == "" {
			return errors.New("device.address is required for http transport")
		}
		s.Device = wled.NewHTTPClient(dc.Address, dc.Timeout.Duration(), dc.RateLimitRPS)
		log.Info().Str("address", dc.Address).Msg("Using WLED HTTP transport")
	case "mqtt":
		client, err := wled.DialMQTT(wled.MQTTConfig{
			Broker:          dc.MQTT.Broker,
			ClientID:        dc.MQTT.ClientID,
			Username:        dc.MQTT.Username,
			Password:        dc.MQTT.Password,
			DeviceID:        dc.MQTT.DeviceID,
			ResponseTimeout: dc.MQTT.ResponseTimeout.Duration(),
		})
		if err != nil {
			return err
		}
		s.Device = client
	default:
		return fmt.Errorf("unknown device transport: %q", dc.Transport)
	}
	return nil
}

// LoadScript replaces the rule set with the rules declared by the
// bootstrap script. A missing file is not an error.
func (s *Services) LoadScript(ctx context.Context) error {
	path := s.cfg.Script
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("No rules script, keeping stored rules")
		return nil
	}
	rs, err := script.LoadFile(path)
	if err != nil {
		return fmt.Errorf("rules script %s: %w", path, err)
	}
	if _, err := s.Store.ReplaceAll(ctx, rs); err != nil {
		return fmt.Errorf("rules script %s: %w", path, err)
	}
	return nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Store.Load(ctx); err != nil {
		return err
	}
	if err := s.LoadScript(ctx); err != nil {
		return err
	}

	s.Sync.Start(ctx)
	s.Enforce.Start(ctx)
	s.API.Start(ctx)
	s.started = true
	go runCleanup(ctx, s.Ledger, s.Cache, s.cfg.Ledger)

	return nil
}

// Stop gracefully stops all services. The context passed to Start must be
// cancelled first; Stop waits for the enforcement loop and the API server
// before releasing the database.
func (s *Services) Stop() error {
	if s.Sync != nil {
		s.Sync.Stop()
	}

	if s.started {
		timeout := time.NewTimer(s.cfg.ShutdownTimeout.Duration())
		defer timeout.Stop()
	wait:
		for _, svc := range []struct {
			name string
			done <-chan struct{}
		}{
			{"enforcement", s.Enforce.Done()},
			{"api", s.API.Done()},
		} {
			select {
			case <-svc.done:
			case <-timeout.C:
				log.Warn().Str("service", svc.name).Msg("Shutdown timeout, closing resources anyway")
				break wait
			}
		}
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if c, ok := s.Device.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close device transport")
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
