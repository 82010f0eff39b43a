package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultNominatimURL is the public OpenStreetMap geocoder.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Geocoder resolves place names through Nominatim, consulting the
// persistent cache first.
type Geocoder struct {
	client *resty.Client
	cache  *Cache
}

// NewGeocoder creates a geocoder. cache may be nil.
func NewGeocoder(baseURL string, timeout time.Duration, cache *Cache) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Lumina/1.0")
	return &Geocoder{client: client, cache: cache}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup resolves name to a location.
func (g *Geocoder) Lookup(ctx context.Context, name string) (*Location, error) {
	if g.cache != nil {
		if loc, ok := g.cache.Get(ctx, name); ok {
			return loc, nil
		}
	}

	var results []nominatimResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": name, "format": "json", "limit": "1"}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocoding failed with status %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("location not found: %s", name)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	loc := &Location{Name: results[0].DisplayName, Coordinates: Coordinates{Lat: lat, Lon: lon}}
	log.Info().
		Str("query", name).
		Str("resolved", loc.Name).
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("Location geocoded via Nominatim")

	if g.cache != nil {
		_ = g.cache.Put(ctx, name, loc)
	}
	return loc, nil
}
