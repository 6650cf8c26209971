package weather

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/logger"
	"github.com/i474232898/city-weather/internal/metrics"
)

const (
	kindCurrent = "current"
	kindHourly  = "hourly"
)

// CityView is a tracked city joined with its cached weather.
type CityView struct {
	City  cities.City `json:"city"`
	Entry Entry       `json:"weather"`
}

// Loader supplies the persisted city list at startup.
type Loader interface {
	Load() []cities.City
}

// Service ties the registry, the cache and the gateway together: registry
// changes trigger fetches and evictions, and fetch results land in the cache.
type Service struct {
	registry Registry
	cache    Cache
	gateway  Gateway
	metrics  *metrics.Metrics

	fetchTimeout time.Duration
	inflight     sync.WaitGroup
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithFetchTimeout bounds each background fetch.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithServiceMetrics records fetch outcomes and registry size.
func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service and subscribes it to registry changes.
func NewService(registry Registry, cache Cache, gateway Gateway, opts ...ServiceOption) *Service {
	s := &Service{
		registry:     registry,
		cache:        cache,
		gateway:      gateway,
		fetchTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	registry.Subscribe(s.onRegistryEvent)
	return s
}

func (s *Service) onRegistryEvent(ev cities.Event) {
	s.metrics.SetTrackedCities(len(ev.Cities))

	switch ev.Kind {
	case cities.EventAdded:
		s.startFetch(ev.CityID)
	case cities.EventRemoved:
		s.cache.Evict(ev.CityID)
	case cities.EventReplaced:
		for _, c := range ev.Cities {
			s.startFetch(c.ID)
		}
	}
}

// Rehydrate restores the persisted city list. An empty list leaves the
// registry untouched and triggers no fetches.
func (s *Service) Rehydrate(l Loader) int {
	list := l.Load()
	if len(list) == 0 {
		return 0
	}
	s.registry.ReplaceAll(list)
	return len(list)
}

// AddCity geocodes name, tracks the resulting city and starts a current
// weather fetch for it. added is false when the city was already tracked.
func (s *Service) AddCity(ctx context.Context, name string) (city cities.City, added bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return cities.City{}, false, ErrEmptyName
	}

	geo, err := s.gateway.ResolveCoordinates(ctx, name)
	if err != nil {
		return cities.City{}, false, err
	}

	city = cities.City{
		ID:      cities.MakeID(geo.Name, geo.Country),
		Name:    geo.Name,
		Country: geo.Country,
		Lat:     geo.Lat,
		Lon:     geo.Lon,
	}

	added = s.registry.Add(city)
	if !added {
		// already tracked; refresh it the way a fresh add would
		s.startFetch(city.ID)
		city, _ = s.registry.Get(city.ID)
	}

	logger.Named("weather").Info().Str("city_id", city.ID).Bool("added", added).Msg("city added")
	return city, added, nil
}

// RemoveCity stops tracking id. Removing an unknown city is a no-op.
func (s *Service) RemoveCity(id string) bool {
	return s.registry.Remove(id)
}

// Refresh starts a background current-weather fetch for a tracked city.
func (s *Service) Refresh(id string) error {
	if _, ok := s.registry.Get(id); !ok {
		return ErrUnknownCity
	}
	s.startFetch(id)
	return nil
}

// RefreshForecast starts a background hourly forecast fetch for a tracked city.
func (s *Service) RefreshForecast(id string) error {
	city, ok := s.registry.Get(id)
	if !ok {
		return ErrUnknownCity
	}

	gen := s.cache.BeginHourly(id)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		_ = s.fetchHourly(ctx, city, gen)
	}()
	return nil
}

// FetchWeather fetches current conditions for a tracked city and settles
// the cache, returning the gateway error if there was one.
func (s *Service) FetchWeather(ctx context.Context, id string) error {
	if _, ok := s.registry.Get(id); !ok {
		return ErrUnknownCity
	}
	return s.fetchCurrent(ctx, id, s.cache.BeginFetch(id))
}

// FetchForecast fetches the hourly forecast for a tracked city and settles
// the cache.
func (s *Service) FetchForecast(ctx context.Context, id string) error {
	city, ok := s.registry.Get(id)
	if !ok {
		return ErrUnknownCity
	}
	return s.fetchHourly(ctx, city, s.cache.BeginHourly(id))
}

// ClearError acknowledges the errors shown for id.
func (s *Service) ClearError(id string) {
	s.cache.ClearError(id)
}

// Cities lists tracked cities in registry order with their cached weather.
// Cache entries for untracked cities are never listed.
func (s *Service) Cities() []CityView {
	list := s.registry.List()
	out := make([]CityView, 0, len(list))
	for _, c := range list {
		out = append(out, CityView{City: c, Entry: s.cache.Get(c.ID)})
	}
	return out
}

// City returns one tracked city with its cached weather.
func (s *Service) City(id string) (CityView, bool) {
	c, ok := s.registry.Get(id)
	if !ok {
		return CityView{}, false
	}
	return CityView{City: c, Entry: s.cache.Get(id)}, true
}

// Wait blocks until every background fetch has settled.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) startFetch(id string) {
	gen := s.cache.BeginFetch(id)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		_ = s.fetchCurrent(ctx, id, gen)
	}()
}

func (s *Service) fetchCurrent(ctx context.Context, id string, gen Generation) error {
	log := logger.Named("weather")

	snap, err := s.gateway.FetchCurrent(ctx, id)
	if err != nil {
		applied := s.cache.FailFetch(id, gen, Message(err))
		s.metrics.Fetch(kindCurrent, settleOutcome(applied, err))
		log.Warn().Err(err).Str("city_id", id).Bool("applied", applied).Msg("weather fetch failed")
		return err
	}

	applied := s.cache.CompleteFetch(id, gen, snap)
	s.metrics.Fetch(kindCurrent, settleOutcome(applied, nil))
	if !applied {
		log.Debug().Str("city_id", id).Msg("discarded superseded weather result")
	}
	return nil
}

func (s *Service) fetchHourly(ctx context.Context, city cities.City, gen Generation) error {
	log := logger.Named("weather")

	points, err := s.gateway.FetchHourly(ctx, city.Lat, city.Lon)
	if err != nil {
		applied := s.cache.FailHourly(city.ID, gen, Message(err))
		s.metrics.Fetch(kindHourly, settleOutcome(applied, err))
		log.Warn().Err(err).Str("city_id", city.ID).Bool("applied", applied).Msg("forecast fetch failed")
		return err
	}

	applied := s.cache.CompleteHourly(city.ID, gen, points)
	s.metrics.Fetch(kindHourly, settleOutcome(applied, nil))
	if !applied {
		log.Debug().Str("city_id", city.ID).Msg("discarded superseded forecast result")
	}
	return nil
}

func settleOutcome(applied bool, err error) string {
	switch {
	case !applied:
		return metrics.OutcomeStale
	case err != nil:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeOK
	}
}
