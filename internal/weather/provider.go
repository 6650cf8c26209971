package weather

import (
	"context"

	"github.com/i474232898/city-weather/internal/cities"
)

// Geocoder resolves a city name to its best coordinate match.
type Geocoder interface {
	ResolveCoordinates(ctx context.Context, name string) (GeoResult, error)
}

// Gateway is the retrieval contract the dashboard service depends on.
type Gateway interface {
	Geocoder
	FetchCurrent(ctx context.Context, cityID string) (WeatherSnapshot, error)
	FetchHourly(ctx context.Context, lat, lon float64) ([]HourlyPoint, error)
}

// Cache is the per-city weather state the service writes fetch results into.
type Cache interface {
	BeginFetch(cityID string) Generation
	CompleteFetch(cityID string, gen Generation, snapshot WeatherSnapshot) bool
	FailFetch(cityID string, gen Generation, message string) bool

	BeginHourly(cityID string) Generation
	CompleteHourly(cityID string, gen Generation, points []HourlyPoint) bool
	FailHourly(cityID string, gen Generation, message string) bool

	ClearError(cityID string)
	Evict(cityID string)
	Get(cityID string) Entry
}

// Registry is the subset of the city registry the service needs.
type Registry interface {
	Add(city cities.City) bool
	Remove(id string) bool
	ReplaceAll(list []cities.City)
	List() []cities.City
	Get(id string) (cities.City, bool)
	Subscribe(l cities.Listener)
}
