package providers

import (
	"context"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i474232898/city-weather/internal/common"
	"github.com/i474232898/city-weather/internal/weather"
)

// geocoderMu serializes use of the geocoder package, which keeps its API key
// in a package variable.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves city names through the Google Geocoding API.
// Google returns only coordinates here, so Name is the title-cased query
// and Country is empty.
type GoogleGeocoder struct {
	apiKey func() string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogleGeocoder returns a geocoder that reads its key on every call.
func NewGoogleGeocoder(apiKey func() string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey, lookup: geocoder.Geocoding}
}

func (g *GoogleGeocoder) ResolveCoordinates(ctx context.Context, name string) (weather.GeoResult, error) {
	key := ""
	if g.apiKey != nil {
		key = g.apiKey()
	}
	if key == "" {
		return weather.GeoResult{}, weather.ErrConfig
	}
	if err := ctx.Err(); err != nil {
		return weather.GeoResult{}, weather.NewUpstreamError("", msgGeocodeFailed, err)
	}

	name = normalizeName(name)

	geocoderMu.Lock()
	geocoder.ApiKey = key
	loc, err := g.lookup(geocoder.Address{City: name})
	geocoderMu.Unlock()

	if err != nil {
		if common.ContainsAnyFold(err.Error(), "zero_results", "not found", "no results") {
			return weather.GeoResult{}, weather.ErrNotFound
		}
		return weather.GeoResult{}, weather.NewUpstreamError("", msgGeocodeFailed, err)
	}

	return weather.GeoResult{
		Name: name,
		Lat:  loc.Latitude,
		Lon:  loc.Longitude,
	}, nil
}

// normalizeName collapses whitespace and title-cases name so that spellings
// differing only in case map to the same city ID.
func normalizeName(name string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}
