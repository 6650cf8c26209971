package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/weather"
)

const (
	defaultDataURL = "https://api.openweathermap.org/data/2.5"
	defaultGeoURL  = "https://api.openweathermap.org/geo/1.0/direct"

	endpointGeocode  = "geocode"
	endpointWeather  = "weather"
	endpointForecast = "forecast"

	msgGeocodeFailed  = "Failed to find city"
	msgWeatherFailed  = "Failed to fetch weather data"
	msgForecastFailed = "Failed to fetch hourly forecast"
)

// OpenWeatherGateway resolves city names and fetches current conditions
// and hourly forecasts from OpenWeatherMap.
type OpenWeatherGateway struct {
	apiKey   func() string
	dataURL  string
	geoURL   string
	httpCfg  HTTPClientConfig
	circuits map[string]*gobreaker.CircuitBreaker
	geocoder weather.Geocoder
	metrics  *metrics.Metrics
	now      func() time.Time
}

var _ weather.Gateway = (*OpenWeatherGateway)(nil)

// Option customizes an OpenWeatherGateway.
type Option func(*OpenWeatherGateway)

// WithDataURL overrides the base URL for /weather and /forecast.
func WithDataURL(u string) Option {
	return func(g *OpenWeatherGateway) { g.dataURL = u }
}

// WithGeoURL overrides the direct geocoding URL.
func WithGeoURL(u string) Option {
	return func(g *OpenWeatherGateway) { g.geoURL = u }
}

// WithGeocoder replaces the built-in geocoder. The gateway still wraps it
// in its name memo.
func WithGeocoder(gc weather.Geocoder) Option {
	return func(g *OpenWeatherGateway) { g.geocoder = gc }
}

// WithBackoff enables retries for retryable failures.
func WithBackoff(b BackoffConfig) Option {
	return func(g *OpenWeatherGateway) { g.httpCfg.Backoff = b }
}

// WithMetrics records upstream calls and memo lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *OpenWeatherGateway) { g.metrics = m }
}

// WithClock overrides the LastUpdated source.
func WithClock(now func() time.Time) Option {
	return func(g *OpenWeatherGateway) { g.now = now }
}

// NewOpenWeatherGateway builds a gateway. apiKey is consulted on every call
// so a missing credential surfaces as weather.ErrConfig rather than at startup.
func NewOpenWeatherGateway(client *http.Client, apiKey func() string, opts ...Option) *OpenWeatherGateway {
	g := &OpenWeatherGateway{
		apiKey:  apiKey,
		dataURL: defaultDataURL,
		geoURL:  defaultGeoURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      0,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuits: map[string]*gobreaker.CircuitBreaker{
			endpointGeocode:  newCircuitBreaker("openweather-geocode"),
			endpointWeather:  newCircuitBreaker("openweather-weather"),
			endpointForecast: newCircuitBreaker("openweather-forecast"),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.geocoder == nil {
		g.geocoder = directGeocoder{g}
	}
	g.geocoder = NewMemoGeocoder(g.geocoder, g.metrics)
	return g
}

func (g *OpenWeatherGateway) key() (string, error) {
	if g.apiKey == nil {
		return "", weather.ErrConfig
	}
	k := g.apiKey()
	if k == "" {
		return "", weather.ErrConfig
	}
	return k, nil
}

// ResolveCoordinates returns the best match for name, consulting the memo
// first.
func (g *OpenWeatherGateway) ResolveCoordinates(ctx context.Context, name string) (weather.GeoResult, error) {
	if _, err := g.key(); err != nil {
		return weather.GeoResult{}, err
	}
	return g.geocoder.ResolveCoordinates(ctx, name)
}

// FetchCurrent re-geocodes the name part of cityID and fetches current
// conditions for it.
func (g *OpenWeatherGateway) FetchCurrent(ctx context.Context, cityID string) (weather.WeatherSnapshot, error) {
	key, err := g.key()
	if err != nil {
		return weather.WeatherSnapshot{}, err
	}

	name, _ := cities.SplitID(cityID)
	coords, err := g.geocoder.ResolveCoordinates(ctx, name)
	if err != nil {
		return weather.WeatherSnapshot{}, err
	}

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
			Pressure  float64 `json:"pressure"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Visibility float64 `json:"visibility"`
	}

	if err := g.getJSON(ctx, endpointWeather, g.dataURL+"/weather", coordValues(coords.Lat, coords.Lon, key), &payload); err != nil {
		return weather.WeatherSnapshot{}, weather.NewUpstreamError(upstreamMessage(err), msgWeatherFailed, err)
	}
	if len(payload.Weather) == 0 {
		return weather.WeatherSnapshot{}, weather.NewUpstreamError("", msgWeatherFailed, fmt.Errorf("weather: empty conditions list"))
	}

	return weather.WeatherSnapshot{
		CityID:      cityID,
		Temp:        roundHalfUp(payload.Main.Temp),
		FeelsLike:   roundHalfUp(payload.Main.FeelsLike),
		Humidity:    roundHalfUp(payload.Main.Humidity),
		Pressure:    roundHalfUp(payload.Main.Pressure),
		Description: payload.Weather[0].Description,
		Icon:        payload.Weather[0].Icon,
		WindSpeed:   payload.Wind.Speed,
		Visibility:  payload.Visibility / 1000,
		LastUpdated: g.now(),
	}, nil
}

// FetchHourly returns the first MaxHourlyPoints forecast samples in the
// order the provider lists them.
func (g *OpenWeatherGateway) FetchHourly(ctx context.Context, lat, lon float64) ([]weather.HourlyPoint, error) {
	key, err := g.key()
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
			Weather []struct {
				Icon string `json:"icon"`
			} `json:"weather"`
		} `json:"list"`
	}

	if err := g.getJSON(ctx, endpointForecast, g.dataURL+"/forecast", coordValues(lat, lon, key), &payload); err != nil {
		return nil, weather.NewUpstreamError(upstreamMessage(err), msgForecastFailed, err)
	}

	items := payload.List
	if len(items) > weather.MaxHourlyPoints {
		items = items[:weather.MaxHourlyPoints]
	}

	points := make([]weather.HourlyPoint, 0, len(items))
	for _, it := range items {
		if len(it.Weather) == 0 {
			return nil, weather.NewUpstreamError("", msgForecastFailed, fmt.Errorf("forecast: entry %d has no conditions", it.Dt))
		}
		points = append(points, weather.HourlyPoint{
			Time: it.Dt * 1000,
			Temp: roundHalfUp(it.Main.Temp),
			Icon: it.Weather[0].Icon,
		})
	}
	return points, nil
}

// directGeocoder queries the provider's direct geocoding endpoint.
type directGeocoder struct {
	g *OpenWeatherGateway
}

func (d directGeocoder) ResolveCoordinates(ctx context.Context, name string) (weather.GeoResult, error) {
	key, err := d.g.key()
	if err != nil {
		return weather.GeoResult{}, err
	}

	values := url.Values{}
	values.Set("q", name)
	values.Set("limit", "1")
	values.Set("appid", key)

	var matches []weather.GeoResult
	if err := d.g.getJSON(ctx, endpointGeocode, d.g.geoURL, values, &matches); err != nil {
		return weather.GeoResult{}, weather.NewUpstreamError(upstreamMessage(err), msgGeocodeFailed, err)
	}
	if len(matches) == 0 {
		return weather.GeoResult{}, weather.ErrNotFound
	}
	return matches[0], nil
}

// getJSON performs a GET and decodes the body into out.
func (g *OpenWeatherGateway) getJSON(ctx context.Context, endpoint, base string, values url.Values, out any) (err error) {
	defer func() { g.metrics.UpstreamRequest(endpoint, err) }()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuits[endpoint], buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func coordValues(lat, lon float64, key string) url.Values {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("appid", key)
	values.Set("units", "metric")
	return values
}
