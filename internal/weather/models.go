package weather

import (
	"encoding/json"
	"time"
)

// MaxHourlyPoints is the number of forecast samples kept per city.
const MaxHourlyPoints = 8

// GeoResult is the best geocoding match for a city name.
type GeoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// WeatherSnapshot is the current conditions for one city.
// Temperatures are whole degrees Celsius, visibility is in kilometers.
type WeatherSnapshot struct {
	CityID      string    `json:"cityId"`
	Temp        int       `json:"temp"`
	FeelsLike   int       `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	WindSpeed   float64   `json:"windSpeed"`
	Visibility  float64   `json:"visibility"`
	LastUpdated time.Time `json:"-"`
}

// MarshalJSON renders LastUpdated as unix milliseconds.
func (s WeatherSnapshot) MarshalJSON() ([]byte, error) {
	type alias WeatherSnapshot
	return json.Marshal(struct {
		alias
		LastUpdated int64 `json:"lastUpdated"`
	}{alias(s), s.LastUpdated.UnixMilli()})
}

// HourlyPoint is one forecast sample. Time is unix milliseconds.
type HourlyPoint struct {
	Time int64  `json:"time"`
	Temp int    `json:"temp"`
	Icon string `json:"icon"`
}

// FetchStatus tracks an in-flight request and the last failure for a city.
type FetchStatus struct {
	InFlight  bool    `json:"inFlight"`
	LastError *string `json:"lastError"`
}

// Entry is the cached state for one city. Snapshot and Forecast stay nil
// until the first successful fetch.
type Entry struct {
	Snapshot     *WeatherSnapshot `json:"snapshot,omitempty"`
	Forecast     []HourlyPoint    `json:"forecast,omitempty"`
	Status       FetchStatus      `json:"status"`
	HourlyStatus FetchStatus      `json:"hourlyStatus"`
}

// Generation identifies one fetch attempt for a city. Only the newest
// generation may settle the city's status.
type Generation uint64
