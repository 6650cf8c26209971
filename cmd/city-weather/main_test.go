package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/config"
)

// recordingTransport answers OpenWeatherMap paths with canned bodies and
// remembers every requested URL.
type recordingTransport struct {
	mu   sync.Mutex
	urls []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.urls = append(rt.urls, req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
	rt.mu.Unlock()

	code, body := http.StatusNotFound, `{"cod":"404","message":"unknown path"}`
	switch req.URL.Path {
	case "/geo/1.0/direct":
		code, body = http.StatusOK, `[{"name":"Kyiv","lat":50.45,"lon":30.52,"country":"UA"}]`
	case "/data/2.5/weather":
		code, body = http.StatusOK, `{"weather":[{"description":"clear sky","icon":"01d"}],"main":{"temp":10.4,"feels_like":9.6,"humidity":60,"pressure":1012},"visibility":8000,"wind":{"speed":2.1}}`
	}
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func TestGatewayFromDefaultConfigHitsDirectGeocoding(t *testing.T) {
	for _, k := range []string{"OPENWEATHER_BASE_URL", "OPENWEATHER_GEO_URL", "HTTP_TIMEOUT", "FETCH_TIMEOUT",
		"GATEWAY_MAX_RETRIES", "GEOCODER", "GOOGLE_GEOCODER_API_KEY", "STORAGE_BACKEND", "JANITOR_INTERVAL"} {
		t.Setenv(k, "")
	}
	t.Setenv("OPENWEATHER_API_KEY", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	rt := &recordingTransport{}
	gw := newGateway(cfg, &http.Client{Transport: rt}, nil)

	geo, err := gw.ResolveCoordinates(context.Background(), "Kyiv")
	require.NoError(t, err)
	assert.Equal(t, "UA", geo.Country)

	snap, err := gw.FetchCurrent(context.Background(), "Kyiv,UA")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Temp)

	assert.Equal(t, []string{
		"https://api.openweathermap.org/geo/1.0/direct",
		"https://api.openweathermap.org/data/2.5/weather",
	}, rt.urls)
}
