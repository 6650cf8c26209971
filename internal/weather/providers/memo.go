package providers

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/weather"
)

// MemoGeocoder remembers successful lookups for the life of the process.
// Entries are keyed by the lowercased name only, so same-named cities in
// different countries share one entry.
type MemoGeocoder struct {
	next    weather.Geocoder
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]weather.GeoResult

	group singleflight.Group
}

// NewMemoGeocoder wraps next with an unbounded name memo.
func NewMemoGeocoder(next weather.Geocoder, m *metrics.Metrics) *MemoGeocoder {
	if memo, ok := next.(*MemoGeocoder); ok {
		return memo
	}
	return &MemoGeocoder{
		next:    next,
		metrics: m,
		entries: make(map[string]weather.GeoResult),
	}
}

// ResolveCoordinates serves from the memo or asks the wrapped geocoder.
// Concurrent misses for the same key share one upstream lookup.
func (m *MemoGeocoder) ResolveCoordinates(ctx context.Context, name string) (weather.GeoResult, error) {
	key := strings.ToLower(name)

	m.mu.RLock()
	res, ok := m.entries[key]
	m.mu.RUnlock()
	m.metrics.MemoLookup(ok)
	if ok {
		return res, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.RLock()
		res, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			return res, nil
		}

		res, err := m.next.ResolveCoordinates(ctx, name)
		if err != nil {
			return weather.GeoResult{}, err
		}
		m.mu.Lock()
		m.entries[key] = res
		m.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return weather.GeoResult{}, err
	}
	return v.(weather.GeoResult), nil
}

// Len returns the number of memoized names.
func (m *MemoGeocoder) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
