package store

import (
	"slices"
	"sync"

	"github.com/i474232898/city-weather/internal/events"
	"github.com/i474232898/city-weather/internal/weather"
)

// Notifier receives fetch lifecycle notifications.
type Notifier interface {
	Publish(msg events.Message)
}

// cityState holds everything cached for one city.
type cityState struct {
	snapshot *weather.WeatherSnapshot
	forecast []weather.HourlyPoint

	status    weather.FetchStatus
	gen       weather.Generation
	hourly    weather.FetchStatus
	hourlyGen weather.Generation
}

// MemoryStore is a concurrency-safe in-memory weather cache keyed by city ID.
type MemoryStore struct {
	mu sync.RWMutex

	// key: city ID
	data map[string]*cityState

	// seq hands out generations; it never repeats, even across evictions.
	seq weather.Generation

	notifier Notifier
}

var _ weather.Cache = (*MemoryStore)(nil)

// NewMemoryStore creates an empty cache. notifier may be nil.
func NewMemoryStore(notifier Notifier) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]*cityState),
		notifier: notifier,
	}
}

// BeginFetch marks the current-weather fetch for cityID as in flight and
// returns the generation the caller must settle with.
func (s *MemoryStore) BeginFetch(cityID string) weather.Generation {
	s.mu.Lock()
	st := s.stateLocked(cityID)
	s.seq++
	st.gen = s.seq
	st.status = weather.FetchStatus{InFlight: true}
	gen := st.gen
	s.mu.Unlock()

	s.publish(events.KindFetchStarted, cityID, nil)
	return gen
}

// CompleteFetch stores snapshot if gen is still the newest fetch for cityID.
// The previous snapshot is overwritten, never merged.
func (s *MemoryStore) CompleteFetch(cityID string, gen weather.Generation, snapshot weather.WeatherSnapshot) bool {
	s.mu.Lock()
	st, ok := s.data[cityID]
	if !ok || st.gen != gen {
		s.mu.Unlock()
		return false
	}
	st.snapshot = &snapshot
	st.status = weather.FetchStatus{}
	s.mu.Unlock()

	s.publish(events.KindFetchCompleted, cityID, snapshot)
	return true
}

// FailFetch records message as the last error for cityID. Any previous
// snapshot is kept.
func (s *MemoryStore) FailFetch(cityID string, gen weather.Generation, message string) bool {
	s.mu.Lock()
	st, ok := s.data[cityID]
	if !ok || st.gen != gen {
		s.mu.Unlock()
		return false
	}
	st.status = weather.FetchStatus{LastError: &message}
	s.mu.Unlock()

	s.publish(events.KindFetchFailed, cityID, map[string]string{"error": message})
	return true
}

// BeginHourly is BeginFetch for the hourly forecast slot.
func (s *MemoryStore) BeginHourly(cityID string) weather.Generation {
	s.mu.Lock()
	st := s.stateLocked(cityID)
	s.seq++
	st.hourlyGen = s.seq
	st.hourly = weather.FetchStatus{InFlight: true}
	gen := st.hourlyGen
	s.mu.Unlock()

	s.publish(events.KindForecastStarted, cityID, nil)
	return gen
}

// CompleteHourly replaces the whole forecast sequence for cityID.
func (s *MemoryStore) CompleteHourly(cityID string, gen weather.Generation, points []weather.HourlyPoint) bool {
	s.mu.Lock()
	st, ok := s.data[cityID]
	if !ok || st.hourlyGen != gen {
		s.mu.Unlock()
		return false
	}
	st.forecast = slices.Clone(points)
	st.hourly = weather.FetchStatus{}
	s.mu.Unlock()

	s.publish(events.KindForecastCompleted, cityID, points)
	return true
}

// FailHourly records the hourly failure in its own slot; the forecast
// sequence is left alone.
func (s *MemoryStore) FailHourly(cityID string, gen weather.Generation, message string) bool {
	s.mu.Lock()
	st, ok := s.data[cityID]
	if !ok || st.hourlyGen != gen {
		s.mu.Unlock()
		return false
	}
	st.hourly = weather.FetchStatus{LastError: &message}
	s.mu.Unlock()

	s.publish(events.KindForecastFailed, cityID, map[string]string{"error": message})
	return true
}

// ClearError acknowledges both error slots for cityID.
func (s *MemoryStore) ClearError(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.data[cityID]; ok {
		st.status.LastError = nil
		st.hourly.LastError = nil
	}
}

// Evict drops all cached state for cityID. Fetches still in flight for it
// will be discarded when they settle.
func (s *MemoryStore) Evict(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, cityID)
}

// Get returns a copy of the cached entry for cityID.
func (s *MemoryStore) Get(cityID string) weather.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[cityID]
	if !ok {
		return weather.Entry{}
	}

	e := weather.Entry{
		Forecast:     slices.Clone(st.forecast),
		Status:       copyStatus(st.status),
		HourlyStatus: copyStatus(st.hourly),
	}
	if st.snapshot != nil {
		snap := *st.snapshot
		e.Snapshot = &snap
	}
	return e
}

// Keys returns the city IDs that currently have cached state.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Prune evicts every entry whose city ID keep rejects and returns how many
// were removed.
func (s *MemoryStore) Prune(keep func(cityID string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.data {
		if !keep(id) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) stateLocked(cityID string) *cityState {
	st, ok := s.data[cityID]
	if !ok {
		st = &cityState{}
		s.data[cityID] = st
	}
	return st
}

func (s *MemoryStore) publish(kind events.Kind, cityID string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(events.Message{Type: kind, CityID: cityID, Data: data})
}

func copyStatus(fs weather.FetchStatus) weather.FetchStatus {
	if fs.LastError != nil {
		msg := *fs.LastError
		fs.LastError = &msg
	}
	return fs
}
