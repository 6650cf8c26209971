package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/events"
	"github.com/i474232898/city-weather/internal/weather"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (n *recordingNotifier) Publish(msg events.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) kinds() []events.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Kind, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Type)
	}
	return out
}

func snapshot(cityID string, temp int) weather.WeatherSnapshot {
	return weather.WeatherSnapshot{
		CityID:      cityID,
		Temp:        temp,
		FeelsLike:   temp - 1,
		Humidity:    60,
		Pressure:    1012,
		Description: "clear sky",
		Icon:        "01d",
		WindSpeed:   3.1,
		Visibility:  10,
		LastUpdated: time.Unix(1700000000, 0),
	}
}

func TestGetUnknownCityIsEmpty(t *testing.T) {
	s := NewMemoryStore(nil)

	e := s.Get("Paris,FR")
	assert.Nil(t, e.Snapshot)
	assert.Nil(t, e.Forecast)
	assert.False(t, e.Status.InFlight)
	assert.Nil(t, e.Status.LastError)
}

func TestBeginCompleteFetch(t *testing.T) {
	s := NewMemoryStore(nil)

	gen := s.BeginFetch("Paris,FR")
	assert.True(t, s.Get("Paris,FR").Status.InFlight)

	snap := snapshot("Paris,FR", 20)
	require.True(t, s.CompleteFetch("Paris,FR", gen, snap))

	e := s.Get("Paris,FR")
	assert.False(t, e.Status.InFlight)
	assert.Nil(t, e.Status.LastError)
	require.NotNil(t, e.Snapshot)
	assert.Equal(t, snap, *e.Snapshot)
}

func TestFailFetchKeepsPreviousSnapshot(t *testing.T) {
	s := NewMemoryStore(nil)
	snap := snapshot("Paris,FR", 20)
	s.CompleteFetch("Paris,FR", s.BeginFetch("Paris,FR"), snap)

	gen := s.BeginFetch("Paris,FR")
	require.True(t, s.FailFetch("Paris,FR", gen, "boom"))

	e := s.Get("Paris,FR")
	assert.False(t, e.Status.InFlight)
	require.NotNil(t, e.Status.LastError)
	assert.Equal(t, "boom", *e.Status.LastError)
	require.NotNil(t, e.Snapshot)
	assert.Equal(t, snap, *e.Snapshot)
}

func TestBeginFetchClearsLastError(t *testing.T) {
	s := NewMemoryStore(nil)
	s.FailFetch("Kyiv,UA", s.BeginFetch("Kyiv,UA"), "boom")

	s.BeginFetch("Kyiv,UA")
	e := s.Get("Kyiv,UA")
	assert.True(t, e.Status.InFlight)
	assert.Nil(t, e.Status.LastError)
}

func TestStaleCompletionIsDropped(t *testing.T) {
	s := NewMemoryStore(nil)

	first := s.BeginFetch("Paris,FR")
	second := s.BeginFetch("Paris,FR")

	fresh := snapshot("Paris,FR", 21)
	require.True(t, s.CompleteFetch("Paris,FR", second, fresh))

	// the slower, older request lands afterwards
	assert.False(t, s.CompleteFetch("Paris,FR", first, snapshot("Paris,FR", 5)))
	assert.False(t, s.FailFetch("Paris,FR", first, "late"))

	e := s.Get("Paris,FR")
	assert.Equal(t, 21, e.Snapshot.Temp)
	assert.Nil(t, e.Status.LastError)
}

func TestOlderCompletionDoesNotSettleNewerFetch(t *testing.T) {
	s := NewMemoryStore(nil)

	first := s.BeginFetch("Paris,FR")
	s.BeginFetch("Paris,FR")

	assert.False(t, s.CompleteFetch("Paris,FR", first, snapshot("Paris,FR", 5)))
	assert.True(t, s.Get("Paris,FR").Status.InFlight)
}

func TestEvictDropsLateCompletion(t *testing.T) {
	s := NewMemoryStore(nil)
	gen := s.BeginFetch("Paris,FR")
	hgen := s.BeginHourly("Paris,FR")

	s.Evict("Paris,FR")
	assert.False(t, s.CompleteFetch("Paris,FR", gen, snapshot("Paris,FR", 20)))
	assert.False(t, s.CompleteHourly("Paris,FR", hgen, []weather.HourlyPoint{{Time: 1}}))
	assert.Empty(t, s.Keys())
}

func TestGenerationsDoNotRepeatAfterEvict(t *testing.T) {
	s := NewMemoryStore(nil)
	old := s.BeginFetch("Paris,FR")
	s.Evict("Paris,FR")

	fresh := s.BeginFetch("Paris,FR")
	assert.NotEqual(t, old, fresh)
	assert.False(t, s.CompleteFetch("Paris,FR", old, snapshot("Paris,FR", 1)))
}

func TestHourlyReplacedWholesale(t *testing.T) {
	s := NewMemoryStore(nil)

	first := []weather.HourlyPoint{{Time: 1, Temp: 1, Icon: "a"}, {Time: 2, Temp: 2, Icon: "b"}}
	s.CompleteHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), first)

	second := []weather.HourlyPoint{{Time: 3, Temp: 3, Icon: "c"}}
	s.CompleteHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), second)

	assert.Equal(t, second, s.Get("Oslo,NO").Forecast)
}

func TestFailHourlyUsesItsOwnSlot(t *testing.T) {
	s := NewMemoryStore(nil)
	points := []weather.HourlyPoint{{Time: 1, Temp: 1, Icon: "a"}}
	s.CompleteHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), points)
	s.CompleteFetch("Oslo,NO", s.BeginFetch("Oslo,NO"), snapshot("Oslo,NO", 3))

	require.True(t, s.FailHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), "forecast down"))

	e := s.Get("Oslo,NO")
	assert.Equal(t, points, e.Forecast)
	require.NotNil(t, e.HourlyStatus.LastError)
	assert.Equal(t, "forecast down", *e.HourlyStatus.LastError)
	assert.False(t, e.HourlyStatus.InFlight)
	assert.Nil(t, e.Status.LastError)
	assert.NotNil(t, e.Snapshot)
}

func TestClearError(t *testing.T) {
	s := NewMemoryStore(nil)
	s.FailFetch("Oslo,NO", s.BeginFetch("Oslo,NO"), "a")
	s.FailHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), "b")

	s.ClearError("Oslo,NO")
	e := s.Get("Oslo,NO")
	assert.Nil(t, e.Status.LastError)
	assert.Nil(t, e.HourlyStatus.LastError)

	// unknown city is fine
	s.ClearError("Nowhere,XX")
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	s.CompleteHourly("Oslo,NO", s.BeginHourly("Oslo,NO"), []weather.HourlyPoint{{Temp: 1}})
	s.FailFetch("Oslo,NO", s.BeginFetch("Oslo,NO"), "boom")

	e := s.Get("Oslo,NO")
	e.Forecast[0].Temp = 99
	*e.Status.LastError = "mutated"

	again := s.Get("Oslo,NO")
	assert.Equal(t, 1, again.Forecast[0].Temp)
	assert.Equal(t, "boom", *again.Status.LastError)
}

func TestPrune(t *testing.T) {
	s := NewMemoryStore(nil)
	s.BeginFetch("Paris,FR")
	s.BeginFetch("Kyiv,UA")
	s.BeginHourly("Oslo,NO")

	removed := s.Prune(func(id string) bool { return id == "Kyiv,UA" })
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"Kyiv,UA"}, s.Keys())
}

func TestNotifications(t *testing.T) {
	n := &recordingNotifier{}
	s := NewMemoryStore(n)

	s.CompleteFetch("Paris,FR", s.BeginFetch("Paris,FR"), snapshot("Paris,FR", 20))
	s.FailFetch("Paris,FR", s.BeginFetch("Paris,FR"), "boom")
	s.FailHourly("Paris,FR", s.BeginHourly("Paris,FR"), "boom")

	// dropped completions stay silent
	s.CompleteFetch("Paris,FR", 0, snapshot("Paris,FR", 1))

	assert.Equal(t, []events.Kind{
		events.KindFetchStarted,
		events.KindFetchCompleted,
		events.KindFetchStarted,
		events.KindFetchFailed,
		events.KindForecastStarted,
		events.KindForecastFailed,
	}, n.kinds())
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gen := s.BeginFetch("Paris,FR")
			s.CompleteFetch("Paris,FR", gen, snapshot("Paris,FR", i))
			_ = s.Get("Paris,FR")
		}(i)
	}
	wg.Wait()

	assert.NotNil(t, s.Get("Paris,FR").Snapshot)
}
