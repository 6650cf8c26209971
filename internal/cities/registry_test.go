package cities

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kyiv() City {
	return City{ID: "Kyiv,UA", Name: "Kyiv", Country: "UA", Lat: 50.45, Lon: 30.52}
}

func paris() City {
	return City{ID: "Paris,FR", Name: "Paris", Country: "FR", Lat: 48.85, Lon: 2.35}
}

func TestAddDeduplicatesByID(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Add(kyiv()))
	dup := kyiv()
	dup.Lat = 0
	assert.False(t, r.Add(dup))

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, kyiv(), list[0])
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Add(kyiv())

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	assert.False(t, r.Remove("Nowhere,XX"))
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, events)
}

func TestRemoveEmitsEvent(t *testing.T) {
	r := NewRegistry()
	r.Add(kyiv())
	r.Add(paris())

	var got Event
	r.Subscribe(func(ev Event) { got = ev })

	require.True(t, r.Remove("Kyiv,UA"))
	assert.Equal(t, EventRemoved, got.Kind)
	assert.Equal(t, "Kyiv,UA", got.CityID)
	assert.Equal(t, []City{paris()}, got.Cities)
	assert.False(t, r.Has("Kyiv,UA"))
}

func TestReplaceAllKeepsOrderAndEmitsOnce(t *testing.T) {
	r := NewRegistry()
	r.Add(kyiv())

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	input := []City{paris(), kyiv(), paris()}
	r.ReplaceAll(input)

	assert.Equal(t, input, r.List())
	require.Len(t, events, 1)
	assert.Equal(t, EventReplaced, events[0].Kind)
	assert.Equal(t, input, events[0].Cities)

	// the registry keeps its own copy
	input[0].Name = "changed"
	assert.Equal(t, "Paris", r.List()[0].Name)
}

func TestAddEmitsEventWithFullList(t *testing.T) {
	r := NewRegistry()
	var got []Event
	r.Subscribe(func(ev Event) { got = append(got, ev) })

	r.Add(kyiv())
	r.Add(kyiv())

	require.Len(t, got, 1)
	assert.Equal(t, EventAdded, got[0].Kind)
	assert.Equal(t, kyiv(), got[0].City)
	assert.Equal(t, []City{kyiv()}, got[0].Cities)
}

func TestListenerMayReadRegistry(t *testing.T) {
	r := NewRegistry()
	var seen int
	r.Subscribe(func(Event) { seen = r.Len() })

	r.Add(paris())
	assert.Equal(t, 1, seen)
}

func TestSplitID(t *testing.T) {
	name, country := SplitID("Paris,FR")
	assert.Equal(t, "Paris", name)
	assert.Equal(t, "FR", country)

	name, country = SplitID("Washington, D.C.,US")
	assert.Equal(t, "Washington", name)
	assert.Equal(t, " D.C.,US", country)

	name, country = SplitID("Atlantis")
	assert.Equal(t, "Atlantis", name)
	assert.Empty(t, country)

	assert.Equal(t, "Kyiv,UA", MakeID("Kyiv", "UA"))
}

func TestConcurrentMutationsNotifyInOrder(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	var sizes []int
	var last []City
	r.Subscribe(func(ev Event) {
		time.Sleep(time.Duration(len(ev.Cities)%3) * time.Millisecond)
		mu.Lock()
		sizes = append(sizes, len(ev.Cities))
		last = ev.Cities
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("City%d,XX", i)
			r.Add(City{ID: id, Name: fmt.Sprintf("City%d", i), Country: "XX"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, sizes)
	assert.Equal(t, r.List(), last)
}
