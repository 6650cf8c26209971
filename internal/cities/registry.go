package cities

import (
	"strings"
	"sync"
)

// City is a trackable location. ID is "<name>,<country>" and never changes
// for the lifetime of the value; replace a city rather than mutate it.
type City struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// MakeID builds the canonical city identifier.
func MakeID(name, country string) string {
	return name + "," + country
}

// SplitID splits a city identifier on its first comma.
func SplitID(id string) (name, country string) {
	name, country, _ = strings.Cut(id, ",")
	return name, country
}

// EventKind distinguishes registry notifications.
type EventKind string

const (
	EventAdded    EventKind = "city.added"
	EventRemoved  EventKind = "city.removed"
	EventReplaced EventKind = "cities.replaced"
)

// Event is delivered to listeners after every effective mutation.
// Cities always holds the full post-mutation list.
type Event struct {
	Kind   EventKind
	City   City   // set for EventAdded
	CityID string // set for EventAdded and EventRemoved
	Cities []City
}

// Listener reacts to registry changes.
type Listener func(Event)

// Registry is the ordered, id-unique set of tracked cities.
type Registry struct {
	// emit is held from a mutation through its notification, so listeners
	// observe events in mutation order.
	emit sync.Mutex

	mu        sync.RWMutex
	cities    []City
	listeners []Listener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers l for all future events. Listeners run synchronously
// on the mutating goroutine, one event at a time in mutation order. They may
// read the registry but must not mutate it.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Add inserts city unless a city with the same ID is already tracked.
// It reports whether the registry changed.
func (r *Registry) Add(city City) bool {
	r.emit.Lock()
	defer r.emit.Unlock()

	r.mu.Lock()
	for _, c := range r.cities {
		if c.ID == city.ID {
			r.mu.Unlock()
			return false
		}
	}
	r.cities = append(r.cities, city)
	ev := Event{Kind: EventAdded, City: city, CityID: city.ID, Cities: r.snapshotLocked()}
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, ev)
	return true
}

// Remove deletes the city with the given ID. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) bool {
	r.emit.Lock()
	defer r.emit.Unlock()

	r.mu.Lock()
	idx := -1
	for i, c := range r.cities {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	r.cities = append(r.cities[:idx:idx], r.cities[idx+1:]...)
	ev := Event{Kind: EventRemoved, CityID: id, Cities: r.snapshotLocked()}
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, ev)
	return true
}

// ReplaceAll swaps the whole set for cities, keeping their order, and emits
// a single EventReplaced.
func (r *Registry) ReplaceAll(cities []City) {
	r.emit.Lock()
	defer r.emit.Unlock()

	r.mu.Lock()
	r.cities = append([]City(nil), cities...)
	ev := Event{Kind: EventReplaced, Cities: r.snapshotLocked()}
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, ev)
}

// List returns the cities in insertion order.
func (r *Registry) List() []City {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get looks a city up by ID.
func (r *Registry) Get(id string) (City, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cities {
		if c.ID == id {
			return c, true
		}
	}
	return City{}, false
}

// Has reports whether id is tracked.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of tracked cities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cities)
}

func (r *Registry) snapshotLocked() []City {
	out := make([]City, len(r.cities))
	copy(out, r.cities)
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
