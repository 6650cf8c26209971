// Package persistence keeps the tracked city list in durable storage.
// Saving is best-effort: storage failures are logged and never reach callers.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/logger"
)

// StorageKey is the single record the city list lives under.
const StorageKey = "weather-app-cities"

// ErrKeyNotFound is returned by KV.Get when nothing is stored under the key.
var ErrKeyNotFound = errors.New("key not found")

// KV is a minimal durable key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Bridge serializes the city registry to a KV backend.
type Bridge struct {
	kv      KV
	key     string
	timeout time.Duration
}

// NewBridge returns a bridge writing under StorageKey.
func NewBridge(kv KV) *Bridge {
	return &Bridge{kv: kv, key: StorageKey, timeout: 5 * time.Second}
}

// Save writes list as a JSON array. Errors are logged and swallowed.
func (b *Bridge) Save(list []cities.City) {
	log := logger.Named("persistence")

	if list == nil {
		list = []cities.City{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode cities")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.kv.Set(ctx, b.key, data); err != nil {
		log.Error().Err(err).Int("cities", len(list)).Msg("failed to save cities")
		return
	}
	log.Debug().Int("cities", len(list)).Msg("saved cities")
}

// Load reads the stored list. It returns an empty list when the record is
// absent, malformed or unreadable.
func (b *Bridge) Load() []cities.City {
	log := logger.Named("persistence")

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	data, err := b.kv.Get(ctx, b.key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			log.Error().Err(err).Msg("failed to load cities")
		}
		return []cities.City{}
	}

	var list []cities.City
	if err := json.Unmarshal(data, &list); err != nil {
		log.Warn().Err(err).Msg("stored cities are malformed, starting empty")
		return []cities.City{}
	}
	if list == nil {
		return []cities.City{}
	}

	log.Info().Int("cities", len(list)).Msg("loaded cities")
	return list
}

// Subscriber is anything that reports registry changes.
type Subscriber interface {
	Subscribe(l cities.Listener)
}

// Attach saves the full list after every registry change.
func (b *Bridge) Attach(r Subscriber) {
	r.Subscribe(func(ev cities.Event) {
		b.Save(ev.Cities)
	})
}
