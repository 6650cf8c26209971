// Package events fans registry and cache notifications out to stream
// subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/logger"
)

// Kind names a notification.
type Kind string

const (
	KindConnected Kind = "connected"

	KindCityAdded      Kind = Kind(cities.EventAdded)
	KindCityRemoved    Kind = Kind(cities.EventRemoved)
	KindCitiesReplaced Kind = Kind(cities.EventReplaced)

	KindFetchStarted   Kind = "weather.fetch.started"
	KindFetchCompleted Kind = "weather.fetch.completed"
	KindFetchFailed    Kind = "weather.fetch.failed"

	KindForecastStarted   Kind = "forecast.fetch.started"
	KindForecastCompleted Kind = "forecast.fetch.completed"
	KindForecastFailed    Kind = "forecast.fetch.failed"
)

// Message is one notification.
type Message struct {
	ID        string    `json:"id"`
	Type      Kind      `json:"type"`
	CityID    string    `json:"cityId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const clientBuffer = 64

// Hub delivers messages to every subscribed client. Slow clients lose
// messages rather than block publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan Message
	closed  bool
}

// NewHub returns a hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan Message)}
}

// Subscribe registers clientID and returns its message channel. An existing
// subscription with the same ID is closed and replaced.
func (h *Hub) Subscribe(clientID string) <-chan Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, clientBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	if existing, ok := h.clients[clientID]; ok {
		close(existing)
	}
	h.clients[clientID] = ch

	logger.Named("events").Debug().Str("client_id", clientID).Int("clients", len(h.clients)).Msg("client subscribed")
	return ch
}

// Unsubscribe closes and forgets clientID's channel.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Close ends every subscription. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.closed = true
}

// ClientCount returns the number of subscribed clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish stamps msg and sends it to every client without blocking.
func (h *Hub) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			logger.Named("events").Warn().Str("client_id", id).Str("type", string(msg.Type)).Msg("client buffer full, dropping message")
		}
	}
}

// RegistryListener adapts registry events into hub messages.
func (h *Hub) RegistryListener() cities.Listener {
	return func(ev cities.Event) {
		msg := Message{Type: Kind(ev.Kind), CityID: ev.CityID}
		switch ev.Kind {
		case cities.EventAdded:
			msg.Data = ev.City
		case cities.EventReplaced:
			msg.Data = ev.Cities
		}
		h.Publish(msg)
	}
}

// WriteSSE encodes msg as one Server-Sent Events frame.
func WriteSSE(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Type, data)
	return err
}
