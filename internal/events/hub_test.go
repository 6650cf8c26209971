package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/cities"
)

func TestSubscribeAndPublish(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	assert.Equal(t, 2, h.ClientCount())

	h.Publish(Message{Type: KindFetchStarted, CityID: "Paris,FR"})

	for _, ch := range []<-chan Message{a, b} {
		msg := <-ch
		assert.Equal(t, KindFetchStarted, msg.Type)
		assert.Equal(t, "Paris,FR", msg.CityID)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestResubscribeClosesOldChannel(t *testing.T) {
	h := NewHub()
	old := h.Subscribe("a")
	h.Subscribe("a")

	_, open := <-old
	assert.False(t, open)
	assert.Equal(t, 1, h.ClientCount())
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("a")
	h.Unsubscribe("a")
	h.Unsubscribe("a")

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("slow")

	for i := 0; i < clientBuffer+10; i++ {
		h.Publish(Message{Type: KindFetchStarted})
	}
	assert.Len(t, ch, clientBuffer)
}

func TestRegistryListener(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("a")

	r := cities.NewRegistry()
	r.Subscribe(h.RegistryListener())

	kyiv := cities.City{ID: "Kyiv,UA", Name: "Kyiv", Country: "UA"}
	r.Add(kyiv)
	r.Remove("Kyiv,UA")
	r.ReplaceAll([]cities.City{kyiv})

	added := <-ch
	assert.Equal(t, KindCityAdded, added.Type)
	assert.Equal(t, "Kyiv,UA", added.CityID)
	assert.Equal(t, kyiv, added.Data)

	removed := <-ch
	assert.Equal(t, KindCityRemoved, removed.Type)
	assert.Equal(t, "Kyiv,UA", removed.CityID)

	replaced := <-ch
	assert.Equal(t, KindCitiesReplaced, replaced.Type)
	assert.Equal(t, []cities.City{kyiv}, replaced.Data)
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSSE(&buf, Message{ID: "1", Type: KindFetchFailed, CityID: "Oslo,NO", Data: map[string]string{"error": "boom"}})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "id: 1\nevent: weather.fetch.failed\ndata: {"))
	assert.Contains(t, out, `"cityId":"Oslo,NO"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")

	h.Close()
	_, open := <-a
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())

	late := h.Subscribe("late")
	_, open = <-late
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())

	h.Publish(Message{Type: KindFetchStarted})
}
