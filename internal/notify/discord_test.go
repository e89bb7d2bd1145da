package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/sourcequery/internal/events"
)

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

func TestSend_PostsEmbed(t *testing.T) {
	received := make(chan embed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Embeds []embed `json:"embeds"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) || !assert.Len(t, body.Embeds, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- body.Embeds[0]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL)
	d.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	bus := events.NewEventBus()
	defer bus.Stop()
	d.Subscribe(bus)

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type: events.EventServerOffline,
		Payload: events.ServerStatePayload{
			Target:   "alpha",
			Address:  "10.0.0.1:27015",
			Previous: events.TargetStatusOnline,
			Current:  events.TargetStatusOffline,
		},
	}))

	e := <-received
	assert.Equal(t, "alpha is offline", e.Title)
	assert.Contains(t, e.Description, "10.0.0.1:27015")
	assert.Equal(t, 0xFF0000, e.Color)
	assert.Equal(t, "2024-03-01T12:00:00Z", e.Timestamp)
}

func TestSend_ReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordNotifier(srv.URL).Send(context.Background(), "t", "m", LevelInfo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
