package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// chanBus is an in-process SignalBus. Publish and Subscribe share buffered
// channels so delivery does not depend on subscription order.
type chanBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{chans: make(map[string]chan []byte)}
}

func (b *chanBus) channel(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chans[name]
	if !ok {
		ch = make(chan []byte, 16)
		b.chans[name] = ch
	}
	return ch
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channel(channel) <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channel(channel), nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func startHub(t *testing.T, bus domain.SignalBus) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "server"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubSendsInitialStatus(t *testing.T) {
	hub := startHub(t, newChanBus())
	conn := dialHub(t, hub)

	var envelope struct {
		Type    string `json:"type"`
		Payload struct {
			Mode        string `json:"mode"`
			WSConnected bool   `json:"ws_connected"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &envelope))

	assert.Equal(t, "status", envelope.Type)
	assert.Equal(t, "server", envelope.Payload.Mode)
	assert.True(t, envelope.Payload.WSConnected)
}

func TestHubBroadcastsBusEvents(t *testing.T) {
	bus := newChanBus()
	hub := startHub(t, bus)
	conn := dialHub(t, hub)

	readMessage(t, conn) // status envelope

	payload := []byte(`{"type":"alert","payload":{"id":"al-1"}}`)
	require.NoError(t, bus.Publish(context.Background(), "ch:alerts", payload))

	assert.JSONEq(t, string(payload), string(readMessage(t, conn)))
}

func TestHubHonorsUnsubscribe(t *testing.T) {
	bus := newChanBus()
	hub := startHub(t, bus)
	conn := dialHub(t, hub)

	readMessage(t, conn) // status envelope

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "unsubscribe",
		"channels": []string{"ch:rings"},
	}))

	// Give the read pump time to apply the subscription change.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "ch:rings", []byte(`{"type":"ring"}`)))
	require.NoError(t, bus.Publish(context.Background(), "ch:alerts", []byte(`{"type":"alert"}`)))

	var envelope struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &envelope))
	assert.Equal(t, "alert", envelope.Type)
}

func TestClientSubscriptionMatching(t *testing.T) {
	c := &client{subs: map[string]bool{
		"ch:alerts":   true,
		"ch:custom:*": true,
	}}

	assert.True(t, c.isSubscribed("ch:alerts"))
	assert.True(t, c.isSubscribed("ch:custom:critical"))
	assert.False(t, c.isSubscribed("ch:rings"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:rings"}})
	assert.True(t, c.isSubscribed("ch:rings"))

	c.handleSubscription(subscribeMsg{Unsubscribe: []string{"ch:alerts"}})
	assert.False(t, c.isSubscribed("ch:alerts"))
}
