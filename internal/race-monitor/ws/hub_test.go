package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/pubsub"
	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversOnlyToSubscribers(t *testing.T) {
	log := zap.NewNop()
	hub := NewHub(log, func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	sub := dial(t, srv)
	other := dial(t, srv)

	require.NoError(t, sub.WriteJSON(api.ClientMsg{Type: "subscribe", RaceID: 3}))
	require.NoError(t, other.WriteJSON(api.ClientMsg{Type: "subscribe", RaceID: 4}))
	require.Eventually(t, func() bool {
		return hub.Subscribers(3) == 1 && hub.Subscribers(4) == 1
	}, time.Second, 10*time.Millisecond)

	payload, err := pubsub.Encode(api.Race{ID: 3, Name: "R1C1", Runners: []api.Runner{}})
	require.NoError(t, err)
	Dispatch(hub, payload, log)

	_ = sub.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got api.RaceUpdate
	require.NoError(t, sub.ReadJSON(&got))
	assert.Equal(t, int64(3), got.RaceID)
	assert.Equal(t, "R1C1", got.Payload.Name)

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "race 4 subscriber gets nothing")
}

func TestHubPingAndUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(api.ClientMsg{Type: "ping"}))
	var pong map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.WriteJSON(api.ClientMsg{Type: "subscribe", RaceID: 9}))
	require.Eventually(t, func() bool { return hub.Subscribers(9) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(api.ClientMsg{Type: "unsubscribe", RaceID: 9}))
	require.Eventually(t, func() bool { return hub.Subscribers(9) == 0 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()
}

func TestDispatchIgnoresGarbage(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	assert.NotPanics(t, func() { Dispatch(hub, []byte("{not json"), zap.NewNop()) })
}
