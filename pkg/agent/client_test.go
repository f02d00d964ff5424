package agent

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signato/signato-auth/pkg/relay"
)

func newRelayServer(t *testing.T, withWebSocket bool) (*relay.Hub, string) {
	t.Helper()
	hub := relay.NewHub(relay.Config{SendBuffer: 4, RoomTTL: time.Minute, SweepInterval: time.Hour})
	t.Cleanup(hub.Stop)

	router := echo.New()
	if withWebSocket {
		router.GET("/relay/ws", relay.NewWebSocketTransport(hub).Handle)
	}
	poll := relay.NewLongPollTransport(hub, 100*time.Millisecond)
	router.POST("/relay/poll", poll.Open)
	router.GET("/relay/poll/:session", poll.Poll)
	router.POST("/relay/poll/:session", poll.Push)
	router.DELETE("/relay/poll/:session", poll.Close)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, server.URL
}

// joinPeer puts a hub-side session into the room so relayed messages have a
// destination, and returns it.
func joinPeer(t *testing.T, hub *relay.Hub, roomID string) *relay.Session {
	t.Helper()
	peer := hub.OpenSession("peer")
	require.NoError(t, hub.Dispatch(peer, relay.Message{Method: relay.MethodConnect, RoomID: roomID}))
	return peer
}

func roundTrip(t *testing.T, hub *relay.Hub, client HubClient) {
	t.Helper()
	peer := joinPeer(t, hub, "room-1")

	require.NoError(t, client.Send(relay.Message{Method: relay.MethodConnect, RoomID: "room-1"}))
	// the join travels asynchronously on the websocket transport
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, hub.Dispatch(peer, relay.Message{
		Method: relay.MethodGetHash, RoomID: "room-1", FieldName: "signature-1",
	}))

	received, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, relay.MethodGetHash, received.Method)

	require.NoError(t, client.Send(relay.Message{
		Method: relay.MethodSetSignature, RoomID: "room-1", FieldName: "signature-1", SignedHash: []byte{0x01},
	}))
	select {
	case message := <-peer.Outbound():
		assert.Equal(t, relay.MethodSetSignature, message.Method)
	case <-time.After(time.Second):
		t.Fatal("signature never reached the peer")
	}
}

func TestDialWebSocket(t *testing.T) {
	hub, serverURL := newRelayServer(t, true)

	client, err := DialWebSocket(serverURL)
	require.NoError(t, err)
	defer client.Close()

	roundTrip(t, hub, client)
}

func TestDialLongPoll(t *testing.T) {
	hub, serverURL := newRelayServer(t, false)

	client, err := DialLongPoll(serverURL)
	require.NoError(t, err)
	defer client.Close()

	roundTrip(t, hub, client)
}

func TestConnect_FallsBackToLongPolling(t *testing.T) {
	hub, serverURL := newRelayServer(t, false)

	client, err := Connect(serverURL)
	require.NoError(t, err)
	defer client.Close()

	_, isPolling := client.(*pollClient)
	assert.True(t, isPolling)
	roundTrip(t, hub, client)
}

func TestEndpointURLs(t *testing.T) {
	assert.Equal(t, "wss://relay.example.com", wsURL("relay.example.com"))
	assert.Equal(t, "wss://relay.example.com", wsURL("https://relay.example.com"))
	assert.Equal(t, "ws://relay.example.com", wsURL("http://relay.example.com"))
	assert.Equal(t, "ws://relay.example.com", wsURL("ws://relay.example.com"))

	assert.Equal(t, "https://relay.example.com", httpURL("relay.example.com"))
	assert.Equal(t, "http://relay.example.com", httpURL("http://relay.example.com"))
}
