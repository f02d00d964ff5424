package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/relay/ws"
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketTransport(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()
	transport := NewWebSocketTransport(hub)

	router := echo.New()
	router.GET("/relay/ws", transport.Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	t.Run("messages relay between two sockets in one room", func(t *testing.T) {
		browser := dialTestSocket(t, server)
		agent := dialTestSocket(t, server)

		require.NoError(t, browser.WriteJSON(Message{Method: MethodConnect, RoomID: "room-1"}))
		require.NoError(t, agent.WriteJSON(Message{Method: MethodConnect, RoomID: "room-1"}))
		// joins are ordered per connection, not across them; give the second
		// one a moment to land before relaying
		time.Sleep(50 * time.Millisecond)

		require.NoError(t, browser.WriteJSON(Message{
			Method: MethodGetHash, RoomID: "room-1", FieldName: "signature-1", Hash: []byte{0xca, 0xfe},
		}))

		require.NoError(t, agent.SetReadDeadline(time.Now().Add(time.Second)))
		received := Message{}
		require.NoError(t, agent.ReadJSON(&received))
		assert.Equal(t, MethodGetHash, received.Method)
		assert.Equal(t, []byte{0xca, 0xfe}, received.Hash)
	})

	t.Run("a dispatch failure comes back as an error message", func(t *testing.T) {
		conn := dialTestSocket(t, server)

		require.NoError(t, conn.WriteJSON(Message{Method: MethodGetHash, RoomID: "never-joined"}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		received := Message{}
		require.NoError(t, conn.ReadJSON(&received))
		assert.Equal(t, MethodError, received.Method)
		assert.Equal(t, ErrNoSuchRoom.Error(), received.Text)
	})

	t.Run("a plain http request cannot upgrade", func(t *testing.T) {
		response, err := http.Get(server.URL + "/relay/ws")
		require.NoError(t, err)
		defer response.Body.Close()
		assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	})
}
