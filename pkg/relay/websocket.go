package relay

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/signato/signato-auth/logging"
)

// WebSocketTransport serves the default relay transport. One upgraded
// connection maps onto one hub session.
type WebSocketTransport struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWebSocketTransport returns the transport for the given hub.
func NewWebSocketTransport(hub *Hub) *WebSocketTransport {
	return &WebSocketTransport{
		hub: hub,
		upgrader: websocket.Upgrader{
			// the browser page and the agent run on origins we do not control;
			// room membership is the access control, not the Origin header
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and pumps messages between the socket and the
// hub until either side goes away.
func (t *WebSocketTransport) Handle(ctx echo.Context) error {
	conn, err := t.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not upgrade connection")
	}

	session := t.hub.OpenSession(uuid.New().String())
	logging.Log().Debugf("websocket session %s opened", session.ID)

	// single writer goroutine, the socket is not safe for concurrent writes
	go func() {
		for {
			select {
			case message := <-session.Outbound():
				if err := conn.WriteJSON(message); err != nil {
					session.Close()
					return
				}
			case <-session.Done():
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		message := Message{}
		if err := conn.ReadJSON(&message); err != nil {
			break
		}
		if err := t.hub.Dispatch(session, message); err != nil {
			session.deliver(Message{Method: MethodError, RoomID: message.RoomID, Text: err.Error()})
		}
	}

	t.hub.CloseSession(session)
	logging.Log().Debugf("websocket session %s closed", session.ID)
	return nil
}
