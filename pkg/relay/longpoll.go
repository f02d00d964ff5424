package relay

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/signato/signato-auth/logging"
)

// LongPollTransport is the fallback transport for agents that cannot hold a
// websocket open. Sessions are addressed by id; Poll parks the request until
// a message arrives or the wait expires.
type LongPollTransport struct {
	hub  *Hub
	wait time.Duration
}

// NewLongPollTransport returns the transport with the given maximum poll wait.
func NewLongPollTransport(hub *Hub, wait time.Duration) *LongPollTransport {
	if wait == 0 {
		wait = 25 * time.Second
	}
	return &LongPollTransport{hub: hub, wait: wait}
}

type openResponse struct {
	SessionID string `json:"sessionId"`
}

// Open creates a hub session and hands its id to the caller.
func (t *LongPollTransport) Open(ctx echo.Context) error {
	session := t.hub.OpenSession(uuid.New().String())
	logging.Log().Debugf("longpoll session %s opened", session.ID)
	return ctx.JSON(http.StatusCreated, openResponse{SessionID: session.ID})
}

// Push dispatches one message sent by the polling peer.
func (t *LongPollTransport) Push(ctx echo.Context) error {
	session := t.hub.SessionByID(ctx.Param("session"))
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	message := Message{}
	if err := ctx.Bind(&message); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse message")
	}
	if err := t.hub.Dispatch(session, message); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ctx.NoContent(http.StatusAccepted)
}

// Poll returns queued messages for the session, waiting up to the configured
// interval for the first one. No message within the wait yields 204 and the
// peer simply polls again.
func (t *LongPollTransport) Poll(ctx echo.Context) error {
	session := t.hub.SessionByID(ctx.Param("session"))
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}

	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	var messages []Message
	select {
	case message := <-session.Outbound():
		messages = append(messages, message)
		// drain whatever else is already queued
		for {
			select {
			case more := <-session.Outbound():
				messages = append(messages, more)
				continue
			default:
			}
			break
		}
	case <-session.Done():
		return ctx.NoContent(http.StatusGone)
	case <-ctx.Request().Context().Done():
		return nil
	case <-timer.C:
		return ctx.NoContent(http.StatusNoContent)
	}

	return ctx.JSON(http.StatusOK, messages)
}

// Close tears the session down.
func (t *LongPollTransport) Close(ctx echo.Context) error {
	session := t.hub.SessionByID(ctx.Param("session"))
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	t.hub.CloseSession(session)
	return ctx.NoContent(http.StatusNoContent)
}
