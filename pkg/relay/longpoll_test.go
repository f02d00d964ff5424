package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLongPollEnv(t *testing.T) (*Hub, *LongPollTransport, *echo.Echo) {
	hub := NewHub(testConfig())
	t.Cleanup(hub.Stop)
	return hub, NewLongPollTransport(hub, 50*time.Millisecond), echo.New()
}

func openSession(t *testing.T, transport *LongPollTransport, router *echo.Echo) string {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/relay/poll", nil)
	recorder := httptest.NewRecorder()
	require.NoError(t, transport.Open(router.NewContext(request, recorder)))
	require.Equal(t, http.StatusCreated, recorder.Code)

	response := openResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.NotEmpty(t, response.SessionID)
	return response.SessionID
}

func pushMessage(t *testing.T, transport *LongPollTransport, router *echo.Echo, sessionID string, message Message) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(message)
	require.NoError(t, err)
	request := httptest.NewRequest(http.MethodPost, "/relay/poll/"+sessionID, strings.NewReader(string(payload)))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	recorder := httptest.NewRecorder()
	ctx := router.NewContext(request, recorder)
	ctx.SetParamNames("session")
	ctx.SetParamValues(sessionID)
	err = transport.Push(ctx)
	if err != nil {
		router.HTTPErrorHandler(err, ctx)
	}
	return recorder
}

func poll(t *testing.T, transport *LongPollTransport, router *echo.Echo, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, "/relay/poll/"+sessionID, nil)
	recorder := httptest.NewRecorder()
	ctx := router.NewContext(request, recorder)
	ctx.SetParamNames("session")
	ctx.SetParamValues(sessionID)
	err := transport.Poll(ctx)
	if err != nil {
		router.HTTPErrorHandler(err, ctx)
	}
	return recorder
}

func TestLongPollTransport(t *testing.T) {
	t.Run("a pushed message reaches the polling peer", func(t *testing.T) {
		hub, transport, router := newLongPollEnv(t)
		_ = hub

		browser := openSession(t, transport, router)
		agent := openSession(t, transport, router)

		recorder := pushMessage(t, transport, router, browser, Message{Method: MethodConnect, RoomID: "room-1"})
		assert.Equal(t, http.StatusAccepted, recorder.Code)
		recorder = pushMessage(t, transport, router, agent, Message{Method: MethodConnect, RoomID: "room-1"})
		assert.Equal(t, http.StatusAccepted, recorder.Code)

		recorder = pushMessage(t, transport, router, browser, Message{
			Method: MethodGetHash, RoomID: "room-1", FieldName: "signature-1", Hash: []byte{0xab},
		})
		assert.Equal(t, http.StatusAccepted, recorder.Code)

		recorder = poll(t, transport, router, agent)
		require.Equal(t, http.StatusOK, recorder.Code)
		var messages []Message
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &messages))
		require.Len(t, messages, 1)
		assert.Equal(t, MethodGetHash, messages[0].Method)
		assert.Equal(t, []byte{0xab}, messages[0].Hash)
	})

	t.Run("a quiet session polls to 204", func(t *testing.T) {
		_, transport, router := newLongPollEnv(t)
		sessionID := openSession(t, transport, router)

		recorder := poll(t, transport, router, sessionID)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})

	t.Run("queued messages are drained in one poll", func(t *testing.T) {
		hub, transport, router := newLongPollEnv(t)

		receiver := openSession(t, transport, router)
		session := hub.SessionByID(receiver)
		require.NotNil(t, session)
		require.NoError(t, hub.Dispatch(session, Message{Method: MethodConnect, RoomID: "room-1"}))

		sender := openSession(t, transport, router)
		pushMessage(t, transport, router, sender, Message{Method: MethodConnect, RoomID: "room-1"})
		pushMessage(t, transport, router, sender, Message{Method: MethodGetHash, RoomID: "room-1", FieldName: "a"})
		pushMessage(t, transport, router, sender, Message{Method: MethodGetHash, RoomID: "room-1", FieldName: "b"})

		recorder := poll(t, transport, router, receiver)
		require.Equal(t, http.StatusOK, recorder.Code)
		var messages []Message
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &messages))
		assert.Len(t, messages, 2)
	})

	t.Run("an unknown session is 404", func(t *testing.T) {
		_, transport, router := newLongPollEnv(t)

		recorder := poll(t, transport, router, "nope")
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("a dispatch failure is 400", func(t *testing.T) {
		_, transport, router := newLongPollEnv(t)
		sessionID := openSession(t, transport, router)

		recorder := pushMessage(t, transport, router, sessionID, Message{Method: "Reboot", RoomID: "room-1"})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("closing the session releases a parked poll with 410", func(t *testing.T) {
		hub := NewHub(testConfig())
		t.Cleanup(hub.Stop)
		transport := NewLongPollTransport(hub, 5*time.Second)
		router := echo.New()
		sessionID := openSession(t, transport, router)

		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- poll(t, transport, router, sessionID)
		}()

		time.Sleep(20 * time.Millisecond)
		hub.CloseSession(hub.SessionByID(sessionID))

		select {
		case recorder := <-done:
			assert.Equal(t, http.StatusGone, recorder.Code)
		case <-time.After(time.Second):
			t.Fatal("poll did not return after close")
		}
	})

	t.Run("a deleted session is gone for good", func(t *testing.T) {
		_, transport, router := newLongPollEnv(t)
		sessionID := openSession(t, transport, router)

		request := httptest.NewRequest(http.MethodDelete, "/relay/poll/"+sessionID, nil)
		recorder := httptest.NewRecorder()
		ctx := router.NewContext(request, recorder)
		ctx.SetParamNames("session")
		ctx.SetParamValues(sessionID)
		if err := transport.Close(ctx); err != nil {
			router.HTTPErrorHandler(err, ctx)
		}
		assert.Equal(t, http.StatusNoContent, recorder.Code)

		recorder = poll(t, transport, router, sessionID)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
