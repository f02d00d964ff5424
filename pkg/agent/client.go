package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/relay"
)

// HubClient is the agent side of a relay connection. Receive blocks until a
// message arrives or the connection dies.
type HubClient interface {
	Send(message relay.Message) error
	Receive() (relay.Message, error)
	Close() error
}

// Dialer opens a HubClient against a relay host.
type Dialer func(host string) (HubClient, error)

// Connect dials the default websocket transport and falls back to long
// polling once before giving up.
func Connect(host string) (HubClient, error) {
	client, err := DialWebSocket(host)
	if err == nil {
		return client, nil
	}
	logging.Log().WithError(err).Warn("websocket transport failed, retrying over long polling")
	return DialLongPoll(host)
}

// DialWebSocket opens the primary transport.
func DialWebSocket(host string) (HubClient, error) {
	endpoint := wsURL(host) + "/relay/ws"
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", endpoint, err)
	}
	return &wsClient{conn: conn}, nil
}

type wsClient struct {
	conn *websocket.Conn
}

func (c *wsClient) Send(message relay.Message) error {
	return c.conn.WriteJSON(message)
}

func (c *wsClient) Receive() (relay.Message, error) {
	message := relay.Message{}
	err := c.conn.ReadJSON(&message)
	return message, err
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

// DialLongPoll opens the fallback transport.
func DialLongPoll(host string) (HubClient, error) {
	client := &pollClient{
		base: httpURL(host),
		http: &http.Client{Timeout: 45 * time.Second},
	}
	response, err := client.http.Post(client.base+"/relay/poll", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("could not open polling session: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("could not open polling session: status %d", response.StatusCode)
	}

	opened := struct {
		SessionID string `json:"sessionId"`
	}{}
	if err := json.NewDecoder(response.Body).Decode(&opened); err != nil {
		return nil, err
	}
	client.sessionID = opened.SessionID
	return client, nil
}

type pollClient struct {
	base      string
	sessionID string
	http      *http.Client
	queue     []relay.Message
}

func (c *pollClient) Send(message relay.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	response, err := c.http.Post(c.base+"/relay/poll/"+c.sessionID, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("push rejected with status %d", response.StatusCode)
	}
	return nil
}

func (c *pollClient) Receive() (relay.Message, error) {
	for len(c.queue) == 0 {
		response, err := c.http.Get(c.base + "/relay/poll/" + c.sessionID)
		if err != nil {
			return relay.Message{}, err
		}
		switch response.StatusCode {
		case http.StatusOK:
			var messages []relay.Message
			err = json.NewDecoder(response.Body).Decode(&messages)
			_ = response.Body.Close()
			if err != nil {
				return relay.Message{}, err
			}
			c.queue = append(c.queue, messages...)
		case http.StatusNoContent:
			_ = response.Body.Close()
			// nothing yet, poll again
		default:
			_ = response.Body.Close()
			return relay.Message{}, fmt.Errorf("polling session gone, status %d", response.StatusCode)
		}
	}

	message := c.queue[0]
	c.queue = c.queue[1:]
	return message, nil
}

func (c *pollClient) Close() error {
	request, err := http.NewRequest(http.MethodDelete, c.base+"/relay/poll/"+c.sessionID, nil)
	if err != nil {
		return err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	return response.Body.Close()
}

// wsURL turns the launch-URI host into a websocket endpoint.
func wsURL(host string) string {
	switch {
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://")
	case strings.HasPrefix(host, "wss://"), strings.HasPrefix(host, "ws://"):
		return host
	}
	return "wss://" + host
}

// httpURL turns the launch-URI host into an HTTP endpoint.
func httpURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
