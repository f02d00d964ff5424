package agent

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signato/signato-auth/pkg/relay"
)

type fakeCertStore struct {
	certificates []Certificate
	err          error
}

func (f *fakeCertStore) List() ([]Certificate, error) { return f.certificates, f.err }

type fakePrompt struct {
	selectIndex int
	selectOK    bool
	pin         string
	pinOK       bool
	disposed    int
}

func (f *fakePrompt) SelectCertificate([]Certificate) (int, bool) { return f.selectIndex, f.selectOK }
func (f *fakePrompt) AskPIN() (string, bool)                      { return f.pin, f.pinOK }
func (f *fakePrompt) Dispose()                                    { f.disposed++ }

// scriptedClient replays a fixed message sequence and records what the agent
// sends back.
type scriptedClient struct {
	events chan relay.Message
	done   chan struct{}
	once   sync.Once

	mutex  sync.Mutex
	sent   []relay.Message
	closed bool
}

func newScriptedClient(events ...relay.Message) *scriptedClient {
	c := &scriptedClient{events: make(chan relay.Message, len(events)+1), done: make(chan struct{})}
	for _, event := range events {
		c.events <- event
	}
	return c
}

func (c *scriptedClient) Send(message relay.Message) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sent = append(c.sent, message)
	return nil
}

func (c *scriptedClient) Receive() (relay.Message, error) {
	select {
	case message := <-c.events:
		return message, nil
	case <-c.done:
		return relay.Message{}, errors.New("connection closed")
	}
}

func (c *scriptedClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	return nil
}

func (c *scriptedClient) sentMessages() []relay.Message {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]relay.Message(nil), c.sent...)
}

type exitRecorder struct {
	codes chan int
}

func newExitRecorder() *exitRecorder { return &exitRecorder{codes: make(chan int, 1)} }

func (e *exitRecorder) exit(code int) { e.codes <- code }

func (e *exitRecorder) wait(t *testing.T) int {
	t.Helper()
	select {
	case code := <-e.codes:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("agent never exited")
		return -1
	}
}

type agentEnv struct {
	agent  *Agent
	client *scriptedClient
	prompt *fakePrompt
	module *fakeModule
	signer *fakeSigner
	exit   *exitRecorder
	dialed string
}

func newAgentEnv(t *testing.T, events ...relay.Message) *agentEnv {
	env := &agentEnv{
		client: newScriptedClient(events...),
		prompt: &fakePrompt{selectIndex: 0, selectOK: true, pin: "1234", pinOK: true},
		signer: &fakeSigner{signature: []byte("signed-bytes")},
		exit:   newExitRecorder(),
	}
	env.module = &fakeModule{slots: []SlotInfo{{ID: 1, Label: "card"}}, signer: env.signer}
	loader := &fakeLoader{modules: map[string]*fakeModule{"first.so": env.module}}

	env.agent = New(Config{
		LaunchURI:  "signato:/room-1_relay.example.com",
		Candidates: []DriverCandidate{{Provider: "first", Library: "first.so"}},
	},
		&fakeCertStore{certificates: []Certificate{{Subject: "Ada Prima", HasPrivateKey: true}}},
		env.prompt,
		loader.load,
		func(host string) (HubClient, error) {
			env.dialed = host
			return env.client, nil
		},
		env.exit.exit)
	return env
}

func TestAgent_Run(t *testing.T) {
	t.Run("a full signing round trip", func(t *testing.T) {
		env := newAgentEnv(t,
			relay.Message{Method: relay.MethodGetHash, RoomID: "other-room", FieldName: "foreign"},
			relay.Message{Method: relay.MethodGetHash, RoomID: "room-1", FieldName: "signature-1", Hash: []byte{0x01}},
			relay.Message{Method: relay.MethodMessage, RoomID: "room-1", Text: "Success"},
		)

		err := env.agent.Run()
		require.NoError(t, err)
		assert.Equal(t, 0, env.exit.wait(t))
		assert.Equal(t, StateDone, env.agent.State())
		assert.Equal(t, "relay.example.com", env.dialed)

		sent := env.client.sentMessages()
		require.Len(t, sent, 3)
		assert.Equal(t, relay.MethodConnect, sent[0].Method)
		assert.Equal(t, "room-1", sent[0].RoomID)
		assert.Equal(t, relay.MethodSetSignature, sent[1].Method)
		assert.Equal(t, "signature-1", sent[1].FieldName)
		assert.Equal(t, []byte("signed-bytes"), sent[1].SignedHash)
		// the best-effort disconnect notice goes out even on success
		assert.Equal(t, relay.MethodError, sent[2].Method)
		assert.Contains(t, sent[2].Text, "completed")

		assert.Equal(t, "1234", env.module.pinSeen)
		assert.True(t, env.signer.closed)
		assert.True(t, env.module.closed)
		assert.True(t, env.client.closed)
		assert.Equal(t, 1, env.prompt.disposed)
	})

	t.Run("an unparsable launch argument fails before any UI", func(t *testing.T) {
		env := newAgentEnv(t)
		env.agent.config.LaunchURI = "garbage"

		err := env.agent.Run()
		assert.Equal(t, ErrInvalidLaunchURI, err)
		assert.Equal(t, StateFailed, env.agent.State())
		assert.Empty(t, env.dialed)
	})

	t.Run("aborting certificate selection ends the run", func(t *testing.T) {
		env := newAgentEnv(t)
		env.prompt.selectOK = false

		err := env.agent.Run()
		assert.Equal(t, ErrAborted, err)
		assert.Equal(t, 1, env.prompt.disposed)
		assert.Empty(t, env.dialed)
	})

	t.Run("aborting PIN entry ends the run", func(t *testing.T) {
		env := newAgentEnv(t)
		env.prompt.pinOK = false

		err := env.agent.Run()
		assert.Equal(t, ErrAborted, err)
		assert.Empty(t, env.dialed)
	})

	t.Run("a completion without success exits non-zero and notifies the room", func(t *testing.T) {
		env := newAgentEnv(t,
			relay.Message{Method: relay.MethodMessage, RoomID: "room-1", Text: "signing rejected"},
		)

		err := env.agent.Run()
		assert.EqualError(t, err, "signing rejected")
		assert.Equal(t, 1, env.exit.wait(t))
		assert.Equal(t, StateFailed, env.agent.State())

		sent := env.client.sentMessages()
		require.Len(t, sent, 2)
		assert.Equal(t, relay.MethodError, sent[1].Method)
		assert.Contains(t, sent[1].Text, "agent exiting")
	})

	t.Run("a signing failure is reported back before shutdown", func(t *testing.T) {
		env := newAgentEnv(t,
			relay.Message{Method: relay.MethodGetHash, RoomID: "room-1", FieldName: "signature-1", Hash: []byte{0x01}},
		)
		env.module.signerErr = errors.New("PIN locked")

		err := env.agent.Run()
		assert.EqualError(t, err, "PIN locked")
		assert.Equal(t, 1, env.exit.wait(t))

		sent := env.client.sentMessages()
		require.Len(t, sent, 3)
		assert.Equal(t, relay.MethodError, sent[1].Method)
		assert.Equal(t, "PIN locked", sent[1].Text)
	})

	t.Run("a peer error ends the run", func(t *testing.T) {
		env := newAgentEnv(t,
			relay.Message{Method: relay.MethodError, RoomID: "room-1", Text: "browser went away"},
		)

		err := env.agent.Run()
		assert.EqualError(t, err, "browser went away")
		assert.Equal(t, 1, env.exit.wait(t))
	})

	t.Run("silence trips the idle timeout", func(t *testing.T) {
		env := newAgentEnv(t)
		env.agent.config.IdleTimeout = 20 * time.Millisecond

		err := env.agent.Run()
		assert.Error(t, err)
		assert.Equal(t, 1, env.exit.wait(t))
	})
}
