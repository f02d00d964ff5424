package agent

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/relay"
)

// State tracks where the agent is in its run.
type State string

const (
	StateIdle                State = "Idle"
	StateCertificateSelected State = "CertificateSelected"
	StatePinEntered          State = "PinEntered"
	StateConnected           State = "Connected"
	StateSigningLoop         State = "SigningLoop"
	StateDone                State = "Done"
	StateFailed              State = "Failed"
)

// Config is the agent's runtime configuration.
type Config struct {
	// LaunchURI is the argument the browser started the agent with.
	LaunchURI string
	// Envelope selects the signature format for the document type being signed.
	Envelope EnvelopeFormat
	// IdleTimeout forces shutdown when nothing happens, e.g. the user walked
	// away during PIN entry.
	IdleTimeout time.Duration
	// Candidates overrides the driver probe table. Empty uses the default.
	Candidates []DriverCandidate
}

// Agent is the desktop signing process. One run serves one signing round
// trip; the agent terminates on completion, on error and on idle timeout.
type Agent struct {
	config Config
	store  CertStore
	prompt Prompt
	dial   Dialer
	exit   func(int)

	discovery *Discovery

	roomID string
	host   string
	pin    string
	chosen *Certificate
	client HubClient
	signer SlotSigner
	state  State

	idleTimer *time.Timer
	teardown  sync.Once
}

// New wires an agent. A nil dialer uses Connect, a nil exit uses os.Exit.
func New(config Config, store CertStore, prompt Prompt, loader ModuleLoader, dial Dialer, exit func(int)) *Agent {
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if dial == nil {
		dial = Connect
	}
	if exit == nil {
		exit = os.Exit
	}
	return &Agent{
		config:    config,
		store:     store,
		prompt:    prompt,
		dial:      dial,
		exit:      exit,
		discovery: NewDiscovery(loader, config.Candidates),
		state:     StateIdle,
	}
}

// State returns the agent's current state.
func (a *Agent) State() State {
	return a.state
}

// Run drives the whole flow: parse the launch argument, let the user pick a
// certificate and enter the PIN, join the room and serve hash requests until
// the completion signal.
func (a *Agent) Run() error {
	roomID, host, err := ParseLaunchURI(a.config.LaunchURI)
	if err != nil {
		a.state = StateFailed
		return err
	}
	a.roomID, a.host = roomID, host

	chosen, err := selectSigningCertificate(a.store, a.prompt)
	if err != nil {
		a.state = StateFailed
		a.prompt.Dispose()
		return err
	}
	a.chosen = chosen
	a.state = StateCertificateSelected

	pin, ok := a.prompt.AskPIN()
	if !ok {
		a.state = StateFailed
		a.prompt.Dispose()
		return ErrAborted
	}
	a.pin = pin
	a.state = StatePinEntered

	client, err := a.dial(a.host)
	if err != nil {
		a.state = StateFailed
		a.prompt.Dispose()
		return fmt.Errorf("could not reach signing relay: %w", err)
	}
	a.client = client
	a.state = StateConnected

	a.idleTimer = time.AfterFunc(a.config.IdleTimeout, func() {
		logging.Log().Error("no signing activity, giving up")
		a.shutdown("idle timeout", 1)
	})

	if err := a.client.Send(relay.Message{Method: relay.MethodConnect, RoomID: a.roomID}); err != nil {
		a.shutdown("could not join room", 1)
		return err
	}

	a.state = StateSigningLoop
	return a.signingLoop()
}

// signingLoop serves one GetHash at a time. Re-delivery after a reconnect is
// harmless: signing the same hash for the same field again yields an
// equivalent signature.
func (a *Agent) signingLoop() error {
	for {
		message, err := a.client.Receive()
		if err != nil {
			a.state = StateFailed
			a.shutdown("connection lost", 1)
			return err
		}
		if message.RoomID != a.roomID {
			continue
		}
		a.resetIdleTimer()

		switch message.Method {
		case relay.MethodGetHash:
			signed, err := a.signHash(message.Hash)
			if err != nil {
				a.state = StateFailed
				logging.Log().WithError(err).Error("signing failed")
				_ = a.client.Send(relay.Message{
					Method: relay.MethodError,
					RoomID: a.roomID,
					Text:   err.Error(),
				})
				a.shutdown("signing failed", 1)
				return err
			}
			if err := a.client.Send(relay.Message{
				Method:     relay.MethodSetSignature,
				RoomID:     a.roomID,
				FieldName:  message.FieldName,
				SignedHash: signed,
			}); err != nil {
				a.state = StateFailed
				a.shutdown("could not return signature", 1)
				return err
			}

		case relay.MethodMessage:
			if relay.IsSuccess(message.Text) {
				a.state = StateDone
				logging.Log().Info("signing completed")
				a.shutdown("completed", 0)
				return nil
			}
			a.state = StateFailed
			logging.Log().Errorf("signing ended without success: %s", message.Text)
			a.shutdown("completed without success", 1)
			return errors.New(message.Text)

		case relay.MethodError:
			a.state = StateFailed
			logging.Log().Errorf("relay peer reported: %s", message.Text)
			a.shutdown("peer error", 1)
			return errors.New(message.Text)
		}
	}
}

// signHash signs one server-supplied hash. The first call runs driver
// discovery; the selection is cached for the rest of the run.
func (a *Agent) signHash(hash []byte) ([]byte, error) {
	if a.signer == nil {
		selection, module, err := a.discovery.Select()
		if err != nil {
			return nil, err
		}
		slot := SlotInfo{ID: selection.SlotID, Label: selection.SlotLabel}
		signer, err := module.Signer(slot, a.pin)
		if err != nil {
			return nil, err
		}
		a.signer = signer
	}
	return envelopeSignature(a.config.Envelope, a.signer, hash)
}

func (a *Agent) resetIdleTimer() {
	if a.idleTimer != nil {
		a.idleTimer.Reset(a.config.IdleTimeout)
	}
}

// shutdown runs the teardown sequence exactly once, in a fixed order: stop
// the idle timer, best-effort disconnect notice to the room, dispose the
// prompt UI, drop the timer, close the hub connection, exit.
func (a *Agent) shutdown(reason string, code int) {
	a.teardown.Do(func() {
		if a.idleTimer != nil {
			a.idleTimer.Stop()
		}

		if a.client != nil {
			_ = a.client.Send(relay.Message{
				Method: relay.MethodError,
				RoomID: a.roomID,
				Text:   "agent exiting: " + reason,
			})
		}

		a.prompt.Dispose()

		a.idleTimer = nil

		if a.signer != nil {
			a.signer.Close()
		}
		a.discovery.Close()
		if a.client != nil {
			_ = a.client.Close()
		}

		a.exit(code)
	})
}
