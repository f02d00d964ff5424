package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/signato/signato-auth/logging"
)

// ErrUnknownMethod is returned when a message names no registered handler.
var ErrUnknownMethod = errors.New("unknown relay method")

// ErrNoSuchRoom is returned when a message addresses a room the sender never
// joined.
var ErrNoSuchRoom = errors.New("no such room")

// Config tunes the hub.
type Config struct {
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int
	// RoomTTL drops rooms with no traffic for this long.
	RoomTTL time.Duration
	// SweepInterval is how often idle rooms are collected.
	SweepInterval time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		SendBuffer:    16,
		RoomTTL:       10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Session is one connected peer. A session owns exactly one connection; the
// transport reads Outbound and feeds received messages into Hub.Dispatch.
type Session struct {
	ID       string
	outbound chan Message
	once     sync.Once
	done     chan struct{}
}

// NewSession returns a session with the given outbound buffer.
func NewSession(id string, buffer int) *Session {
	return &Session{
		ID:       id,
		outbound: make(chan Message, buffer),
		done:     make(chan struct{}),
	}
}

// Outbound is the channel the owning transport writes to the wire.
func (s *Session) Outbound() <-chan Message {
	return s.outbound
}

// Done closes when the session is finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close makes the owning transport tear the connection down. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// deliver queues a message, dropping it when the peer cannot keep up. A
// dropped GetHash is re-sent by the browser, the protocol is idempotent per
// field.
func (s *Session) deliver(message Message) {
	select {
	case s.outbound <- message:
	case <-s.done:
	default:
		logging.Log().Warnf("relay session %s lags, dropping %s", s.ID, message.Method)
	}
}

type room struct {
	key          string
	members      map[string]*Session
	lastActivity time.Time
}

// Hub pairs browser and agent sessions through rooms and relays messages
// between them. Dispatch runs over a static method table resolved at
// construction time.
type Hub struct {
	config   Config
	mutex    sync.Mutex
	rooms    map[string]*room
	sessions map[string]*Session
	handlers map[Method]func(*Session, Message) error
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub builds the hub and its dispatch table.
func NewHub(config Config) *Hub {
	if config.SendBuffer == 0 {
		config = DefaultConfig()
	}
	h := &Hub{
		config:   config,
		rooms:    map[string]*room{},
		sessions: map[string]*Session{},
		stop:     make(chan struct{}),
	}
	h.handlers = map[Method]func(*Session, Message) error{
		MethodConnect:      h.handleConnect,
		MethodGetHash:      h.relayToPeers,
		MethodSetSignature: h.relayToPeers,
		MethodError:        h.relayToPeers,
		MethodMessage:      h.relayToPeers,
	}
	go h.sweepLoop()
	return h
}

// Stop ends the background sweep.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// OpenSession registers a new session for a transport.
func (h *Hub) OpenSession(id string) *Session {
	session := NewSession(id, h.config.SendBuffer)
	h.mutex.Lock()
	h.sessions[id] = session
	h.mutex.Unlock()
	return session
}

// SessionByID returns a registered session, or nil.
func (h *Hub) SessionByID(id string) *Session {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.sessions[id]
}

// CloseSession removes the session from every room and closes it.
func (h *Hub) CloseSession(session *Session) {
	h.mutex.Lock()
	delete(h.sessions, session.ID)
	for key, r := range h.rooms {
		delete(r.members, session.ID)
		if len(r.members) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mutex.Unlock()
	session.Close()
}

// Dispatch routes one inbound message through the method table.
func (h *Hub) Dispatch(session *Session, message Message) error {
	handler, ok := h.handlers[message.Method]
	if !ok {
		return ErrUnknownMethod
	}
	return handler(session, message)
}

func (h *Hub) handleConnect(session *Session, message Message) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	r, ok := h.rooms[message.RoomID]
	if !ok {
		r = &room{key: message.RoomID, members: map[string]*Session{}}
		h.rooms[message.RoomID] = r
	}
	r.members[session.ID] = session
	r.lastActivity = time.Now()
	logging.Log().Debugf("session %s joined room %s (%d members)", session.ID, message.RoomID, len(r.members))
	return nil
}

// relayToPeers forwards a message to every other member of its room.
func (h *Hub) relayToPeers(sender *Session, message Message) error {
	h.mutex.Lock()
	r, ok := h.rooms[message.RoomID]
	if !ok || r.members[sender.ID] == nil {
		h.mutex.Unlock()
		return ErrNoSuchRoom
	}
	r.lastActivity = time.Now()
	peers := make([]*Session, 0, len(r.members))
	for id, member := range r.members {
		if id != sender.ID {
			peers = append(peers, member)
		}
	}
	h.mutex.Unlock()

	for _, peer := range peers {
		peer.deliver(message)
	}
	return nil
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep drops rooms that saw no traffic within the TTL and closes their
// members. A signing round trip takes seconds; a silent room is an abandoned
// one.
func (h *Hub) sweep() {
	deadline := time.Now().Add(-h.config.RoomTTL)
	var orphans []*Session

	h.mutex.Lock()
	for key, r := range h.rooms {
		if r.lastActivity.Before(deadline) {
			for _, member := range r.members {
				orphans = append(orphans, member)
			}
			delete(h.rooms, key)
			logging.Log().Debugf("dropped idle room %s", key)
		}
	}
	for _, orphan := range orphans {
		delete(h.sessions, orphan.ID)
	}
	h.mutex.Unlock()

	for _, orphan := range orphans {
		orphan.Close()
	}
}
