package http

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/domain"
)

// ErrConnectionNotFound is returned when a connection id is not live on this instance.
var ErrConnectionNotFound = errors.New("connection not found")

// client is one authenticated websocket connection. Only the write loop writes data frames.
type client struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	send     chan []byte
	closing  chan []byte
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	log      logrus.FieldLogger
}

func newClient(id string, identity domain.Identity, conn *websocket.Conn, buffer int, logger logrus.FieldLogger) *client {
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		closing:  make(chan []byte, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		log:      logger,
	}
}

// enqueue hands msg to the write loop without blocking. A client that cannot keep up is disconnected.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("send buffer full, dropping slow connection")
		c.shutdown()
		return false
	}
}

func (c *client) emit(eventType string, payload any) bool {
	msg, err := json.Marshal(outboundMessage{Type: eventType, Payload: payload})
	if err != nil {
		c.log.WithError(err).Error("marshal outbound event")
		return false
	}
	return c.enqueue(msg)
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// terminate asks the write loop to flush queued events, send a close frame and drop the connection.
func (c *client) terminate(code int, reason string) {
	select {
	case c.closing <- websocket.FormatCloseMessage(code, reason):
	default:
	}
}

func (c *client) writeLoop(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(c.stopped)
	defer c.shutdown()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.WithError(err).Debug("ws write error")
				return
			}
		case frame := <-c.closing:
			c.flush(writeWait)
			_ = c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) flush(writeWait time.Duration) {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Hub is the gateway-local connection table and room membership index.
type Hub struct {
	log logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	joined  map[string]map[string]struct{}
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		log:     logger,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.joined[c.id] = make(map[string]struct{})
	h.mu.Unlock()
}

// unregister drops the connection and every room membership it held.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[c.id] {
		h.removeMember(room, c.id)
	}
	delete(h.joined, c.id)
	delete(h.clients, c.id)
}

// join adds membership; it reports false when the connection already was a member.
func (h *Hub) join(c *client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.joined[c.id]
	if !ok {
		return false
	}
	if _, member := rooms[room]; member {
		return false
	}
	rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*client)
		h.rooms[room] = members
	}
	members[c.id] = c
	return true
}

func (h *Hub) leave(c *client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.joined[c.id]
	if !ok {
		return false
	}
	if _, member := rooms[room]; !member {
		return false
	}
	delete(rooms, room)
	h.removeMember(room, c.id)
	return true
}

func (h *Hub) removeMember(room, connID string) {
	members := h.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) isMember(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[connID][room]
	return ok
}

// EmitLocal delivers a room event to the members connected to this instance.
func (h *Hub) EmitLocal(event domain.RoomEvent) {
	msg, err := json.Marshal(outboundMessage{Type: event.Type, Payload: event.Payload})
	if err != nil {
		h.log.WithError(err).Error("marshal room event")
		return
	}
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[event.Room]))
	for _, c := range h.rooms[event.Room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(msg)
	}
}

// SendTo delivers one event to a single live connection.
func (h *Hub) SendTo(connID, eventType string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	if !c.emit(eventType, payload) {
		return ErrConnectionNotFound
	}
	return nil
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll sends a going-away close frame to every connection and drops it.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.shutdown()
	}
}
