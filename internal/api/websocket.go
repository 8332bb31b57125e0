package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/logging"
)

// ChannelCreated carries databases created through the API. Applied
// updates are broadcast by the ingest service on "rrd.updated".
const ChannelCreated = "rrd.created"

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsSendBufferSize is the per-client outbound queue length. Events for a
// client whose queue is full are dropped.
const wsSendBufferSize = 256

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

var errNoChannels = errors.New("channels must not be empty")

// encodeFrame stamps msg with the current time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// decodeChannels recovers the channel list from a generically decoded payload.
func decodeChannels(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}
	if len(sub.Channels) == 0 {
		return nil, errNoChannels
	}
	return sub.Channels, nil
}

// channelSet is the set of event channels a client listens on.
type channelSet map[string]struct{}

func (s channelSet) add(names []string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

func (s channelSet) remove(names []string) {
	for _, n := range names {
		delete(s, n)
	}
}

func (s channelSet) list() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// wsTimings derives connection deadlines from configuration.
type wsTimings struct {
	ping     time.Duration
	readWait time.Duration
	write    time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{ping: ping, readWait: ping + pong, write: pong}
}

// Hub tracks connected clients and fans events out to subscribers.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user", c.username, "clients", n)
}

// Unregister removes a client and closes its send queue. Calling it again
// for the same client is a no-op.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		h.logger.Debug("websocket client disconnected", "user", c.username, "clients", n)
	}
}

// Broadcast delivers payload as an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	// The hub lock is held while enqueueing so Unregister cannot close a
	// send queue underneath us; enqueue never blocks.
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered, dropped := 0, 0
	for c := range h.clients {
		if !c.listensOn(channel) {
			continue
		}
		if c.enqueue(frame) {
			delivered++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients too slow, events dropped", "channel", channel, "dropped", dropped)
	}
	if delivered > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", delivered)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reply sends a direct response to one client, tolerating a client that
// has already been unregistered.
func (h *Hub) reply(c *WSClient, msg WSMessage) {
	frame, err := encodeFrame(msg)
	if err != nil {
		h.logger.Error("encoding websocket reply", "type", msg.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.enqueue(frame)
	}
}

// WSClient is one authenticated WebSocket connection.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	username string

	// send is closed by the hub, never by the client.
	send chan []byte

	mu            sync.RWMutex
	subscriptions channelSet
}

func (c *WSClient) listensOn(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// enqueue queues frame without blocking and reports whether it was accepted.
// Callers must hold the hub lock.
func (c *WSClient) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware decides which origins reach this handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket authenticates the token query parameter and upgrades the
// connection. Browsers cannot set headers on an upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeUnauthorized(w, "token query parameter is required")
		return
	}
	claims, err := s.auth.Verify(token)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		username:      claims.Subject,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(channelSet),
	}
	s.hub.Register(c)

	timings := newWSTimings(s.wsCfg)
	go c.writeLoop(timings)
	go c.readLoop(timings, int64(s.wsCfg.MaxMessageSize))
}

// readLoop dispatches inbound frames until the connection fails.
func (c *WSClient) readLoop(t wsTimings, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }

	c.conn.SetReadLimit(limit)
	extend() //nolint:errcheck // Failure surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "user", c.username, "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		extend() //nolint:errcheck // Failure surfaces on the next read
		c.dispatch(data)
	}
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writeLoop(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.write)) //nolint:errcheck // Write reports the failure
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound frame.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.changeSubscriptions(msg)
	case WSTypePing:
		c.hub.reply(c, WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.fail(msg.ID, "unknown message type: "+msg.Type)
	}
}

// changeSubscriptions applies a subscribe or unsubscribe request and answers
// with the client's resulting channel list.
func (c *WSClient) changeSubscriptions(msg WSMessage) {
	channels, err := decodeChannels(msg.Payload)
	if err != nil {
		c.fail(msg.ID, "invalid "+msg.Type+" payload: "+err.Error())
		return
	}

	c.mu.Lock()
	if msg.Type == WSTypeSubscribe {
		c.subscriptions.add(channels)
	} else {
		c.subscriptions.remove(channels)
	}
	current := c.subscriptions.list()
	c.mu.Unlock()

	c.hub.logger.Debug("websocket subscriptions changed", "user", c.username, "op", msg.Type, "channels", channels)

	c.hub.reply(c, WSMessage{
		Type: WSTypeResponse,
		ID:   msg.ID,
		Payload: map[string]any{
			msg.Type + "d": channels,
			"channels":     current,
		},
	})
}

func (c *WSClient) fail(id, reason string) {
	c.hub.reply(c, WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": reason}})
}
