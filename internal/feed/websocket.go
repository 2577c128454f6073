package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// WSMessage is a client to server message.
type WSMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe, resync, ping
	Topic string `json:"topic,omitempty"`
}

// Snapshotter produces the current ordered state of a topic: cards by
// creation time ascending, or the change log newest first.
type Snapshotter interface {
	Snapshot(ctx context.Context, topic string) (any, error)
}

type SnapshotFunc func(ctx context.Context, topic string) (any, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, topic string) (any, error) { return f(ctx, topic) }

// WSHandler serves the live feed. Callers authenticate the request before
// handing it over.
type WSHandler struct {
	upgrader    websocket.Upgrader
	publisher   Publisher
	snapshots   Snapshotter
	connections map[*websocket.Conn]*wsConnection
	mu          sync.RWMutex
	logger      logrus.FieldLogger
}

type wsConnection struct {
	conn         *websocket.Conn
	userID       string
	mu           sync.Mutex // protects topic, eventChan, unsubscribed
	topic        string
	eventChan    <-chan Event
	send         chan []byte
	done         chan struct{}
	unsubscribed bool
}

func NewWSHandler(pub Publisher, snapshots Snapshotter, allowedOrigin string, logger logrus.FieldLogger) *WSHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		publisher:   pub,
		snapshots:   snapshots,
		connections: make(map[*websocket.Conn]*wsConnection),
		logger:      logger.WithField("component", "feed.ws"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Serve(w, r, "")
}

// Serve upgrades the request for an already authenticated user.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	wsConn := &wsConnection{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = wsConn
	h.mu.Unlock()
	metrics.FeedConnected()

	go h.readPump(wsConn)
	go h.writePump(wsConn)
}

func (h *WSHandler) readPump(c *wsConnection) {
	defer h.closeConnection(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("websocket read error")
			}
			return
		}
		h.handleMessage(c, message)
	}
}

func (h *WSHandler) writePump(c *wsConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			// One frame per message so clients always parse whole JSON documents.
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleMessage(c *wsConnection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		h.handleSubscribe(c, msg.Topic)
	case "unsubscribe":
		h.handleUnsubscribe(c)
	case "resync":
		c.mu.Lock()
		topic := c.topic
		c.mu.Unlock()
		if topic == "" {
			h.sendError(c, "resync requires an active subscription")
			return
		}
		h.sendSnapshots(c, topic)
	case "ping":
		h.sendJSON(c, map[string]any{"type": "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe registers with the publisher before reading the snapshot,
// so no committed change falls between the two. A change may appear in both;
// clients key cards and entries by id.
func (h *WSHandler) handleSubscribe(c *wsConnection, topic string) {
	if !ValidTopic(topic) {
		h.sendError(c, "topic must be one of functionalities, changelog, *")
		return
	}

	h.handleUnsubscribe(c)

	c.mu.Lock()
	c.topic = topic
	c.eventChan = h.publisher.Subscribe(topic)
	c.unsubscribed = false
	c.mu.Unlock()

	h.sendJSON(c, map[string]any{"type": "subscribed", "topic": topic})
	h.sendSnapshots(c, topic)
	h.logger.WithFields(logrus.Fields{"topic": topic, "user_id": c.userID}).Debug("websocket subscribed")

	go h.forwardEvents(c)
}

func (h *WSHandler) sendSnapshots(c *wsConnection, topic string) {
	if h.snapshots == nil {
		return
	}
	for _, t := range Topics(topic) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		data, err := h.snapshots.Snapshot(ctx, t)
		cancel()
		if err != nil {
			h.logger.WithError(err).WithField("topic", t).Warn("snapshot failed")
			h.sendError(c, "snapshot unavailable for "+t)
			continue
		}
		h.sendJSON(c, map[string]any{
			"type":  "snapshot",
			"topic": t,
			"data":  data,
			"time":  time.Now().UTC(),
		})
	}
}

func (h *WSHandler) handleUnsubscribe(c *wsConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.topic != "" && c.eventChan != nil && !c.unsubscribed {
		h.publisher.Unsubscribe(c.topic, c.eventChan)
		c.unsubscribed = true
		c.topic = ""
		c.eventChan = nil
	}
}

func (h *WSHandler) forwardEvents(c *wsConnection) {
	c.mu.Lock()
	eventChan := c.eventChan
	c.mu.Unlock()

	if eventChan == nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			h.sendJSON(c, map[string]any{
				"type":  "event",
				"event": string(event.Type),
				"topic": event.Topic,
				"data":  event.Data,
				"time":  event.Time,
			})
		}
	}
}

func (h *WSHandler) closeConnection(c *wsConnection) {
	h.mu.Lock()
	_, exists := h.connections[c.conn]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.conn)
	h.mu.Unlock()
	metrics.FeedDisconnected()

	h.handleUnsubscribe(c)

	select {
	case <-c.done:
	default:
		close(c.done)
	}
	_ = c.conn.Close()
}

func (h *WSHandler) sendJSON(c *wsConnection, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal websocket message")
		return
	}

	select {
	case c.send <- msg:
	default:
		h.logger.WithField("user_id", c.userID).Warn("websocket send buffer full, dropping message")
	}
}

func (h *WSHandler) sendError(c *wsConnection, message string) {
	h.sendJSON(c, map[string]any{"type": "error", "error": message})
}

// ConnectionCount returns the number of active connections.
func (h *WSHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close closes all connections.
func (h *WSHandler) Close() {
	h.mu.Lock()
	conns := make([]*wsConnection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
}
