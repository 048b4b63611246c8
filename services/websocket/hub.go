package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"edupath_go/metrics"
	"edupath_go/utils"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256

	// Collection snapshots are at most this frequent per topic.
	collectionInterval = 500 * time.Millisecond
	snapshotTimeout    = 5 * time.Second
)

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID uint
	Role   string
}

// Authorizer decides whether a connection may subscribe to a topic.
type Authorizer func(ctx context.Context, id Identity, t Topic) bool

// Snapshotter loads the current state of a topic.
type Snapshotter func(ctx context.Context, t Topic) (interface{}, error)

// conn is the subset of a websocket connection the pumps need. It is
// satisfied by both gorilla and fiber connections.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Hub keeps the connected clients and their topic subscriptions.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Subscribers by topic string.
	topics map[string]map[*Client]bool

	// Messages for every client.
	broadcast chan []byte
	quit      chan struct{}
	stopOnce  sync.Once

	mutex sync.Mutex

	authorize Authorizer
	snapshot  Snapshotter
	throttle  *utils.Throttle
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn conn

	// Buffered channel of outbound messages.
	send chan []byte

	identity Identity

	// Topics this client listens to, guarded by hub.mutex.
	topics map[string]bool
}

// ClientMessage is what a client sends to manage its subscriptions.
type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Message is the envelope of everything the server pushes.
type Message struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// SnapshotMessage carries the state of a topic. Data is null for a
// deleted document.
type SnapshotMessage struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// NotificationMessage represents a notification WebSocket message
type NotificationMessage struct {
	Type         string      `json:"type"`
	Notification interface{} `json:"notification"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates a hub that only lets admins subscribe until SetSources
// installs a real authorizer.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		topics:    make(map[string]map[*Client]bool),
		broadcast: make(chan []byte, 64),
		quit:      make(chan struct{}),
		authorize: func(_ context.Context, id Identity, _ Topic) bool { return id.Role == "admin" },
		throttle:  utils.NewThrottle(collectionInterval),
	}
}

// SetSources installs the authorization and snapshot loaders.
func (h *Hub) SetSources(auth Authorizer, snap Snapshotter) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if auth != nil {
		h.authorize = auth
	}
	h.snapshot = snap
}

// Run delivers Broadcast messages until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				h.deliverLocked(client, message)
			}
			h.mutex.Unlock()
		case <-h.quit:
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		h.mutex.Lock()
		for client := range h.clients {
			h.dropLocked(client)
		}
		h.mutex.Unlock()
	})
}

func (h *Hub) register(c conn, id Identity) *Client {
	client := &Client{
		hub:      h,
		conn:     c,
		send:     make(chan []byte, sendBuffer),
		identity: id,
		topics:   make(map[string]bool),
	}
	h.mutex.Lock()
	h.clients[client] = true
	h.mutex.Unlock()
	metrics.ListenerConnections.Inc()
	logrus.WithFields(logrus.Fields{"user_id": id.UserID, "role": id.Role}).Debug("websocket client connected")
	return client
}

func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	h.dropLocked(client)
	h.mutex.Unlock()
}

// dropLocked removes the client and all its subscriptions. Safe to call
// more than once.
func (h *Hub) dropLocked(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for topic := range client.topics {
		if subs := h.topics[topic]; subs != nil {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	client.topics = map[string]bool{}
	close(client.send)
	metrics.ListenerConnections.Dec()
	logrus.WithField("user_id", client.identity.UserID).Debug("websocket client disconnected")
}

// deliverLocked queues data for the client, dropping clients that cannot
// keep up.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithField("user_id", client.identity.UserID).Warn("websocket send buffer full, dropping client")
		h.dropLocked(client)
	}
}

func (h *Hub) reply(client *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket reply")
		return
	}
	h.mutex.Lock()
	h.deliverLocked(client, data)
	h.mutex.Unlock()
}

// Subscribe adds a topic to the client and pushes the current snapshot.
func (h *Hub) Subscribe(ctx context.Context, client *Client, raw string) error {
	t, err := ParseTopic(raw)
	if err != nil {
		return err
	}
	h.mutex.Lock()
	authorize, snapshot := h.authorize, h.snapshot
	h.mutex.Unlock()

	if !authorize(ctx, client.identity, t) {
		return ErrForbidden
	}

	key := t.String()
	h.mutex.Lock()
	if !h.clients[client] {
		h.mutex.Unlock()
		return nil
	}
	if h.topics[key] == nil {
		h.topics[key] = make(map[*Client]bool)
	}
	h.topics[key][client] = true
	client.topics[key] = true
	h.mutex.Unlock()

	h.reply(client, Message{Type: "subscribed", Topic: key})

	if snapshot == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	data, err := snapshot(sctx, t)
	if err != nil {
		logrus.WithError(err).WithField("topic", key).Warn("initial snapshot failed")
		h.reply(client, Message{Type: "error", Topic: key, Error: "snapshot unavailable"})
		return nil
	}
	h.reply(client, SnapshotMessage{Type: "snapshot", Topic: key, Data: data})
	return nil
}

// Unsubscribe removes a topic from the client.
func (h *Hub) Unsubscribe(client *Client, raw string) error {
	t, err := ParseTopic(raw)
	if err != nil {
		return err
	}
	key := t.String()
	h.mutex.Lock()
	delete(client.topics, key)
	if subs := h.topics[key]; subs != nil {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, key)
		}
	}
	h.mutex.Unlock()
	h.reply(client, Message{Type: "unsubscribed", Topic: key})
	return nil
}

func (h *Hub) handleMessage(client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(client, Message{Type: "error", Error: "malformed message"})
		return
	}
	var err error
	switch msg.Action {
	case "subscribe":
		err = h.Subscribe(context.Background(), client, msg.Topic)
	case "unsubscribe":
		err = h.Unsubscribe(client, msg.Topic)
	case "ping":
		h.reply(client, Message{Type: "pong"})
	default:
		h.reply(client, Message{Type: "error", Error: "unknown action"})
	}
	if err != nil {
		h.reply(client, Message{Type: "error", Topic: msg.Topic, Error: err.Error()})
	}
}

// Subscribers returns how many clients listen to a topic.
func (h *Hub) Subscribers(t Topic) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.topics[t.String()])
}

// PublishDocument pushes a document snapshot to its listeners and
// schedules a refresh of its collection. A nil data reports a deletion.
func (h *Hub) PublishDocument(collection string, id uint, data interface{}) {
	h.publish(DocumentTopic(collection, id), data)
	h.PublishCollection(collection)
}

// PublishCollection refreshes listeners of a collection, throttled per
// collection so bursts of writes send one trailing snapshot.
func (h *Hub) PublishCollection(collection string) {
	t := CollectionTopic(collection)
	if h.Subscribers(t) == 0 {
		return
	}
	h.throttle.Do(t.String(), func() { h.refresh(t) })
}

func (h *Hub) refresh(t Topic) {
	h.mutex.Lock()
	snapshot := h.snapshot
	h.mutex.Unlock()
	if snapshot == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	data, err := snapshot(ctx, t)
	if err != nil {
		logrus.WithError(err).WithField("topic", t.String()).Warn("collection snapshot failed")
		return
	}
	h.publish(t, data)
}

func (h *Hub) publish(t Topic, data interface{}) {
	key := t.String()
	payload, err := json.Marshal(SnapshotMessage{Type: "snapshot", Topic: key, Data: data})
	if err != nil {
		logrus.WithError(err).WithField("topic", key).Error("marshal snapshot")
		return
	}
	h.mutex.Lock()
	for client := range h.topics[key] {
		h.deliverLocked(client, payload)
	}
	h.mutex.Unlock()
	metrics.ListenerPublishes.WithLabelValues(t.Kind).Inc()
}

// BroadcastToUser sends a message to all connections of one user.
func (h *Hub) BroadcastToUser(userID uint, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket message")
		return
	}
	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if client.identity.UserID == userID {
			h.deliverLocked(client, data)
			sent++
		}
	}
	h.mutex.Unlock()
	logrus.WithFields(logrus.Fields{"user_id": userID, "sent": sent}).Debug("BroadcastToUser")
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logrus.Warn("websocket broadcast channel is full")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// ServeWS upgrades a net/http request and serves it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, id Identity) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := h.register(c, id)
	go h.writePump(client)
	go h.readPump(client)
}

// ServeFiberWS serves a Fiber websocket connection. It blocks until the
// connection closes, as Fiber requires.
func (h *Hub) ServeFiberWS(c *fiberws.Conn, id Identity) {
	client := h.register(c, id)
	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", client.identity.UserID).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("user_id", client.identity.UserID).Errorf("websocket read panic: %v", r)
		}
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", client.identity.UserID).Debug("websocket closed unexpectedly")
			}
			return
		}
		h.handleMessage(client, raw)
	}
}
