package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownOnly(_ context.Context, id Identity, t Topic) bool {
	if id.Role == "admin" {
		return true
	}
	if t.Kind == KindCollection {
		return t.Collection == "courses"
	}
	return t.Collection == "students" && t.ID == id.UserID
}

func echoSnapshot(_ context.Context, t Topic) (interface{}, error) {
	return map[string]string{"topic": t.String()}, nil
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.send:
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestParseTopic(t *testing.T) {
	tp, err := ParseTopic("document:applications/42")
	require.NoError(t, err)
	assert.Equal(t, DocumentTopic("applications", 42), tp)
	assert.Equal(t, "document:applications/42", tp.String())

	tp, err = ParseTopic("collection:courses")
	require.NoError(t, err)
	assert.Equal(t, "collection:courses", tp.String())

	for _, bad := range []string{"", "courses", "collection:", "collection:Courses", "document:applications", "document:applications/0", "document:applications/x", "table:courses"} {
		_, err := ParseTopic(bad)
		assert.ErrorIs(t, err, ErrBadTopic, bad)
	}
}

func TestSubscribePushesInitialSnapshot(t *testing.T) {
	h := NewHub()
	h.SetSources(ownOnly, echoSnapshot)
	c := h.register(nil, Identity{UserID: 7, Role: "student"})

	require.NoError(t, h.Subscribe(context.Background(), c, "document:students/7"))
	assert.Equal(t, "subscribed", recv(t, c).Type)
	snap := recv(t, c)
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, "document:students/7", snap.Topic)
	assert.Equal(t, 1, h.Subscribers(DocumentTopic("students", 7)))
}

func TestStudentCannotSubscribeToOthers(t *testing.T) {
	h := NewHub()
	h.SetSources(ownOnly, echoSnapshot)
	c := h.register(nil, Identity{UserID: 7, Role: "student"})

	assert.ErrorIs(t, h.Subscribe(context.Background(), c, "document:students/8"), ErrForbidden)
	assert.ErrorIs(t, h.Subscribe(context.Background(), c, "collection:applications"), ErrForbidden)
	assert.NoError(t, h.Subscribe(context.Background(), c, "collection:courses"))
}

func TestDefaultAuthorizerIsAdminOnly(t *testing.T) {
	h := NewHub()
	student := h.register(nil, Identity{UserID: 1, Role: "student"})
	admin := h.register(nil, Identity{UserID: 2, Role: "admin"})
	assert.ErrorIs(t, h.Subscribe(context.Background(), student, "collection:courses"), ErrForbidden)
	assert.NoError(t, h.Subscribe(context.Background(), admin, "collection:courses"))
}

func TestSnapshotErrorIsReported(t *testing.T) {
	h := NewHub()
	h.SetSources(nil, func(context.Context, Topic) (interface{}, error) { return nil, errors.New("db down") })
	c := h.register(nil, Identity{UserID: 1, Role: "admin"})

	require.NoError(t, h.Subscribe(context.Background(), c, "collection:applications"))
	assert.Equal(t, "subscribed", recv(t, c).Type)
	m := recv(t, c)
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, "collection:applications", m.Topic)
}

func TestPublishDocumentReachesOnlySubscribers(t *testing.T) {
	h := NewHub()
	a := h.register(nil, Identity{UserID: 1, Role: "admin"})
	b := h.register(nil, Identity{UserID: 2, Role: "admin"})
	require.NoError(t, h.Subscribe(context.Background(), a, "document:applications/3"))
	recv(t, a)

	h.PublishDocument("applications", 3, map[string]int{"progress": 50})
	m := recv(t, a)
	assert.Equal(t, "snapshot", m.Type)
	assert.Equal(t, map[string]interface{}{"progress": float64(50)}, m.Data)

	select {
	case <-b.send:
		t.Fatal("unsubscribed client received a snapshot")
	default:
	}
}

func TestCollectionPublishesAreThrottled(t *testing.T) {
	h := NewHub()
	var loads int32
	h.SetSources(nil, func(context.Context, Topic) (interface{}, error) {
		return atomic.AddInt32(&loads, 1), nil
	})
	c := h.register(nil, Identity{UserID: 1, Role: "admin"})
	require.NoError(t, h.Subscribe(context.Background(), c, "collection:applications"))
	recv(t, c)
	recv(t, c) // initial snapshot
	atomic.StoreInt32(&loads, 0)

	for i := 0; i < 5; i++ {
		h.PublishCollection("applications")
	}
	assert.Equal(t, "snapshot", recv(t, c).Type) // leading edge
	assert.Equal(t, "snapshot", recv(t, c).Type) // trailing edge
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	h := NewHub()
	c := h.register(nil, Identity{UserID: 1, Role: "admin"})
	require.NoError(t, h.Subscribe(context.Background(), c, "collection:courses"))
	require.NoError(t, h.Subscribe(context.Background(), c, "document:courses/1"))

	require.NoError(t, h.Unsubscribe(c, "collection:courses"))
	assert.Equal(t, 0, h.Subscribers(CollectionTopic("courses")))
	assert.Equal(t, 1, h.Subscribers(DocumentTopic("courses", 1)))

	h.unregister(c)
	h.unregister(c)
	assert.Equal(t, 0, h.Subscribers(DocumentTopic("courses", 1)))
	assert.Equal(t, 0, h.GetClientCount())
}

func TestBroadcastToUser(t *testing.T) {
	h := NewHub()
	a := h.register(nil, Identity{UserID: 5, Role: "student"})
	b := h.register(nil, Identity{UserID: 6, Role: "student"})

	h.BroadcastToUser(5, NotificationMessage{Type: "notification", Notification: "hi"})
	raw := <-a.send
	assert.Contains(t, string(raw), `"notification":"hi"`)
	assert.Len(t, b.send, 0)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub()
	h.register(nil, Identity{UserID: 5, Role: "student"})
	for i := 0; i < sendBuffer+1; i++ {
		h.BroadcastToUser(5, Message{Type: "ping"})
	}
	assert.Equal(t, 0, h.GetClientCount())
}

func TestServeWSEndToEnd(t *testing.T) {
	h := NewHub()
	h.SetSources(ownOnly, echoSnapshot)
	go h.Run()
	defer h.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, Identity{UserID: 9, Role: "student"})
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() Message {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m Message
		require.NoError(t, ws.ReadJSON(&m))
		return m
	}

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topic: "document:students/9"}))
	assert.Equal(t, "subscribed", read().Type)
	assert.Equal(t, "snapshot", read().Type)

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topic: "document:students/10"}))
	m := read()
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, ErrForbidden.Error(), m.Error)

	h.PublishDocument("students", 9, map[string]string{"first_name": "Ana"})
	m = read()
	assert.Equal(t, "document:students/9", m.Topic)

	h.Broadcast(Message{Type: "maintenance"})
	assert.Equal(t, "maintenance", read().Type)
}
