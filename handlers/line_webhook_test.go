package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "line-secret"

type recordingReplier struct {
	mu      sync.Mutex
	replies []string
}

func (r *recordingReplier) Reply(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

func (r *recordingReplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

func newTestHandler(t *testing.T) (*LineWebhookHandler, *repository.MemoryStore, *recordingReplier, *models.User) {
	t.Helper()
	store := repository.NewMemoryStore()
	codes := cache.NewMemoryCache(0)
	t.Cleanup(codes.Close)
	h := NewLineWebhookHandler(testSecret, nil, store.Users(), codes)
	replier := &recordingReplier{}
	h.SetReplier(replier)

	user := &models.User{Email: "student@example.com", Password: "x", Role: models.RoleStudent, Status: models.UserActive}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return h, store, replier, user
}

func issueCode(t *testing.T, h *LineWebhookHandler, user *models.User) string {
	t.Helper()
	app := fiber.New()
	app.Post("/link", func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	}, h.IssueLinkCode)

	resp, err := app.Test(httptest.NewRequest("POST", "/link", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Code      string `json:"code"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Code, linkCodeLength)
	assert.Equal(t, 600, body.ExpiresIn)
	return body.Code
}

func textEvent(lineUserID, text string) *linebot.Event {
	return &linebot.Event{
		Type:       linebot.EventTypeMessage,
		ReplyToken: "reply-token",
		Source:     &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: lineUserID},
		Message:    &linebot.TextMessage{ID: "1", Text: text},
	}
}

func TestLinkCodeLinksAccount(t *testing.T) {
	h, store, replier, user := newTestHandler(t)
	code := issueCode(t, h, user)

	h.ProcessEvents(context.Background(), []*linebot.Event{textEvent("U123", " "+code+" ")})

	got, err := store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "U123", got.LineID)
	assert.Equal(t, 1, replier.count())

	// codes are single use
	h.ProcessEvents(context.Background(), []*linebot.Event{textEvent("U999", code)})
	got, err = store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "U123", got.LineID)
}

func TestUnknownCodeIsRejected(t *testing.T) {
	h, store, replier, user := newTestHandler(t)

	h.ProcessEvents(context.Background(), []*linebot.Event{textEvent("U123", "ZZZZZZ")})

	got, err := store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LineID)
	assert.Equal(t, 1, replier.count())

	// chatter that cannot be a code is ignored silently
	h.ProcessEvents(context.Background(), []*linebot.Event{textEvent("U123", "hello there")})
	assert.Equal(t, 1, replier.count())
}

func TestUnfollowClearsLink(t *testing.T) {
	h, store, _, user := newTestHandler(t)
	user.LineID = "U555"
	require.NoError(t, store.Users().Update(context.Background(), user))

	h.ProcessEvents(context.Background(), []*linebot.Event{{
		Type:   linebot.EventTypeUnfollow,
		Source: &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: "U555"},
	}})

	got, err := store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LineID)
}

func TestHandleValidatesSignature(t *testing.T) {
	h, store, _, user := newTestHandler(t)
	code := issueCode(t, h, user)

	app := fiber.New()
	app.Post("/webhook", h.Handle)

	body := []byte(`{"destination":"x","events":[{"type":"message","replyToken":"r","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U777"},"message":{"type":"text","id":"42","text":"` + code + `"}}]}`)

	send := func(signature string) int {
		req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Line-Signature", signature)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusBadRequest, send(""))
	assert.Equal(t, fiber.StatusUnauthorized, send(computeSignature("wrong", body)))
	assert.Equal(t, fiber.StatusOK, send(computeSignature(testSecret, body)))

	assert.Eventually(t, func() bool {
		got, err := store.Users().GetByID(context.Background(), user.ID)
		return err == nil && got.LineID == "U777"
	}, time.Second, 10*time.Millisecond)
}
