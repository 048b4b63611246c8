package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/middleware"
	"edupath_go/repository"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

const (
	linkCodePrefix = "line:link:"
	linkCodeLength = 6
	linkCodeTTL    = 10 * time.Minute
)

// Replier sends a reply to a webhook event. *linebot.Client satisfies it
// through botReplier.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type botReplier struct{ bot *linebot.Client }

func (r botReplier) Reply(ctx context.Context, replyToken, text string) error {
	_, err := r.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	return err
}

// LineWebhookHandler links LINE accounts to portal users so the "line"
// notification channel can reach them.
type LineWebhookHandler struct {
	secret  string
	replier Replier
	users   repository.UserRepository
	codes   cache.Cache
}

// NewLineWebhookHandler returns a handler; a nil bot disables replies.
func NewLineWebhookHandler(secret string, bot *linebot.Client, users repository.UserRepository, codes cache.Cache) *LineWebhookHandler {
	h := &LineWebhookHandler{secret: secret, users: users, codes: codes}
	if bot != nil {
		h.replier = botReplier{bot: bot}
	}
	return h
}

// SetReplier replaces the reply transport.
func (h *LineWebhookHandler) SetReplier(r Replier) {
	h.replier = r
}

// IssueLinkCode gives the signed-in user a one-time code to send to the
// LINE official account.
func (h *LineWebhookHandler) IssueLinkCode(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	code, err := utils.GenerateRandomString(linkCodeLength)
	if err != nil {
		return err
	}
	code = strings.ToUpper(code)
	uid := []byte(strconv.FormatUint(uint64(user.ID), 10))
	if err := h.codes.Set(c.UserContext(), linkCodePrefix+code, uid, linkCodeTTL); err != nil {
		logrus.WithError(err).Error("Failed to store LINE link code")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create link code"})
	}
	return c.JSON(fiber.Map{
		"code":       code,
		"expires_in": int(linkCodeTTL.Seconds()),
	})
}

// Handle receives webhook events.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret == "" {
		return c.SendStatus(fiber.StatusOK)
	}
	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateSignature(h.secret, c.Body(), signature) {
		logrus.Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(c.Body(), &webhook); err != nil {
		logrus.WithError(err).Warn("Failed to parse LINE webhook body")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	// Acknowledge first; LINE verifies the endpoint by status alone.
	go func(events []*linebot.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.ProcessEvents(ctx, events)
	}(webhook.Events)

	return c.SendStatus(fiber.StatusOK)
}

// ProcessEvents applies follow, unfollow and link-code message events.
func (h *LineWebhookHandler) ProcessEvents(ctx context.Context, events []*linebot.Event) {
	for _, event := range events {
		if event == nil || event.Source == nil || event.Source.UserID == "" {
			continue
		}
		lineID := event.Source.UserID
		switch event.Type {
		case linebot.EventTypeFollow:
			h.reply(ctx, event.ReplyToken, "Welcome to EduPath! Send the link code from your portal profile to receive updates here.")
		case linebot.EventTypeUnfollow:
			h.unlink(ctx, lineID)
		case linebot.EventTypeMessage:
			msg, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			h.link(ctx, event.ReplyToken, lineID, strings.ToUpper(strings.TrimSpace(msg.Text)))
		}
	}
}

func (h *LineWebhookHandler) link(ctx context.Context, replyToken, lineID, code string) {
	if len(code) != linkCodeLength {
		return
	}
	raw, ok, err := h.codes.Get(ctx, linkCodePrefix+code)
	if err != nil || !ok {
		h.reply(ctx, replyToken, "That code is invalid or has expired. Please request a new one in the portal.")
		return
	}
	parsed, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return
	}
	userID := uint(parsed)
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("LINE link: user not found")
		return
	}
	user.LineID = lineID
	if err := h.users.Update(ctx, user); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("LINE link: update failed")
		return
	}
	if err := h.codes.Delete(ctx, linkCodePrefix+code); err != nil {
		logrus.WithError(err).Warn("LINE link: code cleanup failed")
	}
	logrus.WithField("user_id", userID).Info("LINE account linked")
	h.reply(ctx, replyToken, "Your LINE account is now linked. You will receive application updates here.")
}

func (h *LineWebhookHandler) unlink(ctx context.Context, lineID string) {
	user, err := h.users.GetByLineID(ctx, lineID)
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("LINE unlink: lookup failed")
		return
	}
	user.LineID = ""
	if err := h.users.Update(ctx, user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("LINE unlink: update failed")
		return
	}
	logrus.WithField("user_id", user.ID).Info("LINE account unlinked")
}

func (h *LineWebhookHandler) reply(ctx context.Context, token, text string) {
	if h.replier == nil || token == "" {
		return
	}
	if err := h.replier.Reply(ctx, token, text); err != nil {
		logrus.WithError(err).Warn("LINE reply failed")
	}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(computeSignature(secret, body)))
}
