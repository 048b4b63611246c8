package controllers

import (
	"context"
	"time"

	"edupath_go/middleware"
	"edupath_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub  *websocket.Hub
	auth *middleware.Auth
}

func NewWebSocketController(hub *websocket.Hub, auth *middleware.Auth) *WebSocketController {
	return &WebSocketController{hub: hub, auth: auth}
}

// Upgrade rejects non-websocket requests before the handshake.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
	})
}

// WebSocketHandler returns a Fiber WebSocket handler that validates the JWT
// from ?token= and connects the listener to the hub.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("WebSocket handler panic")
			}
		}()

		token := c.Query("token")
		if token == "" {
			logrus.Warn("WebSocket connection rejected: missing token")
			reject(c, "Missing token")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		user, _, err := wsc.auth.Authenticate(ctx, token)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("WebSocket connection rejected: invalid token")
			reject(c, "Invalid token")
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, websocket.Identity{UserID: user.ID, Role: user.Role})
	})
}

func reject(c *fiberws.Conn, reason string) {
	_ = c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, reason))
	_ = c.Close()
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
