package controllers

import (
	"time"

	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/services/notifications"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	inbox    repository.NotificationRepository
	notifier services.Notifier
	now      func() time.Time
}

func NewNotificationController(inbox repository.NotificationRepository, notifier services.Notifier) *NotificationController {
	return &NotificationController{inbox: inbox, notifier: notifier, now: time.Now}
}

type CreateNotificationRequest struct {
	UserIDs  []uint   `json:"user_ids"`
	Role     string   `json:"role" validate:"omitempty,oneof=student admin pending"`
	Title    string   `json:"title" validate:"required,max=255"`
	Message  string   `json:"message" validate:"required"`
	Type     string   `json:"type" validate:"required,oneof=info warning error success"`
	Channels []string `json:"channels" validate:"omitempty,dive,oneof=normal popup line email"`
	Data     any      `json:"data"`
}

func toDTOs(list []models.Notification) []utils.NotificationDTO {
	out := make([]utils.NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, utils.ToNotificationDTO(n))
	}
	return out
}

// GetNotifications returns notifications for the current user
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	page := pageFromQuery(c)

	f := repository.NotificationFilter{UserID: user.ID, Type: c.Query("type"), Page: page}
	switch c.Query("read") {
	case "true":
		read := true
		f.Read = &read
	case "false":
		read := false
		f.Read = &read
	}
	if c.QueryBool("unread", false) {
		read := false
		f.Read = &read
	}

	list, total, err := nc.inbox.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err, "notifications")
	}
	return c.JSON(paginated("notifications", toDTOs(list), total, page))
}

func (nc *NotificationController) own(c *fiber.Ctx) (*models.Notification, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return nil, err
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, services.ErrNotFound
	}
	return nc.inbox.GetForUser(c.UserContext(), id, user.ID)
}

// GetNotification returns a specific notification
func (nc *NotificationController) GetNotification(c *fiber.Ctx) error {
	n, err := nc.own(c)
	if err != nil {
		return respondError(c, err, "Notification")
	}
	return c.JSON(fiber.Map{"notification": utils.ToNotificationDTO(*n)})
}

// CreateNotification sends a notification to users or to a role (admin only)
func (nc *NotificationController) CreateNotification(c *fiber.Ctx) error {
	var req CreateNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err, "notification")
	}
	if len(req.UserIDs) == 0 && req.Role == "" {
		return badRequest(c, "Must specify user_ids or role")
	}

	p := notifications.WithData(req.Title, req.Message, req.Type, req.Data, req.Channels...)
	var err error
	if len(req.UserIDs) > 0 {
		err = nc.notifier.EnqueueOrCreate(c.UserContext(), req.UserIDs, p)
	} else {
		err = nc.notifier.NotifyRole(c.UserContext(), req.Role, p)
	}
	if err != nil {
		return respondError(c, err, "notification")
	}

	middleware.LogActivity(c, "CREATE", "notifications", 0, fiber.Map{
		"target_users": len(req.UserIDs),
		"role":         req.Role,
		"title":        req.Title,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Notifications created successfully"})
}

// MarkAsRead marks a notification as read
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	n, err := nc.own(c)
	if err != nil {
		return respondError(c, err, "Notification")
	}
	if err := nc.inbox.MarkRead(c.UserContext(), n.ID, nc.now()); err != nil {
		return respondError(c, err, "notification")
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks all notifications as read for the current user
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	updated, err := nc.inbox.MarkAllRead(c.UserContext(), user.ID, nc.now())
	if err != nil {
		return respondError(c, err, "notifications")
	}
	return c.JSON(fiber.Map{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

// DeleteNotification deletes a notification
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	n, err := nc.own(c)
	if err != nil {
		return respondError(c, err, "Notification")
	}
	if err := nc.inbox.Delete(c.UserContext(), n.ID); err != nil {
		return respondError(c, err, "notification")
	}
	return c.JSON(fiber.Map{"message": "Notification deleted successfully"})
}

// GetUnreadCount returns the count of unread notifications for the current user
func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	count, err := nc.inbox.CountUnread(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "notifications")
	}
	return c.JSON(fiber.Map{"unread_count": count})
}
