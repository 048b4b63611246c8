package controllers

import (
	"edupath_go/middleware"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

type SettingsController struct {
	service *services.SettingsService
}

func NewSettingsController(service *services.SettingsService) *SettingsController {
	return &SettingsController{service: service}
}

func (sc *SettingsController) GetMySettings(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	return sc.respond(c, user.ID)
}

func (sc *SettingsController) UpdateMySettings(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	return sc.update(c, user.ID)
}

// GetUserSettings lets an admin inspect another user's preferences.
func (sc *SettingsController) GetUserSettings(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	return sc.respond(c, id)
}

func (sc *SettingsController) UpdateUserSettings(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	return sc.update(c, id)
}

func (sc *SettingsController) respond(c *fiber.Ctx, userID uint) error {
	settings, err := sc.service.Get(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "settings")
	}
	return c.JSON(sc.service.Response(c.UserContext(), settings))
}

func (sc *SettingsController) update(c *fiber.Ctx, userID uint) error {
	var req services.UpdateUserSettingsInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	settings, err := sc.service.Update(c.UserContext(), userID, req)
	if err != nil {
		return respondError(c, err, "User")
	}
	middleware.LogActivity(c, "UPDATE", "settings", userID, req)
	return c.JSON(fiber.Map{
		"message": "Settings updated successfully",
		"data":    sc.service.Response(c.UserContext(), settings),
	})
}
