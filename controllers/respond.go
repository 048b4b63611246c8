package controllers

import (
	"errors"
	"strconv"

	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/storage"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors to HTTP responses.
func respondError(c *fiber.Ctx, err error, what string) error {
	var verr *utils.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": what + " not found"})
	case errors.Is(err, services.ErrForbidden):
		msg := "Access denied"
		if err != services.ErrForbidden {
			msg = err.Error()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": msg})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrFileTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrFileTypeRejected), errors.Is(err, storage.ErrEmptyFile):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process " + what})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *fiber.Ctx, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func pageFromQuery(c *fiber.Ctx) repository.Page {
	return repository.Page{Page: c.QueryInt("page", 1), Limit: c.QueryInt("limit", 20)}.Normalize()
}

func paginated(key string, items interface{}, total int64, p repository.Page) fiber.Map {
	return fiber.Map{
		key: items,
		"pagination": fiber.Map{
			"page":        p.Page,
			"limit":       p.Limit,
			"total":       total,
			"total_pages": (total + int64(p.Limit) - 1) / int64(p.Limit),
		},
	}
}

func isAdmin(role string) bool {
	return role == models.RoleAdmin
}
