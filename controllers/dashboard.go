package controllers

import (
	"edupath_go/middleware"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

type DashboardController struct {
	service *services.DashboardService
}

func NewDashboardController(service *services.DashboardService) *DashboardController {
	return &DashboardController{service: service}
}

func (dc *DashboardController) GetAdminStats(c *fiber.Ctx) error {
	stats, err := dc.service.AdminStats(c.UserContext())
	if err != nil {
		return respondError(c, err, "dashboard")
	}
	return c.JSON(stats)
}

func (dc *DashboardController) GetStudentDashboard(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	d, err := dc.service.Student(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	return c.JSON(d)
}
