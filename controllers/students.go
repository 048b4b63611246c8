package controllers

import (
	"edupath_go/middleware"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

// StudentController serves the general-info profile.
type StudentController struct {
	service *services.StudentService
}

func NewStudentController(service *services.StudentService) *StudentController {
	return &StudentController{service: service}
}

// GetMyProfile returns the caller's own general information.
func (sc *StudentController) GetMyProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	st, err := sc.service.ByUser(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	return c.JSON(fiber.Map{"student": st})
}

func (sc *StudentController) UpdateMyProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	st, err := sc.service.ByUser(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	return sc.update(c, st.ID)
}

func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	students, total, err := sc.service.List(c.UserContext(), c.Query("search"), page)
	if err != nil {
		return respondError(c, err, "students")
	}
	return c.JSON(paginated("students", students, total, page))
}

func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	st, err := sc.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Student")
	}
	return c.JSON(fiber.Map{"student": st})
}

// UpdateStudent lets staff edit any profile.
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	return sc.update(c, id)
}

func (sc *StudentController) UpdateAdvising(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	var in services.AdvisorInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	st, err := sc.service.UpdateAdvising(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "Student")
	}
	return c.JSON(fiber.Map{"student": st})
}

func (sc *StudentController) update(c *fiber.Ctx, id uint) error {
	var in services.ProfileInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	st, err := sc.service.UpdateProfile(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "Student")
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated",
		"student": st,
	})
}
