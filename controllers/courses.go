package controllers

import (
	"edupath_go/middleware"
	"edupath_go/repository"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

type CourseController struct {
	service *services.CourseService
}

func NewCourseController(service *services.CourseService) *CourseController {
	return &CourseController{service: service}
}

func courseFilter(c *fiber.Ctx, activeOnly bool) repository.CourseFilter {
	return repository.CourseFilter{
		Country:    c.Query("country"),
		Level:      c.Query("level"),
		Search:     c.Query("search"),
		ActiveOnly: activeOnly,
		Page:       pageFromQuery(c),
	}
}

// GetCourses lists the public catalogue (active courses only).
func (cc *CourseController) GetCourses(c *fiber.Ctx) error {
	return cc.list(c, courseFilter(c, true))
}

// GetAllCourses lists the catalogue for staff, including inactive courses
// unless ?active=true.
func (cc *CourseController) GetAllCourses(c *fiber.Ctx) error {
	return cc.list(c, courseFilter(c, c.QueryBool("active", false)))
}

func (cc *CourseController) list(c *fiber.Ctx, f repository.CourseFilter) error {
	page, err := cc.service.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err, "courses")
	}
	return c.JSON(paginated("courses", page.Items, page.Total, f.Page))
}

func (cc *CourseController) GetCourse(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid course ID")
	}
	course, err := cc.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Course")
	}
	if !course.Active {
		if user, err := middleware.GetCurrentUser(c); err != nil || !isAdmin(user.Role) {
			return respondError(c, services.ErrNotFound, "Course")
		}
	}
	return c.JSON(fiber.Map{"course": course})
}

func (cc *CourseController) CreateCourse(c *fiber.Ctx) error {
	var in services.CourseInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	course, err := cc.service.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err, "course")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"course": course})
}

func (cc *CourseController) UpdateCourse(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid course ID")
	}
	var in services.CourseInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	course, err := cc.service.Update(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "Course")
	}
	return c.JSON(fiber.Map{"course": course})
}

func (cc *CourseController) DeleteCourse(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid course ID")
	}
	if err := cc.service.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err, "Course")
	}
	return c.JSON(fiber.Map{"message": "Course deleted successfully"})
}

// ImportCourses upserts courses from an uploaded XLSX sheet (field "file").
func (cc *CourseController) ImportCourses(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "Unable to read uploaded file")
	}
	defer f.Close()

	rows, err := services.ParseCourseSheet(f)
	if err != nil {
		return respondError(c, err, "course import")
	}
	res, err := cc.service.ImportCourses(c.UserContext(), rows)
	if err != nil {
		return respondError(c, err, "course import")
	}
	middleware.LogActivity(c, "IMPORT", "courses", 0, res)
	return c.JSON(fiber.Map{"message": "Import completed", "result": res})
}
