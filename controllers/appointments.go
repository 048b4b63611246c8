package controllers

import (
	"time"

	"edupath_go/cache"
	"edupath_go/middleware"
	"edupath_go/repository"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

type AppointmentController struct {
	service  *services.AppointmentService
	students *services.StudentService
	cache    cache.Cache
}

func NewAppointmentController(service *services.AppointmentService, students *services.StudentService, c cache.Cache) *AppointmentController {
	return &AppointmentController{service: service, students: students, cache: c}
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// actor resolves the caller; students carry their profile id.
func (ac *AppointmentController) actor(c *fiber.Ctx) (services.Actor, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return services.Actor{}, err
	}
	a := services.Actor{UserID: user.ID, Role: user.Role}
	if !a.IsAdmin() {
		st, err := ac.students.ByUser(c.UserContext(), user.ID)
		if err != nil {
			return services.Actor{}, err
		}
		a.StudentID = st.ID
	}
	return a, nil
}

func (ac *AppointmentController) changed(c *fiber.Ctx, studentID uint) {
	cache.Invalidate(c.UserContext(), ac.cache, cache.PrefixAdminDashboard)
	cache.Forget(c.UserContext(), ac.cache, cache.StudentDashboardKey(studentID))
}

func parseTimeQuery(c *fiber.Ctx, name string) *time.Time {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	return nil
}

// GetAppointments lists the caller's appointments; admins see every
// appointment and may filter by student_id and advisor_id.
func (ac *AppointmentController) GetAppointments(c *fiber.Ctx) error {
	actor, err := ac.actor(c)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	page := pageFromQuery(c)
	f := repository.AppointmentFilter{
		Status: c.Query("status"),
		From:   parseTimeQuery(c, "from"),
		To:     parseTimeQuery(c, "to"),
		Page:   page,
	}
	if actor.IsAdmin() {
		f.StudentID = queryUint(c, "student_id")
		f.AdvisorID = queryUint(c, "advisor_id")
	} else {
		f.StudentID = actor.StudentID
	}
	appts, total, err := ac.service.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err, "appointments")
	}
	return c.JSON(paginated("appointments", appts, total, page))
}

func (ac *AppointmentController) GetAppointment(c *fiber.Ctx) error {
	actor, err := ac.actor(c)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid appointment ID")
	}
	appt, err := ac.service.Get(c.UserContext(), id, actor)
	if err != nil {
		return respondError(c, err, "Appointment")
	}
	return c.JSON(fiber.Map{"appointment": appt})
}

// RequestAppointment books a consultation for the calling student.
func (ac *AppointmentController) RequestAppointment(c *fiber.Ctx) error {
	actor, err := ac.actor(c)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	var in services.AppointmentRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	appt, err := ac.service.Request(c.UserContext(), actor.StudentID, in)
	if err != nil {
		return respondError(c, err, "appointment")
	}
	ac.changed(c, appt.StudentID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"appointment": appt})
}

func (ac *AppointmentController) ConfirmAppointment(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid appointment ID")
	}
	var in services.AppointmentConfirm
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	appt, err := ac.service.Confirm(c.UserContext(), id, admin.ID, in)
	if err != nil {
		return respondError(c, err, "Appointment")
	}
	ac.changed(c, appt.StudentID)
	return c.JSON(fiber.Map{"appointment": appt})
}

func (ac *AppointmentController) RescheduleAppointment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid appointment ID")
	}
	var in services.AppointmentReschedule
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	appt, err := ac.service.Reschedule(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "Appointment")
	}
	ac.changed(c, appt.StudentID)
	return c.JSON(fiber.Map{"appointment": appt})
}

// CancelAppointment is shared by admins and the owning student.
func (ac *AppointmentController) CancelAppointment(c *fiber.Ctx) error {
	actor, err := ac.actor(c)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid appointment ID")
	}
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	appt, err := ac.service.Cancel(c.UserContext(), id, actor, req.Reason)
	if err != nil {
		return respondError(c, err, "Appointment")
	}
	ac.changed(c, appt.StudentID)
	return c.JSON(fiber.Map{"appointment": appt})
}

func (ac *AppointmentController) CompleteAppointment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid appointment ID")
	}
	appt, err := ac.service.Complete(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Appointment")
	}
	ac.changed(c, appt.StudentID)
	return c.JSON(fiber.Map{"appointment": appt})
}
