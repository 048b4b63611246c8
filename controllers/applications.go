package controllers

import (
	"edupath_go/cache"
	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/storage"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ApplicationController struct {
	service  *services.ApplicationService
	students *services.StudentService
	uploader storage.Uploader
	cache    cache.Cache
}

func NewApplicationController(service *services.ApplicationService, students *services.StudentService, uploader storage.Uploader, c cache.Cache) *ApplicationController {
	return &ApplicationController{service: service, students: students, uploader: uploader, cache: c}
}

func (ac *ApplicationController) invalidate(c *fiber.Ctx, studentID uint) {
	cache.Invalidate(c.UserContext(), ac.cache, cache.PrefixAdminDashboard)
	cache.Forget(c.UserContext(), ac.cache, cache.StudentDashboardKey(studentID))
}

// ownApplication loads an application of the calling student.
func (ac *ApplicationController) ownApplication(c *fiber.Ctx) (*models.Application, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return nil, err
	}
	st, err := ac.students.ByUser(c.UserContext(), user.ID)
	if err != nil {
		return nil, err
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, services.ErrNotFound
	}
	return ac.service.GetForStudent(c.UserContext(), id, st.ID)
}

// GetMyApplications lists the caller's applications with derived status.
func (ac *ApplicationController) GetMyApplications(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	st, err := ac.students.ByUser(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "Student profile")
	}
	page := pageFromQuery(c)
	apps, total, err := ac.service.List(c.UserContext(), repository.ApplicationFilter{StudentID: st.ID, Page: page})
	if err != nil {
		return respondError(c, err, "applications")
	}
	return c.JSON(paginated("applications", utils.ToApplicationDTOs(apps), total, page))
}

func (ac *ApplicationController) GetMyApplication(c *fiber.Ctx) error {
	app, err := ac.ownApplication(c)
	if err != nil {
		return respondError(c, err, "Application")
	}
	return c.JSON(fiber.Map{"application": utils.ToApplicationDTO(*app)})
}

// UploadMyDocument attaches a file sent as multipart field "file".
func (ac *ApplicationController) UploadMyDocument(c *fiber.Ctx) error {
	app, err := ac.ownApplication(c)
	if err != nil {
		return respondError(c, err, "Application")
	}
	return ac.upload(c, app)
}

func (ac *ApplicationController) GetApplications(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	apps, total, err := ac.service.List(c.UserContext(), repository.ApplicationFilter{
		StudentID: queryUint(c, "student_id"),
		Status:    c.Query("status"),
		Page:      page,
	})
	if err != nil {
		return respondError(c, err, "applications")
	}
	return c.JSON(paginated("applications", utils.ToApplicationDTOs(apps), total, page))
}

func (ac *ApplicationController) GetApplication(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	app, err := ac.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Application")
	}
	return c.JSON(fiber.Map{"application": utils.ToApplicationDTO(*app)})
}

func (ac *ApplicationController) CreateApplication(c *fiber.Ctx) error {
	var in services.ApplicationInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if in.StudentID == 0 {
		return badRequest(c, "student_id is required")
	}
	if _, err := ac.students.Get(c.UserContext(), in.StudentID); err != nil {
		return respondError(c, err, "Student")
	}
	app, err := ac.service.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err, "application")
	}
	ac.invalidate(c, app.StudentID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"application": utils.ToApplicationDTO(*app)})
}

func (ac *ApplicationController) UpdateApplication(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	var in services.ApplicationInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	app, err := ac.service.Update(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "Application")
	}
	ac.invalidate(c, app.StudentID)
	return c.JSON(fiber.Map{"application": utils.ToApplicationDTO(*app)})
}

func (ac *ApplicationController) DeleteApplication(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	app, err := ac.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Application")
	}
	if err := ac.service.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err, "Application")
	}
	for _, doc := range app.Documents {
		ac.deleteObject(c, doc.URL)
	}
	ac.invalidate(c, app.StudentID)
	return c.JSON(fiber.Map{"message": "Application deleted successfully"})
}

// UpdateStage sets a progress stage status; the derived status follows
// after the debounce window.
func (ac *ApplicationController) UpdateStage(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	stageID, ok := paramID(c, "stageId")
	if !ok {
		return badRequest(c, "Invalid stage ID")
	}
	var in services.StageUpdateInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	stage, err := ac.service.UpdateStage(c.UserContext(), id, stageID, admin.ID, in)
	if err != nil {
		return respondError(c, err, "Stage")
	}
	return c.JSON(fiber.Map{"stage": stage})
}

func (ac *ApplicationController) UploadDocument(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	app, err := ac.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Application")
	}
	return ac.upload(c, app)
}

func (ac *ApplicationController) DeleteDocument(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid application ID")
	}
	docID, ok := paramID(c, "docId")
	if !ok {
		return badRequest(c, "Invalid document ID")
	}
	doc, err := ac.service.DeleteDocument(c.UserContext(), id, docID)
	if err != nil {
		return respondError(c, err, "Document")
	}
	ac.deleteObject(c, doc.URL)
	return c.JSON(fiber.Map{"message": "Document deleted successfully"})
}

func (ac *ApplicationController) upload(c *fiber.Ctx, app *models.Application) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	if ac.uploader == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	docType := c.FormValue("type", models.DocOther)
	// Reject bad types before anything reaches the bucket.
	if err := utils.ValidateStruct(services.DocumentInput{Type: docType, FileName: fh.Filename, URL: "pending"}); err != nil {
		return respondError(c, err, "document")
	}
	obj, err := ac.uploader.UploadFile(c.UserContext(), fh, "documents", app.StudentID)
	if err != nil {
		return respondError(c, err, "document")
	}
	doc, err := ac.service.AddDocument(c.UserContext(), app.ID, user.ID, services.DocumentInput{
		Type:     docType,
		FileName: obj.FileName,
		URL:      obj.Key,
		Size:     obj.Size,
	})
	if err != nil {
		ac.deleteObject(c, obj.Key)
		return respondError(c, err, "document")
	}
	ac.invalidate(c, app.StudentID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"document": doc})
}

func (ac *ApplicationController) deleteObject(c *fiber.Ctx, ref string) {
	if ac.uploader == nil || ref == "" {
		return
	}
	if err := ac.uploader.DeleteFile(c.UserContext(), storage.ExtractKey(ref)); err != nil {
		logrus.WithError(err).WithField("key", ref).Warn("Failed to delete stored object")
	}
}
