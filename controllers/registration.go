package controllers

import (
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/middleware"
	"edupath_go/services"
	"edupath_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const receiptURLTTL = 15 * time.Minute

type RegistrationController struct {
	service  *services.RegistrationService
	uploader storage.Uploader
	cache    cache.Cache
}

func NewRegistrationController(service *services.RegistrationService, uploader storage.Uploader, c cache.Cache) *RegistrationController {
	return &RegistrationController{service: service, uploader: uploader, cache: c}
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (rc *RegistrationController) receiptLink(key string) string {
	if key == "" || rc.uploader == nil {
		return ""
	}
	url, err := rc.uploader.PresignURL(storage.ExtractKey(key), receiptURLTTL)
	if err != nil {
		logrus.WithError(err).Warn("Failed to presign receipt")
		return ""
	}
	return url
}

// GetStatus returns the caller's own registration queue entry.
func (rc *RegistrationController) GetStatus(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	reg, err := rc.service.Status(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "Registration")
	}
	return c.JSON(fiber.Map{
		"registration": reg,
		"receipt_url":  rc.receiptLink(reg.ReceiptURL),
		"redirect":     middleware.ResolveRoute(user).Redirect,
	})
}

// SubmitPayment accepts a payment reference and an optional receipt file
// sent as multipart field "receipt".
func (rc *RegistrationController) SubmitPayment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var in services.PaymentInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		in.Reference = c.FormValue("payment_reference")
		if fh, err := c.FormFile("receipt"); err == nil {
			if rc.uploader == nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
			}
			obj, err := rc.uploader.UploadFile(c.UserContext(), fh, "receipts", user.ID)
			if err != nil {
				return respondError(c, err, "receipt")
			}
			in.ReceiptURL = obj.Key
		}
	} else if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reg, err := rc.service.SubmitPayment(c.UserContext(), user.ID, in)
	if err != nil {
		return respondError(c, err, "Registration")
	}
	cache.Invalidate(c.UserContext(), rc.cache, cache.PrefixAdminDashboard)
	middleware.LogActivity(c, "UPDATE", "registrations", reg.ID, fiber.Map{"status": reg.Status})
	return c.JSON(fiber.Map{
		"message":      "Payment submitted",
		"registration": reg,
	})
}

// ListRegistrations returns the queue, optionally filtered by ?status=.
func (rc *RegistrationController) ListRegistrations(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	regs, total, err := rc.service.List(c.UserContext(), c.Query("status"), page)
	if err != nil {
		return respondError(c, err, "registrations")
	}
	return c.JSON(paginated("registrations", regs, total, page))
}

func (rc *RegistrationController) GetRegistration(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration ID")
	}
	reg, err := rc.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "Registration")
	}
	return c.JSON(fiber.Map{
		"registration": reg,
		"receipt_url":  rc.receiptLink(reg.ReceiptURL),
	})
}

func (rc *RegistrationController) VerifyPayment(c *fiber.Ctx) error {
	return rc.decide(c, func(id, adminID uint) (interface{}, error) {
		return rc.service.VerifyPayment(c.UserContext(), id, adminID)
	}, "Payment verified")
}

func (rc *RegistrationController) Approve(c *fiber.Ctx) error {
	return rc.decide(c, func(id, adminID uint) (interface{}, error) {
		return rc.service.Approve(c.UserContext(), id, adminID)
	}, "Registration approved")
}

func (rc *RegistrationController) Reject(c *fiber.Ctx) error {
	var req RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	return rc.decide(c, func(id, adminID uint) (interface{}, error) {
		return rc.service.Reject(c.UserContext(), id, adminID, req.Reason)
	}, "Registration rejected")
}

func (rc *RegistrationController) decide(c *fiber.Ctx, fn func(id, adminID uint) (interface{}, error), message string) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration ID")
	}
	result, err := fn(id, admin.ID)
	if err != nil {
		return respondError(c, err, "Registration")
	}
	cache.Invalidate(c.UserContext(), rc.cache, cache.PrefixAdminDashboard)
	middleware.LogActivity(c, "UPDATE", "registrations", id, fiber.Map{"result": message})
	return c.JSON(fiber.Map{"message": message, "result": result})
}
