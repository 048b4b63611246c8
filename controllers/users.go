package controllers

import (
	"context"
	"time"

	"edupath_go/middleware"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/storage"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var avatarExtensions = []string{"jpg", "jpeg", "png", "webp"}

const avatarURLTTL = 24 * time.Hour

// UserController manages portal accounts. Only admins reach it, except for
// the avatar upload.
type UserController struct {
	accounts *services.AccountService
	uploader storage.Uploader
}

func NewUserController(accounts *services.AccountService, uploader storage.Uploader) *UserController {
	return &UserController{accounts: accounts, uploader: uploader}
}

// GetUsers lists accounts filtered by role, status and a name/email search.
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	users, total, err := uc.accounts.List(c.UserContext(), repository.UserFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   page,
	})
	if err != nil {
		return respondError(c, err, "users")
	}
	return c.JSON(paginated("users", users, total, page))
}

func (uc *UserController) GetUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	user, err := uc.accounts.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "User")
	}
	return c.JSON(fiber.Map{"user": user})
}

// CreateUser adds an advisor or a student account directly, bypassing the
// registration queue.
func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req services.CreateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	user, err := uc.accounts.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "user")
	}
	middleware.LogActivity(c, "CREATE", "users", user.ID, fiber.Map{"email": user.Email, "role": user.Role})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// UpdateUser edits contact details, role and status. Setting a status
// other than active locks the account out on its next request.
func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	var req services.UpdateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	user, err := uc.accounts.Update(c.UserContext(), id, current.ID, req)
	if err != nil {
		return respondError(c, err, "User")
	}
	middleware.LogActivity(c, "UPDATE", "users", user.ID, req)

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    user,
	})
}

// DeleteUser soft deletes an account.
func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	user, err := uc.accounts.Delete(c.UserContext(), id, current.ID)
	if err != nil {
		return respondError(c, err, "User")
	}
	middleware.LogActivity(c, "DELETE", "users", user.ID, fiber.Map{"email": user.Email})

	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}

// UploadAvatar replaces the signed-in user's avatar. The object key is
// stored; the response carries a presigned URL.
func (uc *UserController) UploadAvatar(c *fiber.Ctx) error {
	if uc.uploader == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
	}
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("avatar")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}
	if !utils.IsValidFileExtension(file.Filename, avatarExtensions) {
		return badRequest(c, "Avatar must be an image")
	}

	obj, err := uc.uploader.UploadFile(c.UserContext(), file, "avatars", current.ID)
	if err != nil {
		return respondError(c, err, "avatar")
	}
	old, err := uc.accounts.SetAvatar(c.UserContext(), current.ID, obj.Key)
	if err != nil {
		return respondError(c, err, "avatar")
	}
	if old != "" {
		go func(key string) {
			if err := uc.uploader.DeleteFile(context.Background(), key); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("old avatar not deleted")
			}
		}(storage.ExtractKey(old))
	}

	middleware.LogActivity(c, "UPDATE", "users", current.ID, fiber.Map{"action": "avatar_upload"})

	url, err := uc.uploader.PresignURL(obj.Key, avatarURLTTL)
	if err != nil {
		return respondError(c, err, "avatar")
	}
	return c.JSON(fiber.Map{
		"message": "Avatar uploaded successfully",
		"avatar":  obj.Key,
		"url":     url,
	})
}
