package controllers

import (
	"errors"
	"time"

	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	auth          *middleware.Auth
	users         repository.UserRepository
	registrations *services.RegistrationService
}

func NewAuthController(auth *middleware.Auth, users repository.UserRepository, registrations *services.RegistrationService) *AuthController {
	return &AuthController{auth: auth, users: users, registrations: registrations}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (ac *AuthController) tokenResponse(c *fiber.Ctx, status int, user *models.User, extra fiber.Map) error {
	token, expires, err := ac.auth.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}
	body := fiber.Map{
		"token":      token,
		"expires_at": expires,
		"user":       user,
		"redirect":   middleware.ResolveRoute(user).Redirect,
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// Register creates a pending account and its registration queue entry.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	user, reg, err := ac.registrations.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "registration")
	}

	middleware.LogActivity(c, "CREATE", "users", user.ID, fiber.Map{"email": user.Email})
	return ac.tokenResponse(c, fiber.StatusCreated, user, fiber.Map{
		"message":      "Registration received",
		"registration": reg,
	})
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err, "login")
	}

	user, err := ac.users.GetByEmail(c.UserContext(), utils.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
		}
		return respondError(c, err, "login")
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		middleware.LogActivity(c, "LOGIN_FAILED", "auth", user.ID, nil)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}
	if user.Status != models.UserActive {
		decision := middleware.ResolveRoute(user)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":    "Account is not active",
			"reason":   decision.Reason,
			"redirect": decision.Redirect,
		})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := ac.users.Update(c.UserContext(), user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{"role": user.Role})
	return ac.tokenResponse(c, fiber.StatusOK, user, nil)
}

// Logout revokes the current JWT for the rest of its lifetime
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	claims, _ := middleware.GetCurrentClaims(c)
	if token != "" {
		if err := ac.auth.Revoke(c.UserContext(), token, claims); err != nil {
			logrus.WithError(err).Warn("Failed to revoke token")
		}
	}
	if user, err := middleware.GetCurrentUser(c); err == nil {
		middleware.LogActivity(c, "LOGOUT", "auth", user.ID, nil)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// GetProfile returns the signed-in user and where the portal should send them.
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	decision := middleware.ResolveRoute(user)
	return c.JSON(fiber.Map{
		"user":     user,
		"redirect": decision.Redirect,
		"reason":   decision.Reason,
	})
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err, "password")
	}
	if err := utils.CheckPassword(req.CurrentPassword, user.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Current password is incorrect"})
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return respondError(c, err, "password")
	}
	user.Password = hash
	if err := ac.users.Update(c.UserContext(), user); err != nil {
		return respondError(c, err, "password")
	}

	middleware.LogActivity(c, "UPDATE", "users", user.ID, fiber.Map{"field": "password"})
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
