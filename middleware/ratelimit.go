package middleware

import (
	"encoding/json"
	"time"

	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
)

// LoginRateLimit throttles credential attempts per client IP and per email.
func LoginRateLimit(limiter *utils.KeyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		now := time.Now()
		if !limiter.Allow("ip:"+c.IP(), now) {
			return tooManyAttempts(c)
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil && body.Email != "" {
			if !limiter.Allow("email:"+utils.NormalizeEmail(body.Email), now) {
				return tooManyAttempts(c)
			}
		}
		return c.Next()
	}
}

func tooManyAttempts(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "60")
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "Too many login attempts, please try again later",
	})
}
