package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

const (
	blacklistPrefix = "blacklist:jwt:"
	// Logout keeps a token blacklisted this long when its expiry is unknown.
	defaultRevokeTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")
	ErrInactiveUser = errors.New("user not found or inactive")
	// ErrRevocationUnavailable means the blacklist could not be read. The
	// token is refused rather than trusted.
	ErrRevocationUnavailable = errors.New("token revocation check unavailable")
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth issues and verifies bearer tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
	users  repository.UserRepository
	tokens cache.Cache
	now    func() time.Time
}

// NewAuth returns an Auth signing with secret. Revoked tokens are kept in
// tokens; a nil cache disables logout revocation.
func NewAuth(secret string, ttl time.Duration, users repository.UserRepository, tokens cache.Cache) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, users: users, tokens: tokens, now: time.Now}
}

// GenerateToken creates a new JWT token for a user
func (a *Auth) GenerateToken(user *models.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	return signed, expires, err
}

// Parse validates the signature and time claims of a token.
func (a *Auth) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a token to its active user. Pending users are
// accepted; the role gate decides what they may reach.
func (a *Auth) Authenticate(ctx context.Context, tokenString string) (*models.User, *Claims, error) {
	claims, err := a.Parse(tokenString)
	if err != nil {
		return nil, nil, err
	}
	if a.tokens != nil {
		_, revoked, err := a.tokens.Get(ctx, blacklistPrefix+tokenString)
		if err != nil {
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("token blacklist lookup failed")
			return nil, nil, ErrRevocationUnavailable
		}
		if revoked {
			return nil, nil, ErrRevokedToken
		}
	}
	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil || user.Status != models.UserActive {
		return nil, nil, ErrInactiveUser
	}
	return user, claims, nil
}

// Revoke blacklists a token until it would have expired.
func (a *Auth) Revoke(ctx context.Context, tokenString string, claims *Claims) error {
	if a.tokens == nil {
		return nil
	}
	ttl := defaultRevokeTTL
	if claims != nil && claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(a.now())
	}
	if ttl <= 0 {
		return nil
	}
	return a.tokens.Set(ctx, blacklistPrefix+tokenString, []byte("1"), ttl)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) (string, bool) {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// JWTMiddleware validates JWT tokens
func (a *Auth) JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}
		tokenString, ok := BearerToken(authHeader)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		user, claims, err := a.Authenticate(c.UserContext(), tokenString)
		switch {
		case errors.Is(err, ErrRevokedToken):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token has been revoked"})
		case errors.Is(err, ErrInactiveUser):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
		case errors.Is(err, ErrRevocationUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Authentication temporarily unavailable"})
		case err != nil:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		c.Locals("user", user)
		c.Locals("claims", claims)
		c.Locals("token", tokenString)
		return c.Next()
	}
}

// RequireRole middleware checks if user has required role. The role is
// read from the loaded user so promotions apply without a new token.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user claims",
			})
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		body := fiber.Map{"error": "Insufficient permissions"}
		if user.Role == models.RolePending {
			body["error"] = "Account awaiting approval"
			body["redirect"] = RoutePendingApproval
		}
		return c.Status(fiber.StatusForbidden).JSON(body)
	}
}

func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

func RequireStudent() fiber.Handler {
	return RequireRole(models.RoleStudent)
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
