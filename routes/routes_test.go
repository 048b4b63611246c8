package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/config"
	"edupath_go/controllers"
	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app   *fiber.App
	store repository.Store
	auth  *middleware.Auth
}

// newTestEnv wires the account, registration, content and inbox surface
// over an in-memory store. Handlers needing a SQL database or object
// storage stay nil and are not exercised.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)

	templates, err := config.StageTemplates()
	require.NoError(t, err)
	registrations := services.NewRegistrationService(store, nil, nil, templates, 5000)
	students := services.NewStudentService(store, c, nil)
	auth := middleware.NewAuth("routes-test-secret-0123", time.Hour, store.Users(), c)

	app := fiber.New()
	SetupRoutes(app, &Handlers{
		Auth:          auth,
		LoginLimiter:  utils.NewKeyedLimiter(100, 100, time.Minute),
		AuthC:         controllers.NewAuthController(auth, store.Users(), registrations),
		Registrations: controllers.NewRegistrationController(registrations, nil, c),
		Students:      controllers.NewStudentController(students),
		Settings:      controllers.NewSettingsController(services.NewSettingsService(store)),
		Users:         controllers.NewUserController(services.NewAccountService(store, c), nil),
		Blog:          controllers.NewBlogController(store.Blog(), c, time.Minute),
		Policies:      controllers.NewPolicyController(store.Policies(), c, nil, time.Minute),
		Notifications: controllers.NewNotificationController(store.Notifications(), nil),
	})
	return &testEnv{app: app, store: store, auth: auth}
}

func newTestApp(t *testing.T) *fiber.App {
	return newTestEnv(t).app
}

// signIn creates an active account with the given role and returns it
// with a bearer token.
func (e *testEnv) signIn(t *testing.T, email, role string) (*models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("s3cret-pass")
	require.NoError(t, err)
	user := &models.User{Email: email, Password: hash, FullName: "Test " + role, Role: role, Status: models.UserActive}
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	token, _, err := e.auth.GenerateToken(user)
	require.NoError(t, err)
	return user, token
}

func call(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRegistrationFlowThroughRoleGate(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, "POST", "/api/auth/register", "", fiber.Map{
		"email":     "Ana@Example.com",
		"password":  "s3cret-pass",
		"full_name": "Ana Silva",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, middleware.RoutePendingApproval, body["redirect"])

	status, body = call(t, app, "GET", "/api/registration/status", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	reg := body["registration"].(map[string]interface{})
	assert.Equal(t, models.RegPendingPayment, reg["status"])

	status, body = call(t, app, "POST", "/api/registration/payment", token, fiber.Map{"payment_reference": "TX-001"})
	require.Equal(t, fiber.StatusOK, status, body)
	reg = body["registration"].(map[string]interface{})
	assert.Equal(t, models.RegPaymentSubmitted, reg["status"])

	// pending accounts are held at the approval page
	status, body = call(t, app, "GET", "/api/student/profile", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, middleware.RoutePendingApproval, body["redirect"])

	status, _ = call(t, app, "GET", "/api/admin/dashboard", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestLoginLogoutAndSettings(t *testing.T) {
	app := newTestApp(t)

	status, _ := call(t, app, "POST", "/api/auth/register", "", fiber.Map{
		"email": "kim@example.com", "password": "s3cret-pass", "full_name": "Kim Lee",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = call(t, app, "POST", "/api/auth/login", "", fiber.Map{"email": "kim@example.com", "password": "wrong-pass"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := call(t, app, "POST", "/api/auth/login", "", fiber.Map{"email": "KIM@example.com", "password": "s3cret-pass"})
	require.Equal(t, fiber.StatusOK, status, body)
	token := body["token"].(string)

	status, body = call(t, app, "PUT", "/api/auth/settings", token, fiber.Map{"language": "th", "enable_email_notifications": false})
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]interface{})
	settings := data["settings"].(map[string]interface{})
	assert.Equal(t, "th", settings["language"])
	assert.Equal(t, false, settings["enable_email_notifications"])

	status, _ = call(t, app, "PUT", "/api/auth/settings", token, fiber.Map{"language": "xx"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "POST", "/api/auth/logout", token, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, "GET", "/api/auth/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/api/auth/me", "/api/registration/status", "/api/student/dashboard", "/api/admin/users"} {
		status, _ := call(t, app, "GET", path, "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, status, path)
	}
}
