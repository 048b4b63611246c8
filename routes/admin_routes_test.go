package routes

import (
	"context"
	"fmt"
	"testing"

	"edupath_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idOf(t *testing.T, body map[string]interface{}, key string) uint {
	t.Helper()
	obj, ok := body[key].(map[string]interface{})
	require.True(t, ok, body)
	return uint(obj["id"].(float64))
}

func TestAdminCannotDemoteDeactivateOrDeleteThemselves(t *testing.T) {
	env := newTestEnv(t)
	admin, token := env.signIn(t, "admin@example.com", models.RoleAdmin)
	self := fmt.Sprintf("/api/admin/users/%d", admin.ID)

	status, body := call(t, env.app, "PUT", self, token, fiber.Map{"role": models.RoleStudent})
	assert.Equal(t, fiber.StatusForbidden, status, body)
	assert.Contains(t, body["error"], "your own account")

	status, _ = call(t, env.app, "PUT", self, token, fiber.Map{"status": models.UserInactive})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = call(t, env.app, "DELETE", self, token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	// still a working admin
	status, body = call(t, env.app, "PUT", self, token, fiber.Map{"full_name": "Dana Advisor"})
	require.Equal(t, fiber.StatusOK, status, body)
	status, _ = call(t, env.app, "GET", "/api/admin/users", token, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signIn(t, "admin@example.com", models.RoleAdmin)
	pending, _ := env.signIn(t, "waiting@example.com", models.RolePending)

	status, body := call(t, env.app, "POST", "/api/admin/users", token, fiber.Map{
		"email": "mai@example.com", "password": "s3cret-pass", "full_name": "Mai Tran", "role": models.RoleStudent,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	created := idOf(t, body, "user")
	_, err := env.store.Students().GetByUserID(context.Background(), created)
	assert.NoError(t, err)

	status, _ = call(t, env.app, "POST", "/api/admin/users", token, fiber.Map{
		"email": "pend@example.com", "password": "s3cret-pass", "full_name": "P", "role": models.RolePending,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = call(t, env.app, "PUT", fmt.Sprintf("/api/admin/users/%d", pending.ID), token, fiber.Map{"role": models.RoleStudent})
	assert.Equal(t, fiber.StatusConflict, status, body)
	stored, err := env.store.Users().GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePending, stored.Role)

	status, _ = call(t, env.app, "DELETE", fmt.Sprintf("/api/admin/users/%d", created), token, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = call(t, env.app, "GET", fmt.Sprintf("/api/admin/users/%d", created), token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestPublicBlogShowsPublishedPostsOnly(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.signIn(t, "admin@example.com", models.RoleAdmin)
	_, student := env.signIn(t, "student@example.com", models.RoleStudent)

	status, body := call(t, env.app, "POST", "/api/admin/blog", admin, fiber.Map{"title": "Study in Japan", "published": true})
	require.Equal(t, fiber.StatusCreated, status, body)
	status, body = call(t, env.app, "POST", "/api/admin/blog", admin, fiber.Map{"title": "Draft Notes"})
	require.Equal(t, fiber.StatusCreated, status, body)
	draft := idOf(t, body, "post")

	status, body = call(t, env.app, "GET", "/api/public/blog", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	posts := body["posts"].([]interface{})
	require.Len(t, posts, 1)
	assert.Equal(t, "study-in-japan", posts[0].(map[string]interface{})["slug"])

	status, _ = call(t, env.app, "GET", "/api/public/blog/draft-notes", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = call(t, env.app, "GET", "/api/public/blog/study-in-japan", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = call(t, env.app, "GET", "/api/admin/blog", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["posts"], 2)
	status, _ = call(t, env.app, "GET", "/api/admin/blog", student, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	// publishing drops the cached public list and slug lookups
	status, _ = call(t, env.app, "PUT", fmt.Sprintf("/api/admin/blog/%d", draft), admin, fiber.Map{"title": "Draft Notes", "published": true})
	require.Equal(t, fiber.StatusOK, status)
	_, body = call(t, env.app, "GET", "/api/public/blog", "", nil)
	assert.Len(t, body["posts"], 2)
	status, _ = call(t, env.app, "GET", "/api/public/blog/draft-notes", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestPolicyUpsertReplacesPage(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.signIn(t, "admin@example.com", models.RoleAdmin)

	status, body := call(t, env.app, "PUT", "/api/admin/policies/privacy", admin, fiber.Map{"title": "Privacy", "body": "first draft", "version": "1"})
	require.Equal(t, fiber.StatusOK, status, body)
	first := idOf(t, body, "policy")

	_, body = call(t, env.app, "GET", "/api/public/policies/privacy", "", nil)
	assert.Equal(t, "first draft", body["policy"].(map[string]interface{})["body"])

	status, body = call(t, env.app, "PUT", "/api/admin/policies/PRIVACY", admin, fiber.Map{"title": "Privacy", "body": "second draft", "version": "2"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, first, idOf(t, body, "policy"))

	status, body = call(t, env.app, "GET", "/api/public/policies/privacy", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	page := body["policy"].(map[string]interface{})
	assert.Equal(t, "second draft", page["body"])
	assert.Equal(t, "2", page["version"])

	_, body = call(t, env.app, "GET", "/api/public/policies", "", nil)
	assert.Len(t, body["policies"], 1)

	status, _ = call(t, env.app, "PUT", "/api/admin/policies/cookies", admin, fiber.Map{"title": "Cookies", "body": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, body = call(t, env.app, "PUT", "/api/admin/policies/terms", admin, fiber.Map{"title": "Terms"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "fields")
	status, _ = call(t, env.app, "GET", "/api/public/policies/cookies", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestNotificationInboxIsScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	me, token := env.signIn(t, "me@example.com", models.RoleStudent)
	other, otherToken := env.signIn(t, "other@example.com", models.RoleStudent)

	notifs := []models.Notification{
		{UserID: me.ID, Title: "Offer received", Message: "m", Type: "success"},
		{UserID: me.ID, Title: "Visa reminder", Message: "m", Type: "info"},
		{UserID: other.ID, Title: "Not yours", Message: "m", Type: "info"},
	}
	require.NoError(t, env.store.Notifications().Create(ctx, notifs))
	mine, theirs := notifs[0].ID, notifs[2].ID

	status, body := call(t, env.app, "GET", "/api/notifications?unread=true", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["notifications"], 2)
	_, body = call(t, env.app, "GET", "/api/notifications/unread-count", token, nil)
	assert.EqualValues(t, 2, body["unread_count"])

	for _, method := range []string{"GET", "DELETE"} {
		status, _ = call(t, env.app, method, fmt.Sprintf("/api/notifications/%d", theirs), token, nil)
		assert.Equal(t, fiber.StatusNotFound, status, method)
	}
	status, _ = call(t, env.app, "PUT", fmt.Sprintf("/api/notifications/%d/read", theirs), token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	unread, err := env.store.Notifications().CountUnread(ctx, other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	status, _ = call(t, env.app, "PUT", fmt.Sprintf("/api/notifications/%d/read", mine), token, nil)
	require.Equal(t, fiber.StatusOK, status)
	_, body = call(t, env.app, "GET", "/api/notifications?read=true", token, nil)
	assert.Len(t, body["notifications"], 1)

	status, body = call(t, env.app, "PUT", "/api/notifications/read-all", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["updated"])
	_, body = call(t, env.app, "GET", "/api/notifications/unread-count", token, nil)
	assert.EqualValues(t, 0, body["unread_count"])

	_, body = call(t, env.app, "GET", "/api/notifications/unread-count", otherToken, nil)
	assert.EqualValues(t, 1, body["unread_count"])
}
