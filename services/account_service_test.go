package services

import (
	"context"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_CreateStudentGetsProfile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewAccountService(store, nil)

	user, err := svc.Create(ctx, CreateAccountInput{
		Email: " Lin@Example.com ", Password: "s3cret-pass", FullName: "Lin Wei Chen", Role: models.RoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, "lin@example.com", user.Email)
	assert.Equal(t, models.UserActive, user.Status)
	assert.NoError(t, utils.CheckPassword("s3cret-pass", user.Password))

	profile, err := store.Students().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lin", profile.FirstName)

	_, err = svc.Create(ctx, CreateAccountInput{Email: "lin@example.com", Password: "s3cret-pass", FullName: "Other", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrConflict)

	advisor, err := svc.Create(ctx, CreateAccountInput{Email: "adv@example.com", Password: "s3cret-pass", FullName: "Advisor", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = store.Students().GetByUserID(ctx, advisor.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Create(ctx, CreateAccountInput{Email: "p@example.com", Password: "s3cret-pass", FullName: "P", Role: models.RolePending})
	var verr *utils.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAccountService_AdminCannotLockThemselvesOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewAccountService(store, nil)
	admin := seedAdmin(store, "me@example.com")

	_, err := svc.Update(ctx, admin.ID, admin.ID, UpdateAccountInput{Role: strPtr(models.RoleStudent)})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Update(ctx, admin.ID, admin.ID, UpdateAccountInput{Status: strPtr(models.UserInactive)})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Delete(ctx, admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := store.Users().GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.Equal(t, models.UserActive, stored.Status)

	updated, err := svc.Update(ctx, admin.ID, admin.ID, UpdateAccountInput{FullName: strPtr(" Dana Advisor "), Status: strPtr(models.UserActive)})
	require.NoError(t, err)
	assert.Equal(t, "Dana Advisor", updated.FullName)

	_, err = svc.Update(ctx, admin.ID, admin.ID, UpdateAccountInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccountService_PendingAccountsGoThroughQueue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	regs := NewRegistrationService(store, nil, nil, testTemplates, 5000)
	svc := NewAccountService(store, nil)
	admin := seedAdmin(store, "admin@example.com")

	pending, _, err := regs.Register(ctx, RegisterInput{Email: "new@example.com", Password: "s3cret-pass", FullName: "New Student"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, pending.ID, admin.ID, UpdateAccountInput{Role: strPtr(models.RoleStudent)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	user, _ := store.Users().GetByID(ctx, pending.ID)
	assert.Equal(t, models.RolePending, user.Role)
	_, err = store.Students().GetByUserID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	reg, _ := store.Registrations().GetByUserID(ctx, user.ID)
	assert.Equal(t, models.RegPendingPayment, reg.Status)

	// contact details of a pending account can still be corrected
	_, err = svc.Update(ctx, pending.ID, admin.ID, UpdateAccountInput{Phone: strPtr("+66 81 000 0000"), Role: strPtr(models.RolePending)})
	var verr *utils.ValidationError
	assert.ErrorAs(t, err, &verr, "pending is not an assignable role")
	_, err = svc.Update(ctx, pending.ID, admin.ID, UpdateAccountInput{Phone: strPtr("+66 81 000 0000")})
	assert.NoError(t, err)
}

func TestAccountService_RoleChangeKeepsStudentProfile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewAccountService(store, nil)
	admin := seedAdmin(store, "admin@example.com")
	other := seedAdmin(store, "coach@example.com")

	updated, err := svc.Update(ctx, other.ID, admin.ID, UpdateAccountInput{Role: strPtr(models.RoleStudent)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, updated.Role)
	profile, err := store.Students().GetByUserID(ctx, other.ID)
	require.NoError(t, err)

	// back and forth reuses the same profile
	_, err = svc.Update(ctx, other.ID, admin.ID, UpdateAccountInput{Role: strPtr(models.RoleAdmin)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, other.ID, admin.ID, UpdateAccountInput{Role: strPtr(models.RoleStudent)})
	require.NoError(t, err)
	again, err := store.Students().GetByUserID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID)
}

func TestAccountService_DeleteAndAvatar(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	require.NoError(t, mem.Set(ctx, cache.PrefixAdminDashboard, []byte("{}"), time.Minute))
	svc := NewAccountService(store, mem)
	admin := seedAdmin(store, "admin@example.com")
	student, _ := seedStudent(store, "s@example.com")

	old, err := svc.SetAvatar(ctx, student.ID, "avatars/1/a.png")
	require.NoError(t, err)
	assert.Empty(t, old)
	old, err = svc.SetAvatar(ctx, student.ID, "avatars/1/b.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/1/a.png", old)

	deleted, err := svc.Delete(ctx, student.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "s@example.com", deleted.Email)
	_, err = svc.Get(ctx, student.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Delete(ctx, student.ID, admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, found, _ := mem.Get(ctx, cache.PrefixAdminDashboard)
	assert.False(t, found, "account changes drop the admin dashboard")
}
