package services

import (
	"context"
	"testing"
	"time"

	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrationService() (*RegistrationService, *repository.MemoryStore, *fakeNotifier, *fakePublisher) {
	store := newTestStore()
	n := &fakeNotifier{}
	p := &fakePublisher{}
	svc := NewRegistrationService(store, n, p, testTemplates, 5000)
	svc.now = fixedClock
	return svc, store, n, p
}

func register(t *testing.T, svc *RegistrationService, email string) (*models.User, *models.Registration) {
	t.Helper()
	u, reg, err := svc.Register(context.Background(), RegisterInput{
		Email: email, Password: "s3cretpass", FullName: "Ana Maria Souza", TargetCountry: "United Kingdom", IntendedProgram: "MSc Data Science",
	})
	require.NoError(t, err)
	return u, reg
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.RegPendingPayment, models.RegPaymentSubmitted))
	assert.True(t, CanTransition(models.RegPaymentSubmitted, models.RegPaymentSubmitted))
	assert.True(t, CanTransition(models.RegPaymentVerified, models.RegApproved))
	assert.True(t, CanTransition(models.RegPendingPayment, models.RegRejected))
	assert.False(t, CanTransition(models.RegPendingPayment, models.RegApproved))
	assert.False(t, CanTransition(models.RegPaymentSubmitted, models.RegApproved))
	assert.False(t, CanTransition(models.RegApproved, models.RegRejected))
	assert.False(t, CanTransition(models.RegRejected, models.RegPaymentSubmitted))
}

func TestRegisterCreatesPendingUserAndEntry(t *testing.T) {
	svc, store, _, pub := newRegistrationService()
	u, reg := register(t, svc, " Ana@Example.com ")

	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, models.RolePending, u.Role)
	assert.NotEqual(t, "s3cretpass", u.Password)
	assert.NoError(t, utils.CheckPassword("s3cretpass", u.Password))

	assert.Equal(t, u.ID, reg.UserID)
	assert.Equal(t, models.RegPendingPayment, reg.Status)
	assert.Equal(t, 5000, reg.FeeAmount)
	assert.Equal(t, 1, pub.count(CollectionRegistrations))

	got, err := store.Registrations().GetByUserID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc, store, _, _ := newRegistrationService()
	register(t, svc, "ana@example.com")

	_, _, err := svc.Register(context.Background(), RegisterInput{Email: "ANA@example.com", Password: "s3cretpass", FullName: "Other"})
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "short"})
	var verr *utils.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "full_name")

	// failed transaction leaves no orphan rows
	counts, _ := store.Registrations().CountByStatus(context.Background())
	assert.Equal(t, int64(1), counts[models.RegPendingPayment])
}

func TestRegistrationHappyPath(t *testing.T) {
	ctx := context.Background()
	svc, store, notes, pub := newRegistrationService()
	u, reg := register(t, svc, "ana@example.com")

	reg, err := svc.SubmitPayment(ctx, u.ID, PaymentInput{Reference: "TX-1001"})
	require.NoError(t, err)
	assert.Equal(t, models.RegPaymentSubmitted, reg.Status)
	require.NotNil(t, reg.PaymentSubmitted)

	reg, err = svc.SubmitPayment(ctx, u.ID, PaymentInput{Reference: "TX-1002", ReceiptURL: "receipts/x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "TX-1002", reg.PaymentReference)

	reg, err = svc.VerifyPayment(ctx, reg.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, models.RegPaymentVerified, reg.Status)
	assert.Equal(t, uint(99), *reg.VerifiedBy)

	res, err := svc.Approve(ctx, reg.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, models.RegApproved, res.Registration.Status)
	assert.Equal(t, "Ana Maria", res.Student.FirstName)
	assert.Equal(t, "Souza", res.Student.LastName)
	assert.Equal(t, "United Kingdom", res.Application.Country)
	assert.Len(t, res.Application.Stages, 5)
	assert.Equal(t, models.StageNotStarted, res.Application.Status)
	assert.Equal(t, "Profile Assessment", res.Application.CurrentStage)

	user, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)

	app, err := store.Applications().GetByID(ctx, res.Application.ID)
	require.NoError(t, err)
	assert.Len(t, app.Stages, 5)

	assert.Equal(t, []string{"Payment submitted", "Payment re-submitted", "Payment verified", "Registration approved"}, notes.titles())
	assert.Equal(t, models.RoleAdmin, notes.sent[0].Role)
	assert.Equal(t, []uint{u.ID}, notes.sent[3].UserIDs)
	assert.Equal(t, 1, pub.count(CollectionApplications))
	assert.Equal(t, 1, pub.count(CollectionStudents))
}

func TestRegistrationInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newRegistrationService()
	u, reg := register(t, svc, "ana@example.com")

	_, err := svc.VerifyPayment(ctx, reg.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Approve(ctx, reg.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a failed approval must not promote the user
	user, _ := store.Users().GetByID(ctx, u.ID)
	assert.Equal(t, models.RolePending, user.Role)

	_, err = svc.Reject(ctx, reg.ID, 1, "")
	var verr *utils.ValidationError
	assert.ErrorAs(t, err, &verr)

	reg, err = svc.Reject(ctx, reg.ID, 1, "Incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, models.RegRejected, reg.Status)
	user, _ = store.Users().GetByID(ctx, u.ID)
	assert.Equal(t, models.UserRejected, user.Status)

	_, err = svc.SubmitPayment(ctx, u.ID, PaymentInput{Reference: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Reject(ctx, reg.ID, 1, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.VerifyPayment(ctx, 12345, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemindStale(t *testing.T) {
	ctx := context.Background()
	svc, store, notes, _ := newRegistrationService()

	// created four days ago
	store.SetClock(func() time.Time { return testNow.Add(-96 * time.Hour) })
	old, _ := register(t, svc, "old@example.com")
	store.SetClock(fixedClock)
	register(t, svc, "fresh@example.com")

	n, err := svc.RemindStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notes.sent, 1)
	assert.Equal(t, []uint{old.ID}, notes.sent[0].UserIDs)

	// already reminded today
	n, err = svc.RemindStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	svc.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	n, err = svc.RemindStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
