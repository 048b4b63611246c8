package services

import (
	"context"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminStatsCached(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedStudent(store, "s1@example.com")
	require.NoError(t, store.Users().Create(ctx, &models.User{Email: "p@example.com", Role: models.RolePending}))
	require.NoError(t, store.Registrations().Create(ctx, &models.Registration{UserID: 2, Status: models.RegPaymentSubmitted}))

	mem := cache.NewMemoryCache(0)
	svc := NewDashboardService(store, mem, time.Minute)
	svc.now = fixedClock

	stats, err := svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Students)
	assert.Equal(t, int64(1), stats.PendingUsers)
	assert.Equal(t, int64(1), stats.Registrations[models.RegPaymentSubmitted])

	require.NoError(t, store.Users().Create(ctx, &models.User{Email: "p2@example.com", Role: models.RolePending}))
	stats, err = svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingUsers, "served from cache")

	cache.Invalidate(ctx, mem, cache.PrefixAdminDashboard)
	stats, err = svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PendingUsers)
}

func TestStudentDashboard(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	u, st := seedStudent(store, "s1@example.com")
	mem := cache.NewMemoryCache(0)
	svc := NewDashboardService(store, mem, time.Minute)
	svc.now = fixedClock

	app := NewApplication(st.ID, testTemplates, ApplicationInput{University: "UCL"})
	app.Stages[0].Status = models.StageCompleted
	require.NoError(t, store.Applications().Create(ctx, app))
	for _, a := range []models.Appointment{
		{StudentID: st.ID, Topic: "next", StartsAt: testNow.Add(time.Hour), Status: models.ApptConfirmed},
		{StudentID: st.ID, Topic: "past", StartsAt: testNow.Add(-time.Hour), Status: models.ApptCompleted},
		{StudentID: st.ID, Topic: "dropped", StartsAt: testNow.Add(2 * time.Hour), Status: models.ApptCancelled},
	} {
		a := a
		require.NoError(t, store.Appointments().Create(ctx, &a))
	}

	dash, err := svc.Student(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, dash.Student.ID)
	require.Len(t, dash.Applications, 1)
	assert.Equal(t, 1, dash.Applications[0].Summary.Completed)
	require.Len(t, dash.Upcoming, 1)
	assert.Equal(t, "next", dash.Upcoming[0].Topic)
	assert.Equal(t, 20, dash.Overall.Progress)

	_, ok, _ := mem.Get(ctx, cache.StudentDashboardKey(st.ID))
	assert.True(t, ok)
	svc.InvalidateStudent(ctx, st.ID)
	_, ok, _ = mem.Get(ctx, cache.StudentDashboardKey(st.ID))
	assert.False(t, ok)

	_, err = svc.Student(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
