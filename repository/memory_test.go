package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"edupath_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: 20}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, Limit: 100}, Page{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 40, Page{Page: 3, Limit: 20}.Offset())
}

func TestMemoryUsersDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Users().Create(ctx, &models.User{Email: "ana@example.com", Role: models.RolePending}))
	err := store.Users().Create(ctx, &models.User{Email: "ANA@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	u, err := store.Users().GetByEmail(ctx, "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, uint(1), u.ID)

	_, err = store.Users().GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx Store) error {
		if err := tx.Users().Create(ctx, &models.User{Email: "a@example.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = store.Users().GetByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// ids restart from the snapshot
	u := &models.User{Email: "b@example.com"}
	require.NoError(t, store.Users().Create(ctx, u))
	assert.Equal(t, uint(1), u.ID)
}

func TestMemoryStagesAreOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	app := &models.Application{StudentID: 1, University: "UCL", Stages: []models.ProgressStage{
		{Category: models.CategoryVisa, Name: "Visa Decision", SortOrder: 2},
		{Category: models.CategoryApplication, Name: "Offer", SortOrder: 2},
		{Category: models.CategoryVisa, Name: "Visa Application", SortOrder: 1},
		{Category: models.CategoryApplication, Name: "Assessment", SortOrder: 1},
	}}
	require.NoError(t, store.Applications().Create(ctx, app))

	got, err := store.Applications().GetByID(ctx, app.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(got.Stages))
	for _, s := range got.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Assessment", "Offer", "Visa Application", "Visa Decision"}, names)
}

func TestMemoryStalePending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	old := &models.Registration{UserID: 1, Status: models.RegPendingPayment}
	require.NoError(t, store.Registrations().Create(ctx, old))
	paid := &models.Registration{UserID: 2, Status: models.RegPaymentSubmitted}
	require.NoError(t, store.Registrations().Create(ctx, paid))

	now = now.Add(4 * 24 * time.Hour)
	stale, err := store.Registrations().StalePending(ctx, now.Add(-72*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	reminded := now.Add(-time.Hour)
	stale[0].LastReminderAt = &reminded
	require.NoError(t, store.Registrations().Update(ctx, &stale[0]))
	stale, err = store.Registrations().StalePending(ctx, now.Add(-72*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestMemoryAppointmentWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	advisor := uint(5)
	for i, status := range []string{models.ApptConfirmed, models.ApptRequested, models.ApptConfirmed} {
		a := &models.Appointment{StudentID: 1, AdvisorID: &advisor, Topic: "t", StartsAt: base.Add(time.Duration(i) * time.Hour), DurationMin: 30, Status: status}
		require.NoError(t, store.Appointments().Create(ctx, a))
	}
	got, err := store.Appointments().ConfirmedForAdvisor(ctx, advisor, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1, "window end is exclusive and requested slots are ignored")

	list, total, err := store.Appointments().List(ctx, AppointmentFilter{Status: models.ApptConfirmed})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.True(t, list[0].StartsAt.Before(list[1].StartsAt))
}

func TestMemoryBlogSlugsAndPublishedFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)

	draft := &models.BlogPost{Slug: "draft", Title: "Draft"}
	old := &models.BlogPost{Slug: "old", Title: "Old", Published: true, PublishedAt: &earlier, Tags: "visa"}
	fresh := &models.BlogPost{Slug: "fresh", Title: "Fresh", Published: true, PublishedAt: &now}
	for _, p := range []*models.BlogPost{draft, old, fresh} {
		require.NoError(t, store.Blog().Create(ctx, p))
	}
	assert.ErrorIs(t, store.Blog().Create(ctx, &models.BlogPost{Slug: "old"}), ErrDuplicate)

	posts, total, err := store.Blog().List(ctx, BlogFilter{PublishedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "fresh", posts[0].Slug)

	_, total, _ = store.Blog().List(ctx, BlogFilter{})
	assert.Equal(t, int64(3), total)
	_, total, _ = store.Blog().List(ctx, BlogFilter{Tag: "VISA"})
	assert.Equal(t, int64(1), total)

	_, err = store.Blog().GetPublished(ctx, "draft")
	assert.ErrorIs(t, err, ErrNotFound)

	fresh.Slug = "old"
	assert.ErrorIs(t, store.Blog().Update(ctx, fresh), ErrDuplicate)
}

func TestMemoryPolicyUpsertKeepsRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &models.PolicyPage{Slug: "privacy", Title: "Privacy", Body: "v1", Version: "1"}
	require.NoError(t, store.Policies().Upsert(ctx, first))
	second := &models.PolicyPage{Slug: "privacy", Title: "Privacy Policy", Body: "v2", Version: "2"}
	require.NoError(t, store.Policies().Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.Policies().Get(ctx, "privacy")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Body)

	list, err := store.Policies().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Body)
}

func TestMemoryNotificationsAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Notifications().Create(ctx, []models.Notification{
		{UserID: 1, Title: "a"}, {UserID: 1, Title: "b"}, {UserID: 2, Title: "c"},
	}))

	unread := false
	list, total, err := store.Notifications().List(ctx, NotificationFilter{UserID: 1, Read: &unread})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "b", list[0].Title)

	_, err = store.Notifications().GetForUser(ctx, list[0].ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.Notifications().MarkAllRead(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, _ := store.Notifications().CountUnread(ctx, 2)
	assert.Equal(t, int64(1), count)
}

func TestMemoryTransactionsRunOneAtATime(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = store.Transaction(ctx, func(Store) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	go func() {
		_ = store.Transaction(ctx, func(Store) error { return nil })
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second transaction ran while the first was open")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second transaction never ran")
	}
}
