package services

import (
	"context"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/repository"
	"edupath_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseServiceCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	pub := &fakePublisher{}
	svc := NewCourseService(store, mem, pub, time.Minute)

	_, err := svc.Create(ctx, CourseInput{Title: "MSc Data Science"})
	var verr *utils.ValidationError
	require.ErrorAs(t, err, &verr)

	created, err := svc.Create(ctx, CourseInput{Title: "MSc Data Science", Code: " msc-ds ", University: "UCL", Country: "United Kingdom", Level: "Postgraduate"})
	require.NoError(t, err)
	assert.Equal(t, "MSC-DS", created.Code)
	assert.True(t, created.Active)
	assert.Equal(t, 1, pub.count(CollectionCourses))

	_, err = svc.Create(ctx, CourseInput{Title: "Dup", Code: "MSC-DS", University: "UCL", Country: "United Kingdom"})
	assert.ErrorIs(t, err, ErrConflict)

	filter := repository.CourseFilter{ActiveOnly: true, Country: "United Kingdom"}
	page, err := svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// a write behind the service's back stays invisible until the TTL
	// runs out or the service invalidates
	require.NoError(t, store.Courses().Delete(ctx, created.ID))
	page, err = svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = svc.Create(ctx, CourseInput{Title: "BA Design", Code: "BAD", University: "RMIT", Country: "United Kingdom"})
	require.NoError(t, err)
	page, err = svc.List(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "BAD", page.Items[0].Code)
}

func TestCourseServiceUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewCourseService(store, nil, nil, time.Minute)

	c, err := svc.Create(ctx, CourseInput{Title: "MBA", Code: "MBA", University: "Melbourne", Country: "Australia"})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, c.ID, CourseInput{Title: "MBA (Global)", Code: "MBA", University: "Melbourne", Country: "Australia", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)

	page, err := svc.List(ctx, repository.CourseFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "MBA (Global)", got.Title)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, c.ID), ErrNotFound)
}
