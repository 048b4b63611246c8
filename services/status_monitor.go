package services

import (
	"context"
	"strconv"
	"time"

	"edupath_go/cache"
	"edupath_go/metrics"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services/notifications"
	"edupath_go/utils"

	"github.com/sirupsen/logrus"
)

// StatusMonitor recomputes an application's derived status once its
// stages stop changing for the debounce window.
type StatusMonitor struct {
	store     repository.Store
	notifier  Notifier
	publisher Publisher
	cache     cache.Cache
	debouncer *utils.Debouncer
}

func NewStatusMonitor(store repository.Store, notifier Notifier, publisher Publisher, wait time.Duration) *StatusMonitor {
	return &StatusMonitor{
		store:     store,
		notifier:  orNoopNotifier(notifier),
		publisher: orNoopPublisher(publisher),
		debouncer: utils.NewDebouncer(wait),
	}
}

// SetCache lets recomputes invalidate cached dashboards.
func (m *StatusMonitor) SetCache(c cache.Cache) {
	m.cache = c
}

// Touch schedules a recompute; touches within the window collapse into one.
func (m *StatusMonitor) Touch(applicationID uint) {
	m.debouncer.Trigger(strconv.FormatUint(uint64(applicationID), 10), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.Recompute(ctx, applicationID); err != nil {
			logrus.WithError(err).WithField("application_id", applicationID).Error("status recompute failed")
		}
	})
}

// Pending returns how many applications wait for a recompute.
func (m *StatusMonitor) Pending() int {
	return m.debouncer.Pending()
}

// Flush runs every pending recompute now.
func (m *StatusMonitor) Flush() {
	m.debouncer.Flush()
}

// Stop drops pending recomputes and ignores later touches.
func (m *StatusMonitor) Stop() {
	m.debouncer.Stop()
}

// Recompute derives the status from the stages, persists it when it
// changed and tells listeners and the student.
func (m *StatusMonitor) Recompute(ctx context.Context, applicationID uint) (models.AppStatus, error) {
	app, err := m.store.Applications().GetByID(ctx, applicationID)
	if err != nil {
		metrics.StatusRecomputes.WithLabelValues("error").Inc()
		return models.AppStatus{}, err
	}
	summary := models.CalculateAppStatus(app.Stages)
	previous := app.Status

	changed := summary.Status != app.Status || summary.Progress != app.Progress || summary.CurrentStage != app.CurrentStage
	if changed {
		if err := m.store.Applications().SaveStatus(ctx, app.ID, summary); err != nil {
			metrics.StatusRecomputes.WithLabelValues("error").Inc()
			return summary, err
		}
		app.Status, app.Progress, app.CurrentStage = summary.Status, summary.Progress, summary.CurrentStage
		metrics.StatusRecomputes.WithLabelValues("changed").Inc()
	} else {
		metrics.StatusRecomputes.WithLabelValues("unchanged").Inc()
	}

	m.publisher.PublishDocument(CollectionApplications, app.ID, utils.ToApplicationDTO(*app))

	if m.cache != nil && changed {
		cache.Forget(ctx, m.cache, cache.StudentDashboardKey(app.StudentID))
		cache.Invalidate(ctx, m.cache, cache.PrefixAdminDashboard)
	}

	if summary.Status != previous {
		m.notifyStudent(ctx, app, summary)
	}
	return summary, nil
}

func (m *StatusMonitor) notifyStudent(ctx context.Context, app *models.Application, summary models.AppStatus) {
	student, err := m.store.Students().GetByID(ctx, app.StudentID)
	if err != nil {
		logrus.WithError(err).WithField("student_id", app.StudentID).Warn("status notification: student lookup failed")
		return
	}
	title := "Application status updated"
	message := app.University + " is now " + summary.Status + " (" + strconv.Itoa(summary.Progress) + "%)."
	typ := "info"
	channels := []string{notifications.ChannelNormal, notifications.ChannelPopup}
	if summary.Status == models.StageCompleted {
		title = "Application completed"
		message = "Every stage of your " + app.University + " application is complete."
		typ = "success"
		channels = append(channels, notifications.ChannelEmail, notifications.ChannelLine)
	}
	err = m.notifier.EnqueueOrCreate(ctx, []uint{student.UserID}, notifications.WithData(
		title, message, typ,
		map[string]interface{}{"application_id": app.ID, "status": summary.Status, "progress": summary.Progress},
		channels...,
	))
	if err != nil {
		logrus.WithError(err).WithField("application_id", app.ID).Warn("status notification failed")
	}
}
