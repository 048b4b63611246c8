package services

import (
	"context"
	"fmt"

	"edupath_go/models"
	"edupath_go/repository"
	ws "edupath_go/services/websocket"
	"edupath_go/utils"

	"github.com/sirupsen/logrus"
)

// snapshotLimit caps collection snapshots pushed to listeners.
const snapshotLimit = 100

// ListenerSources authorizes listener subscriptions and loads their
// snapshots from the store.
type ListenerSources struct {
	store repository.Store
}

func NewListenerSources(store repository.Store) *ListenerSources {
	return &ListenerSources{store: store}
}

// Authorize lets admins subscribe to anything. Students may follow the
// course catalogue and their own documents; pending users only their
// registration entry.
func (l *ListenerSources) Authorize(ctx context.Context, id ws.Identity, t ws.Topic) bool {
	switch id.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent, models.RolePending:
	default:
		return false
	}

	if t.Kind == ws.KindCollection {
		return id.Role == models.RoleStudent && t.Collection == CollectionCourses
	}

	switch t.Collection {
	case CollectionRegistrations:
		reg, err := l.store.Registrations().GetByID(ctx, t.ID)
		return err == nil && reg.UserID == id.UserID
	case CollectionCourses:
		return id.Role == models.RoleStudent
	}
	if id.Role != models.RoleStudent {
		return false
	}

	student, err := l.store.Students().GetByUserID(ctx, id.UserID)
	if err != nil {
		if err != repository.ErrNotFound {
			logrus.WithError(err).WithField("user_id", id.UserID).Warn("listener authorize: student lookup failed")
		}
		return false
	}
	switch t.Collection {
	case CollectionStudents:
		return t.ID == student.ID
	case CollectionApplications:
		app, err := l.store.Applications().GetByID(ctx, t.ID)
		return err == nil && app.StudentID == student.ID
	case CollectionAppointments:
		appt, err := l.store.Appointments().GetByID(ctx, t.ID)
		return err == nil && appt.StudentID == student.ID
	}
	return false
}

// Snapshot loads the current state of a topic.
func (l *ListenerSources) Snapshot(ctx context.Context, t ws.Topic) (interface{}, error) {
	if t.Kind == ws.KindDocument {
		return l.document(ctx, t.Collection, t.ID)
	}
	page := repository.Page{Page: 1, Limit: snapshotLimit}
	switch t.Collection {
	case CollectionCourses:
		items, _, err := l.store.Courses().List(ctx, repository.CourseFilter{ActiveOnly: true, Page: page})
		return items, err
	case CollectionRegistrations:
		items, _, err := l.store.Registrations().List(ctx, "", page)
		return items, err
	case CollectionStudents:
		items, _, err := l.store.Students().List(ctx, "", page)
		return items, err
	case CollectionApplications:
		items, _, err := l.store.Applications().List(ctx, repository.ApplicationFilter{Page: page})
		if err != nil {
			return nil, err
		}
		return utils.ToApplicationDTOs(items), nil
	case CollectionAppointments:
		items, _, err := l.store.Appointments().List(ctx, repository.AppointmentFilter{Page: page})
		return items, err
	}
	return nil, fmt.Errorf("unknown collection %q", t.Collection)
}

func (l *ListenerSources) document(ctx context.Context, collection string, id uint) (interface{}, error) {
	switch collection {
	case CollectionCourses:
		return l.store.Courses().GetByID(ctx, id)
	case CollectionRegistrations:
		return l.store.Registrations().GetByID(ctx, id)
	case CollectionStudents:
		return l.store.Students().GetByID(ctx, id)
	case CollectionApplications:
		app, err := l.store.Applications().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return utils.ToApplicationDTO(*app), nil
	case CollectionAppointments:
		return l.store.Appointments().GetByID(ctx, id)
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}
