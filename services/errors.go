package services

import (
	"context"
	"errors"

	"edupath_go/repository"
	"edupath_go/services/notifications"
)

var (
	ErrNotFound          = repository.ErrNotFound
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
)

// Notifier delivers in-app notifications.
type Notifier interface {
	EnqueueOrCreate(ctx context.Context, userIDs []uint, p notifications.Payload) error
	NotifyRole(ctx context.Context, role string, p notifications.Payload) error
}

// Publisher pushes document snapshots to listeners.
type Publisher interface {
	PublishDocument(collection string, id uint, data interface{})
	PublishCollection(collection string)
}

// Listener collections
const (
	CollectionRegistrations = "registrations"
	CollectionStudents      = "students"
	CollectionApplications  = "applications"
	CollectionAppointments  = "appointments"
	CollectionCourses       = "courses"
)

type noopPublisher struct{}

func (noopPublisher) PublishDocument(string, uint, interface{}) {}
func (noopPublisher) PublishCollection(string)                  {}

type noopNotifier struct{}

func (noopNotifier) EnqueueOrCreate(context.Context, []uint, notifications.Payload) error {
	return nil
}
func (noopNotifier) NotifyRole(context.Context, string, notifications.Payload) error { return nil }

func orNoopPublisher(p Publisher) Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func orNoopNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
