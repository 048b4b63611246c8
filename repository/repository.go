// Package repository is the persistence boundary of the portal services.
// The GORM implementation backs production; the in-memory one backs tests
// and local demos.
package repository

import (
	"context"
	"errors"
	"time"

	"edupath_go/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies the default page size (20) and caps it at 100.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

type UserFilter struct {
	Role   string
	Status string
	// Search matches email or full name.
	Search string
	Page   Page
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// LockByID is GetByID holding a row lock until the enclosing
	// transaction ends.
	LockByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByLineID(ctx context.Context, lineID string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	List(ctx context.Context, f UserFilter) ([]models.User, int64, error)
	// Delete soft deletes the account.
	Delete(ctx context.Context, id uint) error
	CountByRole(ctx context.Context) (map[string]int64, error)
}

type RegistrationRepository interface {
	Create(ctx context.Context, r *models.Registration) error
	GetByID(ctx context.Context, id uint) (*models.Registration, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Registration, error)
	List(ctx context.Context, status string, page Page) ([]models.Registration, int64, error)
	Update(ctx context.Context, r *models.Registration) error
	// StalePending returns pending_payment entries created before
	// createdBefore that were never reminded or last reminded before
	// remindedBefore.
	StalePending(ctx context.Context, createdBefore, remindedBefore time.Time) ([]models.Registration, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type StudentRepository interface {
	Create(ctx context.Context, s *models.Student) error
	GetByID(ctx context.Context, id uint) (*models.Student, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Student, error)
	List(ctx context.Context, search string, page Page) ([]models.Student, int64, error)
	Update(ctx context.Context, s *models.Student) error
}

type ApplicationFilter struct {
	StudentID uint
	Status    string
	Page      Page
}

type ApplicationRepository interface {
	// Create inserts the application together with its stages.
	Create(ctx context.Context, a *models.Application) error
	// GetByID loads stages and documents.
	GetByID(ctx context.Context, id uint) (*models.Application, error)
	List(ctx context.Context, f ApplicationFilter) ([]models.Application, int64, error)
	// Update writes the editable fields (university, program, country,
	// intake, notes).
	Update(ctx context.Context, a *models.Application) error
	Delete(ctx context.Context, id uint) error

	Stages(ctx context.Context, applicationID uint) ([]models.ProgressStage, error)
	GetStage(ctx context.Context, id uint) (*models.ProgressStage, error)
	UpdateStage(ctx context.Context, s *models.ProgressStage) error
	// SaveStatus persists the derived status columns.
	SaveStatus(ctx context.Context, id uint, s models.AppStatus) error
	CountByStatus(ctx context.Context) (map[string]int64, error)

	AddDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id uint) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uint) error
}

type AppointmentFilter struct {
	StudentID uint
	AdvisorID uint
	Status    string
	From      *time.Time
	To        *time.Time
	Page      Page
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *models.Appointment) error
	GetByID(ctx context.Context, id uint) (*models.Appointment, error)
	List(ctx context.Context, f AppointmentFilter) ([]models.Appointment, int64, error)
	Update(ctx context.Context, a *models.Appointment) error
	// ConfirmedForAdvisor returns confirmed appointments of an advisor
	// starting in [from, to).
	ConfirmedForAdvisor(ctx context.Context, advisorID uint, from, to time.Time) ([]models.Appointment, error)
	// DueReminders returns confirmed, not yet reminded appointments
	// starting in [from, to).
	DueReminders(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
	MarkReminded(ctx context.Context, id uint, at time.Time) error
	CountUpcoming(ctx context.Context, now time.Time) (int64, error)
}

type CourseFilter struct {
	Country    string
	Level      string
	Search     string
	ActiveOnly bool
	Page       Page
}

type CourseRepository interface {
	Create(ctx context.Context, c *models.Course) error
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	List(ctx context.Context, f CourseFilter) ([]models.Course, int64, error)
	Update(ctx context.Context, c *models.Course) error
	Delete(ctx context.Context, id uint) error
}

type SettingsRepository interface {
	// Get returns ErrNotFound when the user never saved settings.
	Get(ctx context.Context, userID uint) (*models.UserSettings, error)
	// ForUsers returns saved settings keyed by user id; users without a
	// row are absent.
	ForUsers(ctx context.Context, userIDs []uint) (map[uint]models.UserSettings, error)
	// Save inserts or replaces the row for s.UserID.
	Save(ctx context.Context, s *models.UserSettings) error
}

type BlogFilter struct {
	Tag           string
	PublishedOnly bool
	Page          Page
}

type BlogRepository interface {
	// Create and Update return ErrDuplicate for a slug already in use.
	Create(ctx context.Context, p *models.BlogPost) error
	GetByID(ctx context.Context, id uint) (*models.BlogPost, error)
	// GetPublished returns a published post by slug.
	GetPublished(ctx context.Context, slug string) (*models.BlogPost, error)
	// List orders by publish date, newest first.
	List(ctx context.Context, f BlogFilter) ([]models.BlogPost, int64, error)
	Update(ctx context.Context, p *models.BlogPost) error
	Delete(ctx context.Context, id uint) error
}

type PolicyRepository interface {
	Get(ctx context.Context, slug string) (*models.PolicyPage, error)
	// List returns every page without its body, ordered by slug.
	List(ctx context.Context) ([]models.PolicyPage, error)
	// Upsert inserts or replaces the page with p.Slug and reloads p.
	Upsert(ctx context.Context, p *models.PolicyPage) error
}

type NotificationFilter struct {
	UserID uint
	Read   *bool
	Type   string
	Page   Page
}

type NotificationRepository interface {
	Create(ctx context.Context, notifs []models.Notification) error
	// List orders by creation, newest first.
	List(ctx context.Context, f NotificationFilter) ([]models.Notification, int64, error)
	// GetForUser returns ErrNotFound when the notification belongs to
	// another user.
	GetForUser(ctx context.Context, id, userID uint) (*models.Notification, error)
	MarkRead(ctx context.Context, id uint, at time.Time) error
	// MarkAllRead returns how many notifications changed.
	MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error)
	Delete(ctx context.Context, id uint) error
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

// Store groups the repositories and runs units of work.
type Store interface {
	Users() UserRepository
	Registrations() RegistrationRepository
	Students() StudentRepository
	Applications() ApplicationRepository
	Appointments() AppointmentRepository
	Courses() CourseRepository
	Settings() SettingsRepository
	Blog() BlogRepository
	Policies() PolicyRepository
	Notifications() NotificationRepository

	// Transaction runs fn against a store bound to one transaction.
	Transaction(ctx context.Context, fn func(Store) error) error
}
