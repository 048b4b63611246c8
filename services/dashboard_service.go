package services

import (
	"context"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

// AdminStats are the counters on the admin dashboard.
type AdminStats struct {
	Students             int64            `json:"students"`
	PendingUsers         int64            `json:"pending_users"`
	Registrations        map[string]int64 `json:"registrations"`
	Applications         map[string]int64 `json:"applications"`
	UpcomingAppointments int64            `json:"upcoming_appointments"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// StudentDashboard is the summary shown on a student's landing page.
type StudentDashboard struct {
	Student      models.Student         `json:"student"`
	Applications []utils.ApplicationDTO `json:"applications"`
	Upcoming     []models.Appointment   `json:"upcoming_appointments"`
	Overall      models.StatusSummary   `json:"overall"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

type DashboardService struct {
	store repository.Store
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewDashboardService(store repository.Store, c cache.Cache, ttl time.Duration) *DashboardService {
	return &DashboardService{store: store, cache: c, ttl: ttl, now: time.Now}
}

func (s *DashboardService) AdminStats(ctx context.Context) (AdminStats, error) {
	return cache.Fetch(ctx, s.cache, cache.PrefixAdminDashboard, s.ttl, func(ctx context.Context) (AdminStats, error) {
		roles, err := s.store.Users().CountByRole(ctx)
		if err != nil {
			return AdminStats{}, err
		}
		regs, err := s.store.Registrations().CountByStatus(ctx)
		if err != nil {
			return AdminStats{}, err
		}
		apps, err := s.store.Applications().CountByStatus(ctx)
		if err != nil {
			return AdminStats{}, err
		}
		now := s.now()
		upcoming, err := s.store.Appointments().CountUpcoming(ctx, now)
		if err != nil {
			return AdminStats{}, err
		}
		return AdminStats{
			Students:             roles[models.RoleStudent],
			PendingUsers:         roles[models.RolePending],
			Registrations:        regs,
			Applications:         apps,
			UpcomingAppointments: upcoming,
			GeneratedAt:          now,
		}, nil
	})
}

// Student returns the dashboard of the student owning userID.
func (s *DashboardService) Student(ctx context.Context, userID uint) (StudentDashboard, error) {
	student, err := s.store.Students().GetByUserID(ctx, userID)
	if err != nil {
		return StudentDashboard{}, err
	}
	return cache.Fetch(ctx, s.cache, cache.StudentDashboardKey(student.ID), s.ttl, func(ctx context.Context) (StudentDashboard, error) {
		apps, _, err := s.store.Applications().List(ctx, repository.ApplicationFilter{StudentID: student.ID})
		if err != nil {
			return StudentDashboard{}, err
		}
		now := s.now()
		upcoming, _, err := s.store.Appointments().List(ctx, repository.AppointmentFilter{
			StudentID: student.ID, From: &now, Page: repository.Page{Limit: 5},
		})
		if err != nil {
			return StudentDashboard{}, err
		}
		active := upcoming[:0]
		for _, a := range upcoming {
			if a.Status == models.ApptRequested || a.Status == models.ApptConfirmed {
				active = append(active, a)
			}
		}

		var stages []models.ProgressStage
		for _, a := range apps {
			stages = append(stages, a.Stages...)
		}
		return StudentDashboard{
			Student:      *student,
			Applications: utils.ToApplicationDTOs(apps),
			Upcoming:     active,
			Overall:      models.CalculateAppStatus(stages).StatusSummary,
			GeneratedAt:  now,
		}, nil
	})
}

// InvalidateStudent drops a student's cached dashboard.
func (s *DashboardService) InvalidateStudent(ctx context.Context, studentID uint) {
	cache.Forget(ctx, s.cache, cache.StudentDashboardKey(studentID))
}
