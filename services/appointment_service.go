package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services/notifications"
	"edupath_go/utils"

	"github.com/sirupsen/logrus"
)

// Longest bookable appointment; bounds the overlap search window.
const maxAppointmentMinutes = 240

type AppointmentRequest struct {
	AdvisorID   *uint     `json:"advisor_id"`
	Topic       string    `json:"topic" validate:"required,max=255"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	DurationMin int       `json:"duration_min" validate:"omitempty,min=15,max=240"`
	Mode        string    `json:"mode" validate:"omitempty,oneof=online in_person phone"`
}

type AppointmentConfirm struct {
	AdvisorID   *uint  `json:"advisor_id"`
	MeetingLink string `json:"meeting_link" validate:"omitempty,max=500"`
}

type AppointmentReschedule struct {
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	DurationMin int       `json:"duration_min" validate:"omitempty,min=15,max=240"`
}

// Actor is the caller of an operation that behaves differently per role.
type Actor struct {
	UserID    uint
	Role      string
	StudentID uint
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// AppointmentService books consultations between students and advisors.
type AppointmentService struct {
	store     repository.Store
	notifier  Notifier
	publisher Publisher
	now       func() time.Time
}

func NewAppointmentService(store repository.Store, notifier Notifier, publisher Publisher) *AppointmentService {
	return &AppointmentService{
		store:     store,
		notifier:  orNoopNotifier(notifier),
		publisher: orNoopPublisher(publisher),
		now:       time.Now,
	}
}

func (s *AppointmentService) Request(ctx context.Context, studentID uint, in AppointmentRequest) (*models.Appointment, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !in.StartsAt.After(s.now()) {
		return nil, &utils.ValidationError{Fields: map[string]string{"starts_at": "must be in the future"}}
	}
	if in.DurationMin == 0 {
		in.DurationMin = 30
	}
	if in.Mode == "" {
		in.Mode = "online"
	}
	if in.AdvisorID != nil {
		if _, err := requireAdvisor(ctx, s.store, *in.AdvisorID); err != nil {
			return nil, err
		}
	}
	appt := &models.Appointment{
		StudentID:   studentID,
		AdvisorID:   in.AdvisorID,
		Topic:       utils.SanitizeString(in.Topic),
		StartsAt:    in.StartsAt,
		DurationMin: in.DurationMin,
		Mode:        in.Mode,
		Status:      models.ApptRequested,
	}
	if err := s.store.Appointments().Create(ctx, appt); err != nil {
		return nil, err
	}

	p := notifications.WithData("New appointment request",
		fmt.Sprintf("%s on %s", appt.Topic, appt.StartsAt.Format("02 Jan 2006 15:04")),
		"info", map[string]interface{}{"appointment_id": appt.ID, "link": "/admin/appointments"})
	var err error
	if appt.AdvisorID != nil {
		err = s.notifier.EnqueueOrCreate(ctx, []uint{*appt.AdvisorID}, p)
	} else {
		err = s.notifier.NotifyRole(ctx, models.RoleAdmin, p)
	}
	if err != nil {
		logrus.WithError(err).Warn("appointment request notification failed")
	}
	s.publisher.PublishDocument(CollectionAppointments, appt.ID, appt)
	return appt, nil
}

func (s *AppointmentService) Get(ctx context.Context, id uint, actor Actor) (*models.Appointment, error) {
	appt, err := s.store.Appointments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && appt.StudentID != actor.StudentID {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *AppointmentService) List(ctx context.Context, f repository.AppointmentFilter) ([]models.Appointment, int64, error) {
	return s.store.Appointments().List(ctx, f)
}

// Confirm assigns an advisor and books the slot. The advisor must be an
// admin who is free for the whole appointment. The advisor row stays locked
// until the booking is written so concurrent confirms are serialized.
func (s *AppointmentService) Confirm(ctx context.Context, id, adminID uint, in AppointmentConfirm) (*models.Appointment, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	var appt *models.Appointment
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		appt, err = tx.Appointments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != models.ApptRequested {
			return fmt.Errorf("%w: cannot confirm a %s appointment", ErrInvalidTransition, appt.Status)
		}
		advisor := adminID
		if in.AdvisorID != nil {
			advisor = *in.AdvisorID
		} else if appt.AdvisorID != nil {
			advisor = *appt.AdvisorID
		}
		if _, err := requireAdvisor(ctx, tx, advisor); err != nil {
			return err
		}
		if err := checkConflict(ctx, tx, advisor, appt.StartsAt, appt.EndsAt(), appt.ID); err != nil {
			return err
		}
		appt.AdvisorID = &advisor
		appt.MeetingLink = in.MeetingLink
		appt.Status = models.ApptConfirmed
		return tx.Appointments().Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	s.notifyStudent(ctx, appt, "Appointment confirmed",
		fmt.Sprintf("Your appointment \"%s\" is confirmed for %s.", appt.Topic, appt.StartsAt.Format("02 Jan 2006 15:04")))
	s.publisher.PublishDocument(CollectionAppointments, appt.ID, appt)
	return appt, nil
}

func (s *AppointmentService) Reschedule(ctx context.Context, id uint, in AppointmentReschedule) (*models.Appointment, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !in.StartsAt.After(s.now()) {
		return nil, &utils.ValidationError{Fields: map[string]string{"starts_at": "must be in the future"}}
	}
	var appt *models.Appointment
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		appt, err = tx.Appointments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != models.ApptRequested && appt.Status != models.ApptConfirmed {
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, appt.Status)
		}
		appt.StartsAt = in.StartsAt
		if in.DurationMin > 0 {
			appt.DurationMin = in.DurationMin
		}
		if appt.Status == models.ApptConfirmed && appt.AdvisorID != nil {
			if _, err := tx.Users().LockByID(ctx, *appt.AdvisorID); err != nil {
				return err
			}
			if err := checkConflict(ctx, tx, *appt.AdvisorID, appt.StartsAt, appt.EndsAt(), appt.ID); err != nil {
				return err
			}
		}
		appt.RemindedAt = nil
		return tx.Appointments().Update(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	s.notifyStudent(ctx, appt, "Appointment rescheduled",
		fmt.Sprintf("\"%s\" moved to %s.", appt.Topic, appt.StartsAt.Format("02 Jan 2006 15:04")))
	s.publisher.PublishDocument(CollectionAppointments, appt.ID, appt)
	return appt, nil
}

// Cancel is open to admins and to the student who owns the appointment.
func (s *AppointmentService) Cancel(ctx context.Context, id uint, actor Actor, reason string) (*models.Appointment, error) {
	appt, err := s.store.Appointments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && appt.StudentID != actor.StudentID {
		return nil, ErrForbidden
	}
	if appt.Status != models.ApptRequested && appt.Status != models.ApptConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, appt.Status)
	}
	appt.Status = models.ApptCancelled
	appt.CancelReason = utils.SanitizeString(reason)
	if err := s.store.Appointments().Update(ctx, appt); err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		s.notifyStudent(ctx, appt, "Appointment cancelled", fmt.Sprintf("\"%s\" was cancelled. %s", appt.Topic, appt.CancelReason))
	} else if appt.AdvisorID != nil {
		if err := s.notifier.EnqueueOrCreate(ctx, []uint{*appt.AdvisorID}, notifications.New(
			"Appointment cancelled by student", appt.Topic, "warning")); err != nil {
			logrus.WithError(err).Warn("appointment cancel notification failed")
		}
	}
	s.publisher.PublishDocument(CollectionAppointments, appt.ID, appt)
	return appt, nil
}

func (s *AppointmentService) Complete(ctx context.Context, id uint) (*models.Appointment, error) {
	appt, err := s.store.Appointments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.ApptConfirmed {
		return nil, fmt.Errorf("%w: cannot complete a %s appointment", ErrInvalidTransition, appt.Status)
	}
	appt.Status = models.ApptCompleted
	if err := s.store.Appointments().Update(ctx, appt); err != nil {
		return nil, err
	}
	s.publisher.PublishDocument(CollectionAppointments, appt.ID, appt)
	return appt, nil
}

// SendReminders notifies students of confirmed appointments starting
// within the next day. Each appointment is reminded once.
func (s *AppointmentService) SendReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.Appointments().DueReminders(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range due {
		appt := &due[i]
		s.notifyStudent(ctx, appt, "Appointment reminder",
			fmt.Sprintf("\"%s\" starts at %s.", appt.Topic, appt.StartsAt.Format("02 Jan 2006 15:04")),
			notifications.ChannelLine, notifications.ChannelEmail)
		if err := s.store.Appointments().MarkReminded(ctx, appt.ID, now); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// requireAdvisor loads and locks the advisor's user row. Only admins advise.
func requireAdvisor(ctx context.Context, store repository.Store, id uint) (*models.User, error) {
	advisor, err := store.Users().LockByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && (advisor.Role != models.RoleAdmin || advisor.Status != models.UserActive)) {
		return nil, &utils.ValidationError{Fields: map[string]string{"advisor_id": "must be an active admin user"}}
	}
	return advisor, err
}

func checkConflict(ctx context.Context, store repository.Store, advisorID uint, start, end time.Time, excludeID uint) error {
	candidates, err := store.Appointments().ConfirmedForAdvisor(ctx, advisorID, start.Add(-maxAppointmentMinutes*time.Minute), end)
	if err != nil {
		return err
	}
	for _, other := range candidates {
		if other.ID == excludeID {
			continue
		}
		if other.StartsAt.Before(end) && start.Before(other.EndsAt()) {
			return fmt.Errorf("%w: advisor already booked %s-%s", ErrConflict,
				other.StartsAt.Format("15:04"), other.EndsAt().Format("15:04"))
		}
	}
	return nil
}

func (s *AppointmentService) notifyStudent(ctx context.Context, appt *models.Appointment, title, message string, extra ...string) {
	student, err := s.store.Students().GetByID(ctx, appt.StudentID)
	if err != nil {
		logrus.WithError(err).WithField("student_id", appt.StudentID).Warn("appointment notification: student lookup failed")
		return
	}
	channels := append([]string{notifications.ChannelNormal, notifications.ChannelPopup}, extra...)
	err = s.notifier.EnqueueOrCreate(ctx, []uint{student.UserID}, notifications.WithData(
		title, message, "info", map[string]interface{}{"appointment_id": appt.ID, "link": "/student/appointments"}, channels...))
	if err != nil {
		logrus.WithError(err).WithField("appointment_id", appt.ID).Warn("appointment notification failed")
	}
}
