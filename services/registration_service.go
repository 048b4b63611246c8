package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edupath_go/config"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services/notifications"
	"edupath_go/utils"

	"github.com/sirupsen/logrus"
)

// registrationTransitions lists the allowed next states of a queue entry.
// Re-submitting payment proof keeps the entry in payment_submitted.
var registrationTransitions = map[string][]string{
	models.RegPendingPayment:   {models.RegPaymentSubmitted, models.RegRejected},
	models.RegPaymentSubmitted: {models.RegPaymentSubmitted, models.RegPaymentVerified, models.RegRejected},
	models.RegPaymentVerified:  {models.RegApproved, models.RegRejected},
}

// CanTransition reports whether a registration may move from one state to another.
func CanTransition(from, to string) bool {
	for _, next := range registrationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type RegisterInput struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	FullName        string `json:"full_name" validate:"required,max=200"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	TargetCountry   string `json:"target_country" validate:"omitempty,max=100"`
	IntendedProgram string `json:"intended_program" validate:"omitempty,max=200"`
}

type PaymentInput struct {
	Reference  string `json:"payment_reference" validate:"required,max=200"`
	ReceiptURL string `json:"receipt_url" validate:"omitempty,max=500"`
}

// RegistrationService runs the registration queue: sign-up, payment proof,
// admin verification and the approve/reject decision.
type RegistrationService struct {
	store     repository.Store
	notifier  Notifier
	publisher Publisher
	templates config.StageTemplateSet
	fee       int
	now       func() time.Time
}

func NewRegistrationService(store repository.Store, notifier Notifier, publisher Publisher, templates config.StageTemplateSet, fee int) *RegistrationService {
	return &RegistrationService{
		store:     store,
		notifier:  orNoopNotifier(notifier),
		publisher: orNoopPublisher(publisher),
		templates: templates,
		fee:       fee,
		now:       time.Now,
	}
}

// Register creates a pending user and its queue entry.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*models.User, *models.Registration, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	in.FullName = utils.SanitizeString(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		Email:    in.Email,
		Password: hash,
		FullName: in.FullName,
		Phone:    in.Phone,
		Role:     models.RolePending,
		Status:   models.UserActive,
	}
	reg := &models.Registration{
		FullName:        in.FullName,
		Email:           in.Email,
		Phone:           in.Phone,
		TargetCountry:   in.TargetCountry,
		IntendedProgram: in.IntendedProgram,
		Status:          models.RegPendingPayment,
		FeeAmount:       s.fee,
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: email already registered", ErrConflict)
			}
			return err
		}
		reg.UserID = user.ID
		return tx.Registrations().Create(ctx, reg)
	})
	if err != nil {
		return nil, nil, err
	}

	s.publisher.PublishDocument(CollectionRegistrations, reg.ID, reg)
	return user, reg, nil
}

// Status returns the caller's own queue entry.
func (s *RegistrationService) Status(ctx context.Context, userID uint) (*models.Registration, error) {
	return s.store.Registrations().GetByUserID(ctx, userID)
}

func (s *RegistrationService) Get(ctx context.Context, id uint) (*models.Registration, error) {
	return s.store.Registrations().GetByID(ctx, id)
}

func (s *RegistrationService) List(ctx context.Context, status string, page repository.Page) ([]models.Registration, int64, error) {
	return s.store.Registrations().List(ctx, status, page)
}

// SubmitPayment records payment proof and alerts the admins.
func (s *RegistrationService) SubmitPayment(ctx context.Context, userID uint, in PaymentInput) (*models.Registration, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	reg, err := s.store.Registrations().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(reg.Status, models.RegPaymentSubmitted) {
		return nil, fmt.Errorf("%w: cannot submit payment while %s", ErrInvalidTransition, reg.Status)
	}

	now := s.now()
	resubmitted := reg.Status == models.RegPaymentSubmitted
	reg.Status = models.RegPaymentSubmitted
	reg.PaymentReference = in.Reference
	if in.ReceiptURL != "" {
		reg.ReceiptURL = in.ReceiptURL
	}
	reg.PaymentSubmitted = &now
	if err := s.store.Registrations().Update(ctx, reg); err != nil {
		return nil, err
	}

	title := "Payment submitted"
	if resubmitted {
		title = "Payment re-submitted"
	}
	s.notify(ctx, func() error {
		return s.notifier.NotifyRole(ctx, models.RoleAdmin, notifications.WithData(
			title,
			fmt.Sprintf("%s submitted payment reference %s.", reg.FullName, reg.PaymentReference),
			"info",
			map[string]interface{}{"registration_id": reg.ID, "link": "/admin/registrations"},
			notifications.ChannelNormal, notifications.ChannelPopup,
		))
	})
	s.publisher.PublishDocument(CollectionRegistrations, reg.ID, reg)
	return reg, nil
}

// VerifyPayment marks submitted payment proof as checked.
func (s *RegistrationService) VerifyPayment(ctx context.Context, id, adminID uint) (*models.Registration, error) {
	reg, err := s.store.Registrations().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.RegPaymentSubmitted {
		return nil, fmt.Errorf("%w: cannot verify payment while %s", ErrInvalidTransition, reg.Status)
	}
	now := s.now()
	reg.Status = models.RegPaymentVerified
	reg.PaymentVerified = &now
	reg.VerifiedBy = &adminID
	if err := s.store.Registrations().Update(ctx, reg); err != nil {
		return nil, err
	}
	s.notify(ctx, func() error {
		return s.notifier.EnqueueOrCreate(ctx, []uint{reg.UserID}, notifications.New(
			"Payment verified",
			"We received your registration fee. An advisor will review your registration shortly.",
			"success",
		))
	})
	s.publisher.PublishDocument(CollectionRegistrations, reg.ID, reg)
	return reg, nil
}

// ApprovalResult is everything created when a registration is approved.
type ApprovalResult struct {
	Registration *models.Registration `json:"registration"`
	Student      *models.Student      `json:"student"`
	Application  *models.Application  `json:"application"`
}

// Approve promotes the user to student, creates the general-info profile
// and opens a first application with the default stages.
func (s *RegistrationService) Approve(ctx context.Context, id, adminID uint) (*ApprovalResult, error) {
	var res ApprovalResult
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		reg, err := tx.Registrations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(reg.Status, models.RegApproved) {
			return fmt.Errorf("%w: cannot approve while %s", ErrInvalidTransition, reg.Status)
		}
		user, err := tx.Users().GetByID(ctx, reg.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		reg.Status = models.RegApproved
		reg.DecidedAt = &now
		reg.DecidedBy = &adminID
		if err := tx.Registrations().Update(ctx, reg); err != nil {
			return err
		}

		user.Role = models.RoleStudent
		user.Status = models.UserActive
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}

		first, last := splitName(reg.FullName)
		student := &models.Student{
			UserID:            user.ID,
			FirstName:         first,
			LastName:          last,
			TargetCountry:     reg.TargetCountry,
			IntendedProgram:   reg.IntendedProgram,
			AssignedAdvisorID: &adminID,
		}
		if err := tx.Students().Create(ctx, student); err != nil {
			return err
		}

		app := NewApplication(student.ID, s.templates, ApplicationInput{
			University: "To be decided",
			Program:    reg.IntendedProgram,
			Country:    reg.TargetCountry,
		})
		if err := tx.Applications().Create(ctx, app); err != nil {
			return err
		}

		res = ApprovalResult{Registration: reg, Student: student, Application: app}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, func() error {
		return s.notifier.EnqueueOrCreate(ctx, []uint{res.Registration.UserID}, notifications.WithData(
			"Registration approved",
			"Welcome! Your student dashboard is ready.",
			"success",
			map[string]interface{}{"link": "/student/dashboard", "application_id": res.Application.ID},
			notifications.ChannelNormal, notifications.ChannelPopup, notifications.ChannelEmail,
		))
	})
	s.publisher.PublishDocument(CollectionRegistrations, res.Registration.ID, res.Registration)
	s.publisher.PublishDocument(CollectionStudents, res.Student.ID, res.Student)
	s.publisher.PublishDocument(CollectionApplications, res.Application.ID, utils.ToApplicationDTO(*res.Application))
	return &res, nil
}

// Reject closes the entry and blocks the account from signing in.
func (s *RegistrationService) Reject(ctx context.Context, id, adminID uint, reason string) (*models.Registration, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &utils.ValidationError{Fields: map[string]string{"reason": "this field is required"}}
	}
	var reg *models.Registration
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		reg, err = tx.Registrations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(reg.Status, models.RegRejected) {
			return fmt.Errorf("%w: cannot reject while %s", ErrInvalidTransition, reg.Status)
		}
		now := s.now()
		reg.Status = models.RegRejected
		reg.RejectionReason = reason
		reg.DecidedAt = &now
		reg.DecidedBy = &adminID
		if err := tx.Registrations().Update(ctx, reg); err != nil {
			return err
		}
		user, err := tx.Users().GetByID(ctx, reg.UserID)
		if err != nil {
			return err
		}
		user.Status = models.UserRejected
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, func() error {
		return s.notifier.EnqueueOrCreate(ctx, []uint{reg.UserID}, notifications.New(
			"Registration rejected",
			"Your registration was not approved: "+reason,
			"warning",
			notifications.ChannelNormal, notifications.ChannelEmail,
		))
	})
	s.publisher.PublishDocument(CollectionRegistrations, reg.ID, reg)
	return reg, nil
}

// RemindStale nudges users stuck in pending_payment for longer than age,
// at most once per day each. It returns how many were reminded.
func (s *RegistrationService) RemindStale(ctx context.Context, age time.Duration) (int, error) {
	now := s.now()
	regs, err := s.store.Registrations().StalePending(ctx, now.Add(-age), now.Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}
	reminded := 0
	for i := range regs {
		reg := &regs[i]
		err := s.notifier.EnqueueOrCreate(ctx, []uint{reg.UserID}, notifications.WithData(
			"Complete your registration",
			fmt.Sprintf("Your registration is waiting for the fee payment of %d. Submit your payment reference to continue.", reg.FeeAmount),
			"info",
			map[string]interface{}{"link": "/pending-approval"},
			notifications.ChannelNormal, notifications.ChannelEmail,
		))
		if err != nil {
			logrus.WithError(err).WithField("registration_id", reg.ID).Warn("stale registration reminder failed")
			continue
		}
		reg.LastReminderAt = &now
		if err := s.store.Registrations().Update(ctx, reg); err != nil {
			return reminded, err
		}
		reminded++
	}
	return reminded, nil
}

// notify runs a notification call and only logs its failure; the state
// change it reports has already been committed.
func (s *RegistrationService) notify(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		logrus.WithContext(ctx).WithError(err).Warn("registration notification failed")
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
