package services

import (
	"context"
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

// ProfileInput is the general information a student maintains.
type ProfileInput struct {
	FirstName        string     `json:"first_name" validate:"required,max=100"`
	LastName         string     `json:"last_name" validate:"omitempty,max=100"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	Gender           string     `json:"gender" validate:"omitempty,max=20"`
	Nationality      string     `json:"nationality" validate:"omitempty,max=100"`
	PassportNumber   string     `json:"passport_number" validate:"omitempty,max=50"`
	PassportExpiry   *time.Time `json:"passport_expiry"`
	Address          string     `json:"address" validate:"omitempty,max=500"`
	HighestEducation string     `json:"highest_education" validate:"omitempty,max=100"`
	Institution      string     `json:"institution" validate:"omitempty,max=200"`
	GPA              string     `json:"gpa" validate:"omitempty,max=20"`
	EnglishTest      string     `json:"english_test" validate:"omitempty,max=50"`
	EnglishScore     string     `json:"english_score" validate:"omitempty,max=20"`
	TargetCountry    string     `json:"target_country" validate:"omitempty,max=100"`
	IntendedProgram  string     `json:"intended_program" validate:"omitempty,max=200"`
	PreferredIntake  string     `json:"preferred_intake" validate:"omitempty,max=50"`
	Budget           string     `json:"budget" validate:"omitempty,max=50"`
	EmergencyContact string     `json:"emergency_contact" validate:"omitempty,max=200"`
	EmergencyPhone   string     `json:"emergency_phone" validate:"omitempty,max=30"`
}

// AdvisorInput holds the fields only staff may change.
type AdvisorInput struct {
	AssignedAdvisorID *uint  `json:"assigned_advisor_id"`
	Notes             string `json:"notes"`
}

type StudentService struct {
	store     repository.Store
	cache     cache.Cache
	publisher Publisher
}

func NewStudentService(store repository.Store, c cache.Cache, publisher Publisher) *StudentService {
	return &StudentService{store: store, cache: c, publisher: orNoopPublisher(publisher)}
}

func (s *StudentService) ByUser(ctx context.Context, userID uint) (*models.Student, error) {
	return s.store.Students().GetByUserID(ctx, userID)
}

func (s *StudentService) Get(ctx context.Context, id uint) (*models.Student, error) {
	return s.store.Students().GetByID(ctx, id)
}

func (s *StudentService) List(ctx context.Context, search string, page repository.Page) ([]models.Student, int64, error) {
	return s.store.Students().List(ctx, strings.TrimSpace(search), page)
}

// UpdateProfile replaces the general information of a student.
func (s *StudentService) UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*models.Student, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.PassportExpiry != nil && in.DateOfBirth != nil && !in.PassportExpiry.After(*in.DateOfBirth) {
		return nil, &utils.ValidationError{Fields: map[string]string{"passport_expiry": "must be after date_of_birth"}}
	}
	st, err := s.store.Students().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st.FirstName = utils.SanitizeString(in.FirstName)
	st.LastName = utils.SanitizeString(in.LastName)
	st.DateOfBirth = in.DateOfBirth
	st.Gender = in.Gender
	st.Nationality = in.Nationality
	st.PassportNumber = strings.ToUpper(strings.TrimSpace(in.PassportNumber))
	st.PassportExpiry = in.PassportExpiry
	st.Address = in.Address
	st.HighestEducation = in.HighestEducation
	st.Institution = in.Institution
	st.GPA = in.GPA
	st.EnglishTest = in.EnglishTest
	st.EnglishScore = in.EnglishScore
	st.TargetCountry = in.TargetCountry
	st.IntendedProgram = in.IntendedProgram
	st.PreferredIntake = in.PreferredIntake
	st.Budget = in.Budget
	st.EmergencyContact = in.EmergencyContact
	st.EmergencyPhone = in.EmergencyPhone
	return s.save(ctx, st)
}

// UpdateAdvising sets the staff-only fields.
func (s *StudentService) UpdateAdvising(ctx context.Context, id uint, in AdvisorInput) (*models.Student, error) {
	st, err := s.store.Students().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.AssignedAdvisorID != nil {
		advisor, err := s.store.Users().GetByID(ctx, *in.AssignedAdvisorID)
		if err != nil || advisor.Role != models.RoleAdmin {
			return nil, &utils.ValidationError{Fields: map[string]string{"assigned_advisor_id": "must be an admin user"}}
		}
	}
	st.AssignedAdvisorID = in.AssignedAdvisorID
	st.Notes = in.Notes
	return s.save(ctx, st)
}

func (s *StudentService) save(ctx context.Context, st *models.Student) (*models.Student, error) {
	if err := s.store.Students().Update(ctx, st); err != nil {
		return nil, err
	}
	if s.cache != nil {
		cache.Forget(ctx, s.cache, cache.StudentDashboardKey(st.ID))
	}
	s.publisher.PublishDocument(CollectionStudents, st.ID, st)
	return st, nil
}
