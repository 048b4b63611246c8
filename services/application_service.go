package services

import (
	"context"
	"fmt"
	"time"

	"edupath_go/config"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

type ApplicationInput struct {
	StudentID  uint   `json:"student_id"`
	University string `json:"university" validate:"required,max=255"`
	Program    string `json:"program" validate:"omitempty,max=255"`
	Country    string `json:"country" validate:"omitempty,max=100"`
	Intake     string `json:"intake" validate:"omitempty,max=50"`
	Notes      string `json:"notes"`
}

type StageUpdateInput struct {
	Status string `json:"status" validate:"required,oneof='Not Started' 'In Progress' 'Completed'"`
	Note   string `json:"note"`
}

// StatusTrigger schedules a status recompute for an application.
type StatusTrigger interface {
	Touch(applicationID uint)
}

// NewApplication builds an application with one stage per template entry,
// application stages first.
func NewApplication(studentID uint, templates config.StageTemplateSet, in ApplicationInput) *models.Application {
	app := &models.Application{
		StudentID:  studentID,
		University: in.University,
		Program:    in.Program,
		Country:    in.Country,
		Intake:     in.Intake,
		Notes:      in.Notes,
	}
	for i, name := range templates.Application {
		app.Stages = append(app.Stages, models.ProgressStage{
			Category: models.CategoryApplication, Name: name, SortOrder: i + 1, Status: models.StageNotStarted,
		})
	}
	for i, name := range templates.Visa {
		app.Stages = append(app.Stages, models.ProgressStage{
			Category: models.CategoryVisa, Name: name, SortOrder: i + 1, Status: models.StageNotStarted,
		})
	}
	summary := models.CalculateAppStatus(app.Stages)
	app.Status, app.Progress, app.CurrentStage = summary.Status, summary.Progress, summary.CurrentStage
	return app
}

// ApplicationService manages applications, their stages and documents.
type ApplicationService struct {
	store     repository.Store
	trigger   StatusTrigger
	publisher Publisher
	templates config.StageTemplateSet
	now       func() time.Time
}

func NewApplicationService(store repository.Store, trigger StatusTrigger, publisher Publisher, templates config.StageTemplateSet) *ApplicationService {
	return &ApplicationService{
		store:     store,
		trigger:   trigger,
		publisher: orNoopPublisher(publisher),
		templates: templates,
		now:       time.Now,
	}
}

func (s *ApplicationService) Create(ctx context.Context, in ApplicationInput) (*models.Application, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.StudentID == 0 {
		return nil, &utils.ValidationError{Fields: map[string]string{"student_id": "this field is required"}}
	}
	if _, err := s.store.Students().GetByID(ctx, in.StudentID); err != nil {
		return nil, err
	}
	app := NewApplication(in.StudentID, s.templates, in)
	if err := s.store.Applications().Create(ctx, app); err != nil {
		return nil, err
	}
	s.publisher.PublishDocument(CollectionApplications, app.ID, utils.ToApplicationDTO(*app))
	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, id uint) (*models.Application, error) {
	return s.store.Applications().GetByID(ctx, id)
}

// GetForStudent returns the application only if it belongs to studentID.
func (s *ApplicationService) GetForStudent(ctx context.Context, id, studentID uint) (*models.Application, error) {
	app, err := s.store.Applications().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.StudentID != studentID {
		return nil, ErrForbidden
	}
	return app, nil
}

func (s *ApplicationService) List(ctx context.Context, f repository.ApplicationFilter) ([]models.Application, int64, error) {
	return s.store.Applications().List(ctx, f)
}

func (s *ApplicationService) Update(ctx context.Context, id uint, in ApplicationInput) (*models.Application, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	app := &models.Application{
		BaseModel:  models.BaseModel{ID: id},
		University: in.University,
		Program:    in.Program,
		Country:    in.Country,
		Intake:     in.Intake,
		Notes:      in.Notes,
	}
	if err := s.store.Applications().Update(ctx, app); err != nil {
		return nil, err
	}
	updated, err := s.store.Applications().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.PublishDocument(CollectionApplications, id, utils.ToApplicationDTO(*updated))
	return updated, nil
}

func (s *ApplicationService) Delete(ctx context.Context, id uint) error {
	if err := s.store.Applications().Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.PublishDocument(CollectionApplications, id, nil)
	return nil
}

// UpdateStage changes one stage's status and schedules the debounced
// recompute of the application's derived status.
func (s *ApplicationService) UpdateStage(ctx context.Context, applicationID, stageID, adminID uint, in StageUpdateInput) (*models.ProgressStage, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	stage, err := s.store.Applications().GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.ApplicationID != applicationID {
		return nil, ErrNotFound
	}

	stage.Status = in.Status
	stage.Note = in.Note
	stage.UpdatedBy = &adminID
	if in.Status == models.StageCompleted {
		if stage.CompletedAt == nil {
			now := s.now()
			stage.CompletedAt = &now
		}
	} else {
		stage.CompletedAt = nil
	}
	if err := s.store.Applications().UpdateStage(ctx, stage); err != nil {
		return nil, err
	}
	if s.trigger != nil {
		s.trigger.Touch(applicationID)
	}
	return stage, nil
}

type DocumentInput struct {
	Type     string `json:"type" validate:"required,oneof=passport transcript offer_letter financial other"`
	FileName string `json:"file_name" validate:"required,max=255"`
	URL      string `json:"url" validate:"required,max=500"`
	Size     int64  `json:"size"`
}

func (s *ApplicationService) AddDocument(ctx context.Context, applicationID, uploaderID uint, in DocumentInput) (*models.Document, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	doc := &models.Document{
		ApplicationID: applicationID,
		UploadedBy:    uploaderID,
		Type:          in.Type,
		FileName:      in.FileName,
		URL:           in.URL,
		Size:          in.Size,
	}
	if err := s.store.Applications().AddDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.republish(ctx, applicationID)
	return doc, nil
}

func (s *ApplicationService) DeleteDocument(ctx context.Context, applicationID, documentID uint) (*models.Document, error) {
	doc, err := s.store.Applications().GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ApplicationID != applicationID {
		return nil, fmt.Errorf("%w: document %d is not part of application %d", ErrNotFound, documentID, applicationID)
	}
	if err := s.store.Applications().DeleteDocument(ctx, documentID); err != nil {
		return nil, err
	}
	s.republish(ctx, applicationID)
	return doc, nil
}

func (s *ApplicationService) republish(ctx context.Context, id uint) {
	if app, err := s.store.Applications().GetByID(ctx, id); err == nil {
		s.publisher.PublishDocument(CollectionApplications, id, utils.ToApplicationDTO(*app))
	}
}
