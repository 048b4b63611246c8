package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

type CourseInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Code        string `json:"code" validate:"required,max=100"`
	University  string `json:"university" validate:"required,max=255"`
	Country     string `json:"country" validate:"required,max=100"`
	Level       string `json:"level" validate:"omitempty,oneof=Foundation Diploma Undergraduate Postgraduate Doctorate Language"`
	Duration    string `json:"duration" validate:"omitempty,max=50"`
	TuitionFee  string `json:"tuition_fee" validate:"omitempty,max=100"`
	Intakes     string `json:"intakes" validate:"omitempty,max=200"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// CoursePage is one cached page of the catalogue.
type CoursePage struct {
	Items []models.Course `json:"items"`
	Total int64           `json:"total"`
}

// CourseService serves the course catalogue through the TTL cache.
type CourseService struct {
	store     repository.Store
	cache     cache.Cache
	publisher Publisher
	ttl       time.Duration
}

func NewCourseService(store repository.Store, c cache.Cache, publisher Publisher, ttl time.Duration) *CourseService {
	return &CourseService{store: store, cache: c, publisher: orNoopPublisher(publisher), ttl: ttl}
}

func courseListKey(f repository.CourseFilter) string {
	p := f.Page.Normalize()
	return fmt.Sprintf("%slist:%t:%s:%s:%s:%d:%d", cache.PrefixCourses, f.ActiveOnly,
		strings.ToLower(f.Country), strings.ToLower(f.Level), strings.ToLower(f.Search), p.Page, p.Limit)
}

// List returns a page of courses. Public callers pass ActiveOnly.
func (s *CourseService) List(ctx context.Context, f repository.CourseFilter) (CoursePage, error) {
	return cache.Fetch(ctx, s.cache, courseListKey(f), s.ttl, func(ctx context.Context) (CoursePage, error) {
		items, total, err := s.store.Courses().List(ctx, f)
		if err != nil {
			return CoursePage{}, err
		}
		return CoursePage{Items: items, Total: total}, nil
	})
}

func (s *CourseService) Get(ctx context.Context, id uint) (*models.Course, error) {
	key := fmt.Sprintf("%sitem:%d", cache.PrefixCourses, id)
	c, err := cache.Fetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) (models.Course, error) {
		c, err := s.store.Courses().GetByID(ctx, id)
		if err != nil {
			return models.Course{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CourseService) Create(ctx context.Context, in CourseInput) (*models.Course, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	c := &models.Course{Active: true}
	applyCourse(c, in)
	if err := s.store.Courses().Create(ctx, c); err != nil {
		if err == repository.ErrDuplicate {
			return nil, fmt.Errorf("%w: course code %s already exists", ErrConflict, c.Code)
		}
		return nil, err
	}
	s.changed(ctx, c.ID, c)
	return c, nil
}

func (s *CourseService) Update(ctx context.Context, id uint, in CourseInput) (*models.Course, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	c, err := s.store.Courses().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyCourse(c, in)
	if err := s.store.Courses().Update(ctx, c); err != nil {
		if err == repository.ErrDuplicate {
			return nil, fmt.Errorf("%w: course code %s already exists", ErrConflict, c.Code)
		}
		return nil, err
	}
	s.changed(ctx, c.ID, c)
	return c, nil
}

func (s *CourseService) Delete(ctx context.Context, id uint) error {
	if err := s.store.Courses().Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, id, nil)
	return nil
}

func (s *CourseService) changed(ctx context.Context, id uint, data interface{}) {
	cache.Invalidate(ctx, s.cache, cache.PrefixCourses, cache.PrefixAdminDashboard)
	s.publisher.PublishDocument(CollectionCourses, id, data)
}

func applyCourse(c *models.Course, in CourseInput) {
	c.Title = utils.SanitizeString(in.Title)
	c.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	c.University = utils.SanitizeString(in.University)
	c.Country = utils.SanitizeString(in.Country)
	c.Level = in.Level
	c.Duration = in.Duration
	c.TuitionFee = in.TuitionFee
	c.Intakes = in.Intakes
	c.Description = in.Description
	if in.Active != nil {
		c.Active = *in.Active
	}
}
