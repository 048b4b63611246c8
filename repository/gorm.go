package repository

import (
	"context"
	"errors"
	"time"

	"edupath_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store over db. db should be opened with
// TranslateError so duplicate keys map to ErrDuplicate.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository                 { return &gormUsers{s.db} }
func (s *gormStore) Registrations() RegistrationRepository { return &gormRegistrations{s.db} }
func (s *gormStore) Students() StudentRepository           { return &gormStudents{s.db} }
func (s *gormStore) Applications() ApplicationRepository   { return &gormApplications{s.db} }
func (s *gormStore) Appointments() AppointmentRepository   { return &gormAppointments{s.db} }
func (s *gormStore) Courses() CourseRepository             { return &gormCourses{s.db} }
func (s *gormStore) Settings() SettingsRepository          { return &gormSettings{s.db} }
func (s *gormStore) Blog() BlogRepository                  { return &gormBlog{s.db} }
func (s *gormStore) Policies() PolicyRepository            { return &gormPolicies{s.db} }
func (s *gormStore) Notifications() NotificationRepository { return &gormNotifications{s.db} }

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func countBy(ctx context.Context, db *gorm.DB, model interface{}, column string) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Total int64
	}
	err := db.WithContext(ctx).Model(model).
		Select(column + " AS `key`, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Total
	}
	return out, nil
}

type gormUsers struct{ db *gorm.DB }

func (r *gormUsers) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r *gormUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) LockByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) GetByLineID(ctx context.Context, lineID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("line_id = ?", lineID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) Update(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Save(u).Error)
}

func (r *gormUsers) List(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("email LIKE ? OR full_name LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := q.Order("id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&users).Error
	return users, total, err
}

func (r *gormUsers) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.User{}, id)
}

func (r *gormUsers) CountByRole(ctx context.Context) (map[string]int64, error) {
	return countBy(ctx, r.db, &models.User{}, "role")
}

type gormRegistrations struct{ db *gorm.DB }

func (r *gormRegistrations) Create(ctx context.Context, reg *models.Registration) error {
	return translate(r.db.WithContext(ctx).Create(reg).Error)
}

func (r *gormRegistrations) GetByID(ctx context.Context, id uint) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.WithContext(ctx).First(&reg, id).Error; err != nil {
		return nil, translate(err)
	}
	return &reg, nil
}

func (r *gormRegistrations) GetByUserID(ctx context.Context, userID uint) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&reg).Error; err != nil {
		return nil, translate(err)
	}
	return &reg, nil
}

func (r *gormRegistrations) List(ctx context.Context, status string, page Page) ([]models.Registration, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Registration{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var regs []models.Registration
	err := q.Order("created_at ASC").Offset(page.Offset()).Limit(page.Limit).Find(&regs).Error
	return regs, total, err
}

func (r *gormRegistrations) Update(ctx context.Context, reg *models.Registration) error {
	return translate(r.db.WithContext(ctx).Save(reg).Error)
}

func (r *gormRegistrations) StalePending(ctx context.Context, createdBefore, remindedBefore time.Time) ([]models.Registration, error) {
	var regs []models.Registration
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.RegPendingPayment, createdBefore).
		Where("last_reminder_at IS NULL OR last_reminder_at < ?", remindedBefore).
		Find(&regs).Error
	return regs, err
}

func (r *gormRegistrations) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countBy(ctx, r.db, &models.Registration{}, "status")
}

type gormStudents struct{ db *gorm.DB }

func (r *gormStudents) Create(ctx context.Context, s *models.Student) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r *gormStudents) GetByID(ctx context.Context, id uint) (*models.Student, error) {
	var s models.Student
	if err := r.db.WithContext(ctx).Preload("User").First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormStudents) GetByUserID(ctx context.Context, userID uint) (*models.Student, error) {
	var s models.Student
	if err := r.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormStudents) List(ctx context.Context, search string, page Page) ([]models.Student, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Student{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("first_name LIKE ? OR last_name LIKE ? OR target_country LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var students []models.Student
	err := q.Preload("User").Order("id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&students).Error
	return students, total, err
}

func (r *gormStudents) Update(ctx context.Context, s *models.Student) error {
	return translate(r.db.WithContext(ctx).Omit("User").Save(s).Error)
}

type gormApplications struct{ db *gorm.DB }

func stageOrder(db *gorm.DB) *gorm.DB {
	return db.Order("FIELD(category, 'application', 'visa')").Order("sort_order ASC")
}

func (r *gormApplications) Create(ctx context.Context, a *models.Application) error {
	return translate(r.db.WithContext(ctx).Create(a).Error)
}

func (r *gormApplications) GetByID(ctx context.Context, id uint) (*models.Application, error) {
	var a models.Application
	err := r.db.WithContext(ctx).
		Preload("Stages", stageOrder).
		Preload("Documents").
		First(&a, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *gormApplications) List(ctx context.Context, f ApplicationFilter) ([]models.Application, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Application{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var apps []models.Application
	err := q.Preload("Stages", stageOrder).
		Order("id DESC").Offset(page.Offset()).Limit(page.Limit).
		Find(&apps).Error
	return apps, total, err
}

func (r *gormApplications) Update(ctx context.Context, a *models.Application) error {
	res := r.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", a.ID).
		Select("university", "program", "country", "intake", "notes").
		Updates(a)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormApplications) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("application_id = ?", id).Delete(&models.ProgressStage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("application_id = ?", id).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Application{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormApplications) Stages(ctx context.Context, applicationID uint) ([]models.ProgressStage, error) {
	var stages []models.ProgressStage
	err := stageOrder(r.db.WithContext(ctx)).Where("application_id = ?", applicationID).Find(&stages).Error
	return stages, err
}

func (r *gormApplications) GetStage(ctx context.Context, id uint) (*models.ProgressStage, error) {
	var s models.ProgressStage
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormApplications) UpdateStage(ctx context.Context, s *models.ProgressStage) error {
	return r.db.WithContext(ctx).Model(s).
		Select("status", "note", "updated_by", "completed_at").
		Updates(s).Error
}

func (r *gormApplications) SaveStatus(ctx context.Context, id uint, s models.AppStatus) error {
	return r.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        s.Status,
			"progress":      s.Progress,
			"current_stage": s.CurrentStage,
		}).Error
}

func (r *gormApplications) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countBy(ctx, r.db, &models.Application{}, "status")
}

func (r *gormApplications) AddDocument(ctx context.Context, d *models.Document) error {
	return translate(r.db.WithContext(ctx).Create(d).Error)
}

func (r *gormApplications) GetDocument(ctx context.Context, id uint) (*models.Document, error) {
	var d models.Document
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *gormApplications) DeleteDocument(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Document{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type gormAppointments struct{ db *gorm.DB }

func (r *gormAppointments) Create(ctx context.Context, a *models.Appointment) error {
	return translate(r.db.WithContext(ctx).Omit("Student", "Advisor").Create(a).Error)
}

func (r *gormAppointments) GetByID(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *gormAppointments) List(ctx context.Context, f AppointmentFilter) ([]models.Appointment, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Appointment{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.AdvisorID != 0 {
		q = q.Where("advisor_id = ?", f.AdvisorID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("starts_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("starts_at < ?", *f.To)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var appts []models.Appointment
	err := q.Preload("Advisor").Order("starts_at ASC").Offset(page.Offset()).Limit(page.Limit).Find(&appts).Error
	return appts, total, err
}

func (r *gormAppointments) Update(ctx context.Context, a *models.Appointment) error {
	return translate(r.db.WithContext(ctx).Omit("Student", "Advisor").Save(a).Error)
}

func (r *gormAppointments) ConfirmedForAdvisor(ctx context.Context, advisorID uint, from, to time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := r.db.WithContext(ctx).
		Where("advisor_id = ? AND status = ? AND starts_at >= ? AND starts_at < ?", advisorID, models.ApptConfirmed, from, to).
		Find(&appts).Error
	return appts, err
}

func (r *gormAppointments) DueReminders(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminded_at IS NULL AND starts_at >= ? AND starts_at < ?", models.ApptConfirmed, from, to).
		Find(&appts).Error
	return appts, err
}

func (r *gormAppointments) MarkReminded(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Appointment{}).Where("id = ?", id).Update("reminded_at", at).Error
}

func (r *gormAppointments) CountUpcoming(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("starts_at >= ? AND status IN ?", now, []string{models.ApptRequested, models.ApptConfirmed}).
		Count(&n).Error
	return n, err
}

type gormCourses struct{ db *gorm.DB }

func (r *gormCourses) Create(ctx context.Context, c *models.Course) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *gormCourses) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	var c models.Course
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *gormCourses) List(ctx context.Context, f CourseFilter) ([]models.Course, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Course{})
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if f.Country != "" {
		q = q.Where("country = ?", f.Country)
	}
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("title LIKE ? OR university LIKE ? OR code LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var courses []models.Course
	err := q.Order("title ASC").Offset(page.Offset()).Limit(page.Limit).Find(&courses).Error
	return courses, total, err
}

func (r *gormCourses) Update(ctx context.Context, c *models.Course) error {
	return translate(r.db.WithContext(ctx).Save(c).Error)
}

func (r *gormCourses) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Course{}, id)
}

func deleteByID(ctx context.Context, db *gorm.DB, model interface{}, id uint) error {
	res := db.WithContext(ctx).Delete(model, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type gormSettings struct{ db *gorm.DB }

func (r *gormSettings) Get(ctx context.Context, userID uint) (*models.UserSettings, error) {
	var s models.UserSettings
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormSettings) ForUsers(ctx context.Context, userIDs []uint) (map[uint]models.UserSettings, error) {
	out := map[uint]models.UserSettings{}
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.UserSettings
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.UserID] = s
	}
	return out, nil
}

func (r *gormSettings) Save(ctx context.Context, s *models.UserSettings) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"language", "enable_notification_sound", "notification_sound", "enable_email_notifications", "enable_line_notifications", "updated_at"}),
	}).Create(s).Error)
}

type gormBlog struct{ db *gorm.DB }

func (r *gormBlog) Create(ctx context.Context, p *models.BlogPost) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *gormBlog) GetByID(ctx context.Context, id uint) (*models.BlogPost, error) {
	var p models.BlogPost
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *gormBlog) GetPublished(ctx context.Context, slug string) (*models.BlogPost, error) {
	var p models.BlogPost
	if err := r.db.WithContext(ctx).Where("slug = ? AND published = ?", slug, true).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *gormBlog) List(ctx context.Context, f BlogFilter) ([]models.BlogPost, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.BlogPost{})
	if f.PublishedOnly {
		q = q.Where("published = ?", true)
	}
	if f.Tag != "" {
		q = q.Where("tags LIKE ?", "%"+f.Tag+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var posts []models.BlogPost
	err := q.Order("published_at DESC, id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&posts).Error
	return posts, total, err
}

func (r *gormBlog) Update(ctx context.Context, p *models.BlogPost) error {
	return translate(r.db.WithContext(ctx).Save(p).Error)
}

func (r *gormBlog) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.BlogPost{}, id)
}

type gormPolicies struct{ db *gorm.DB }

func (r *gormPolicies) Get(ctx context.Context, slug string) (*models.PolicyPage, error) {
	var p models.PolicyPage
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *gormPolicies) List(ctx context.Context) ([]models.PolicyPage, error) {
	var pages []models.PolicyPage
	err := r.db.WithContext(ctx).Select("id", "slug", "title", "version", "updated_at").Order("slug").Find(&pages).Error
	return pages, err
}

func (r *gormPolicies) Upsert(ctx context.Context, p *models.PolicyPage) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "body", "version", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return translate(err)
	}
	// MySQL does not report the id of an updated row.
	return translate(r.db.WithContext(ctx).Where("slug = ?", p.Slug).First(p).Error)
}

type gormNotifications struct{ db *gorm.DB }

func (r *gormNotifications) Create(ctx context.Context, notifs []models.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("User").Create(&notifs).Error
}

func (r *gormNotifications) List(ctx context.Context, f NotificationFilter) ([]models.Notification, int64, error) {
	page := f.Page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", f.UserID)
	if f.Read != nil {
		q = q.Where("`read` = ?", *f.Read)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Notification
	err := q.Preload("User").Order("created_at DESC, id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&list).Error
	return list, total, err
}

func (r *gormNotifications) GetForUser(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

func (r *gormNotifications) MarkRead(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{"read": true, "read_at": &at}).Error
}

func (r *gormNotifications) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": &at})
	return res.RowsAffected, res.Error
}

func (r *gormNotifications) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Notification{}, id)
}

func (r *gormNotifications) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).
		Count(&n).Error
	return n, err
}
