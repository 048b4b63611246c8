package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"edupath_go/models"
)

// MemoryStore keeps every table in maps. Transactions run one at a time
// and restore a snapshot of all tables when fn fails. Writes outside a
// transaction are not blocked by one.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	seq  uint
	now  func() time.Time

	users         map[uint]models.User
	registrations map[uint]models.Registration
	students      map[uint]models.Student
	applications  map[uint]models.Application
	stages        map[uint]models.ProgressStage
	documents     map[uint]models.Document
	appointments  map[uint]models.Appointment
	courses       map[uint]models.Course
	settings      map[uint]models.UserSettings
	blog          map[uint]models.BlogPost
	policies      map[uint]models.PolicyPage
	notifications map[uint]models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		users:         map[uint]models.User{},
		registrations: map[uint]models.Registration{},
		students:      map[uint]models.Student{},
		applications:  map[uint]models.Application{},
		stages:        map[uint]models.ProgressStage{},
		documents:     map[uint]models.Document{},
		appointments:  map[uint]models.Appointment{},
		courses:       map[uint]models.Course{},
		settings:      map[uint]models.UserSettings{},
		blog:          map[uint]models.BlogPost{},
		policies:      map[uint]models.PolicyPage{},
		notifications: map[uint]models.Notification{},
	}
}

// SetClock overrides the timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemoryStore) Users() UserRepository                 { return memUsers{m} }
func (m *MemoryStore) Registrations() RegistrationRepository { return memRegistrations{m} }
func (m *MemoryStore) Students() StudentRepository           { return memStudents{m} }
func (m *MemoryStore) Applications() ApplicationRepository   { return memApplications{m} }
func (m *MemoryStore) Appointments() AppointmentRepository   { return memAppointments{m} }
func (m *MemoryStore) Courses() CourseRepository             { return memCourses{m} }
func (m *MemoryStore) Settings() SettingsRepository          { return memSettings{m} }
func (m *MemoryStore) Blog() BlogRepository                  { return memBlog{m} }
func (m *MemoryStore) Policies() PolicyRepository            { return memPolicies{m} }
func (m *MemoryStore) Notifications() NotificationRepository { return memNotifications{m} }

func (m *MemoryStore) Transaction(_ context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.RLock()
	snap := m.snapshot()
	m.mu.RUnlock()
	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	seq           uint
	users         map[uint]models.User
	registrations map[uint]models.Registration
	students      map[uint]models.Student
	applications  map[uint]models.Application
	stages        map[uint]models.ProgressStage
	documents     map[uint]models.Document
	appointments  map[uint]models.Appointment
	courses       map[uint]models.Course
	settings      map[uint]models.UserSettings
	blog          map[uint]models.BlogPost
	policies      map[uint]models.PolicyPage
	notifications map[uint]models.Notification
}

func copyMap[T any](in map[uint]T) map[uint]T {
	out := make(map[uint]T, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		seq:           m.seq,
		users:         copyMap(m.users),
		registrations: copyMap(m.registrations),
		students:      copyMap(m.students),
		applications:  copyMap(m.applications),
		stages:        copyMap(m.stages),
		documents:     copyMap(m.documents),
		appointments:  copyMap(m.appointments),
		courses:       copyMap(m.courses),
		settings:      copyMap(m.settings),
		blog:          copyMap(m.blog),
		policies:      copyMap(m.policies),
		notifications: copyMap(m.notifications),
	}
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.seq = s.seq
	m.users = s.users
	m.registrations = s.registrations
	m.students = s.students
	m.applications = s.applications
	m.stages = s.stages
	m.documents = s.documents
	m.appointments = s.appointments
	m.courses = s.courses
	m.settings = s.settings
	m.blog = s.blog
	m.policies = s.policies
	m.notifications = s.notifications
}

// stamp assigns an id on create and refreshes timestamps. Callers hold mu.
func (m *MemoryStore) stamp(b *models.BaseModel) {
	now := m.now()
	if b.ID == 0 {
		m.seq++
		b.ID = m.seq
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func sortedValues[T any](in map[uint]T, keep func(T) bool) []T {
	ids := make([]uint, 0, len(in))
	for id, v := range in {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, in[id])
	}
	return out
}

func paginate[T any](all []T, p Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

type memUsers struct{ m *MemoryStore }

func (r memUsers) Create(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.ID = 0
	r.m.stamp(&u.BaseModel)
	stored := *u
	stored.Student = nil
	r.m.users[u.ID] = stored
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// LockByID needs no lock here: transactions are already serialized.
func (r memUsers) LockByID(ctx context.Context, id uint) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) GetByLineID(_ context.Context, lineID string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if lineID != "" && u.LineID == lineID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) Update(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[u.ID]; !ok {
		return ErrNotFound
	}
	r.m.stamp(&u.BaseModel)
	stored := *u
	stored.Student = nil
	r.m.users[u.ID] = stored
	return nil
}

func (r memUsers) List(_ context.Context, f UserFilter) ([]models.User, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	search := strings.ToLower(f.Search)
	all := sortedValues(r.m.users, func(u models.User) bool {
		switch {
		case f.Role != "" && u.Role != f.Role:
			return false
		case f.Status != "" && u.Status != f.Status:
			return false
		case search != "":
			return strings.Contains(strings.ToLower(u.Email+" "+u.FullName), search)
		}
		return true
	})
	reverse(all)
	return paginate(all, f.Page), int64(len(all)), nil
}

func (r memUsers) Delete(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.users, id)
	return nil
}

func (r memUsers) CountByRole(_ context.Context) (map[string]int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := map[string]int64{}
	for _, u := range r.m.users {
		out[u.Role]++
	}
	return out, nil
}

type memRegistrations struct{ m *MemoryStore }

func (r memRegistrations) Create(_ context.Context, reg *models.Registration) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.registrations {
		if other.UserID == reg.UserID {
			return ErrDuplicate
		}
	}
	reg.ID = 0
	r.m.stamp(&reg.BaseModel)
	stored := *reg
	stored.User = models.User{}
	r.m.registrations[reg.ID] = stored
	return nil
}

func (r memRegistrations) GetByID(_ context.Context, id uint) (*models.Registration, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	reg, ok := r.m.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reg, nil
}

func (r memRegistrations) GetByUserID(_ context.Context, userID uint) (*models.Registration, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, reg := range r.m.registrations {
		if reg.UserID == userID {
			return &reg, nil
		}
	}
	return nil, ErrNotFound
}

func (r memRegistrations) List(_ context.Context, status string, page Page) ([]models.Registration, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := sortedValues(r.m.registrations, func(reg models.Registration) bool {
		return status == "" || reg.Status == status
	})
	return paginate(all, page), int64(len(all)), nil
}

func (r memRegistrations) Update(_ context.Context, reg *models.Registration) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.registrations[reg.ID]; !ok {
		return ErrNotFound
	}
	r.m.stamp(&reg.BaseModel)
	stored := *reg
	stored.User = models.User{}
	r.m.registrations[reg.ID] = stored
	return nil
}

func (r memRegistrations) StalePending(_ context.Context, createdBefore, remindedBefore time.Time) ([]models.Registration, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return sortedValues(r.m.registrations, func(reg models.Registration) bool {
		return reg.Status == models.RegPendingPayment &&
			reg.CreatedAt.Before(createdBefore) &&
			(reg.LastReminderAt == nil || reg.LastReminderAt.Before(remindedBefore))
	}), nil
}

func (r memRegistrations) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := map[string]int64{}
	for _, reg := range r.m.registrations {
		out[reg.Status]++
	}
	return out, nil
}

type memStudents struct{ m *MemoryStore }

func (r memStudents) Create(_ context.Context, s *models.Student) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.students {
		if other.UserID == s.UserID {
			return ErrDuplicate
		}
	}
	s.ID = 0
	r.m.stamp(&s.BaseModel)
	stored := *s
	stored.User = models.User{}
	r.m.students[s.ID] = stored
	return nil
}

// withUser mirrors the User preload of the GORM repository. Callers hold mu.
func (r memStudents) withUser(s models.Student) *models.Student {
	s.User = r.m.users[s.UserID]
	return &s
}

func (r memStudents) GetByID(_ context.Context, id uint) (*models.Student, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.withUser(s), nil
}

func (r memStudents) GetByUserID(_ context.Context, userID uint) (*models.Student, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, s := range r.m.students {
		if s.UserID == userID {
			return r.withUser(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r memStudents) List(_ context.Context, search string, page Page) ([]models.Student, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	search = strings.ToLower(search)
	all := sortedValues(r.m.students, func(s models.Student) bool {
		if search == "" {
			return true
		}
		hay := strings.ToLower(s.FirstName + " " + s.LastName + " " + s.TargetCountry)
		return strings.Contains(hay, search)
	})
	reverse(all)
	out := paginate(all, page)
	for i := range out {
		out[i] = *r.withUser(out[i])
	}
	return out, int64(len(all)), nil
}

func (r memStudents) Update(_ context.Context, s *models.Student) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.students[s.ID]; !ok {
		return ErrNotFound
	}
	r.m.stamp(&s.BaseModel)
	stored := *s
	stored.User = models.User{}
	r.m.students[s.ID] = stored
	return nil
}

type memApplications struct{ m *MemoryStore }

// load attaches stages and documents. Callers hold mu.
func (r memApplications) load(a models.Application, docs bool) models.Application {
	a.Stages = sortedValues(r.m.stages, func(s models.ProgressStage) bool { return s.ApplicationID == a.ID })
	sortStages(a.Stages)
	if docs {
		a.Documents = sortedValues(r.m.documents, func(d models.Document) bool { return d.ApplicationID == a.ID })
	}
	return a
}

func sortStages(stages []models.ProgressStage) {
	rank := func(c string) int {
		if c == models.CategoryVisa {
			return 1
		}
		return 0
	}
	sort.SliceStable(stages, func(i, j int) bool {
		if ri, rj := rank(stages[i].Category), rank(stages[j].Category); ri != rj {
			return ri < rj
		}
		return stages[i].SortOrder < stages[j].SortOrder
	})
}

func (r memApplications) Create(_ context.Context, a *models.Application) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.ID = 0
	r.m.stamp(&a.BaseModel)
	for i := range a.Stages {
		a.Stages[i].ID = 0
		a.Stages[i].ApplicationID = a.ID
		r.m.stamp(&a.Stages[i].BaseModel)
		r.m.stages[a.Stages[i].ID] = a.Stages[i]
	}
	stored := *a
	stored.Stages, stored.Documents, stored.Student = nil, nil, models.Student{}
	r.m.applications[a.ID] = stored
	return nil
}

func (r memApplications) GetByID(_ context.Context, id uint) (*models.Application, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	a = r.load(a, true)
	return &a, nil
}

func (r memApplications) List(_ context.Context, f ApplicationFilter) ([]models.Application, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := sortedValues(r.m.applications, func(a models.Application) bool {
		return (f.StudentID == 0 || a.StudentID == f.StudentID) && (f.Status == "" || a.Status == f.Status)
	})
	reverse(all)
	out := paginate(all, f.Page)
	for i := range out {
		out[i] = r.load(out[i], false)
	}
	return out, int64(len(all)), nil
}

func (r memApplications) Update(_ context.Context, a *models.Application) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.applications[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.University, cur.Program, cur.Country, cur.Intake, cur.Notes = a.University, a.Program, a.Country, a.Intake, a.Notes
	r.m.stamp(&cur.BaseModel)
	r.m.applications[a.ID] = cur
	return nil
}

func (r memApplications) Delete(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.applications[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.applications, id)
	for sid, s := range r.m.stages {
		if s.ApplicationID == id {
			delete(r.m.stages, sid)
		}
	}
	for did, d := range r.m.documents {
		if d.ApplicationID == id {
			delete(r.m.documents, did)
		}
	}
	return nil
}

func (r memApplications) Stages(_ context.Context, applicationID uint) ([]models.ProgressStage, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	stages := sortedValues(r.m.stages, func(s models.ProgressStage) bool { return s.ApplicationID == applicationID })
	sortStages(stages)
	return stages, nil
}

func (r memApplications) GetStage(_ context.Context, id uint) (*models.ProgressStage, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.stages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r memApplications) UpdateStage(_ context.Context, s *models.ProgressStage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.stages[s.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status, cur.Note, cur.UpdatedBy, cur.CompletedAt = s.Status, s.Note, s.UpdatedBy, s.CompletedAt
	r.m.stamp(&cur.BaseModel)
	r.m.stages[s.ID] = cur
	return nil
}

func (r memApplications) SaveStatus(_ context.Context, id uint, s models.AppStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.applications[id]
	if !ok {
		return ErrNotFound
	}
	a.Status, a.Progress, a.CurrentStage = s.Status, s.Progress, s.CurrentStage
	r.m.stamp(&a.BaseModel)
	r.m.applications[id] = a
	return nil
}

func (r memApplications) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := map[string]int64{}
	for _, a := range r.m.applications {
		out[a.Status]++
	}
	return out, nil
}

func (r memApplications) AddDocument(_ context.Context, d *models.Document) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.applications[d.ApplicationID]; !ok {
		return ErrNotFound
	}
	d.ID = 0
	r.m.stamp(&d.BaseModel)
	r.m.documents[d.ID] = *d
	return nil
}

func (r memApplications) GetDocument(_ context.Context, id uint) (*models.Document, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	d, ok := r.m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r memApplications) DeleteDocument(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.documents[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.documents, id)
	return nil
}

type memAppointments struct{ m *MemoryStore }

func (r memAppointments) Create(_ context.Context, a *models.Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.ID = 0
	r.m.stamp(&a.BaseModel)
	stored := *a
	stored.Student, stored.Advisor = models.Student{}, nil
	r.m.appointments[a.ID] = stored
	return nil
}

func (r memAppointments) GetByID(_ context.Context, id uint) (*models.Appointment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r memAppointments) List(_ context.Context, f AppointmentFilter) ([]models.Appointment, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := sortedValues(r.m.appointments, func(a models.Appointment) bool {
		switch {
		case f.StudentID != 0 && a.StudentID != f.StudentID:
			return false
		case f.AdvisorID != 0 && (a.AdvisorID == nil || *a.AdvisorID != f.AdvisorID):
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case f.From != nil && a.StartsAt.Before(*f.From):
			return false
		case f.To != nil && !a.StartsAt.Before(*f.To):
			return false
		}
		return true
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartsAt.Before(all[j].StartsAt) })
	return paginate(all, f.Page), int64(len(all)), nil
}

func (r memAppointments) Update(_ context.Context, a *models.Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	r.m.stamp(&a.BaseModel)
	stored := *a
	stored.Student, stored.Advisor = models.Student{}, nil
	r.m.appointments[a.ID] = stored
	return nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r memAppointments) ConfirmedForAdvisor(_ context.Context, advisorID uint, from, to time.Time) ([]models.Appointment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return sortedValues(r.m.appointments, func(a models.Appointment) bool {
		return a.AdvisorID != nil && *a.AdvisorID == advisorID && a.Status == models.ApptConfirmed && inWindow(a.StartsAt, from, to)
	}), nil
}

func (r memAppointments) DueReminders(_ context.Context, from, to time.Time) ([]models.Appointment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return sortedValues(r.m.appointments, func(a models.Appointment) bool {
		return a.Status == models.ApptConfirmed && a.RemindedAt == nil && inWindow(a.StartsAt, from, to)
	}), nil
}

func (r memAppointments) MarkReminded(_ context.Context, id uint, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return ErrNotFound
	}
	a.RemindedAt = &at
	r.m.appointments[id] = a
	return nil
}

func (r memAppointments) CountUpcoming(_ context.Context, now time.Time) (int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var n int64
	for _, a := range r.m.appointments {
		if !a.StartsAt.Before(now) && (a.Status == models.ApptRequested || a.Status == models.ApptConfirmed) {
			n++
		}
	}
	return n, nil
}

type memCourses struct{ m *MemoryStore }

func (r memCourses) Create(_ context.Context, c *models.Course) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.courses {
		if c.Code != "" && other.Code == c.Code {
			return ErrDuplicate
		}
	}
	c.ID = 0
	r.m.stamp(&c.BaseModel)
	r.m.courses[c.ID] = *c
	return nil
}

func (r memCourses) GetByID(_ context.Context, id uint) (*models.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	c, ok := r.m.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r memCourses) List(_ context.Context, f CourseFilter) ([]models.Course, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	search := strings.ToLower(f.Search)
	all := sortedValues(r.m.courses, func(c models.Course) bool {
		switch {
		case f.ActiveOnly && !c.Active:
			return false
		case f.Country != "" && c.Country != f.Country:
			return false
		case f.Level != "" && c.Level != f.Level:
			return false
		case search != "":
			hay := strings.ToLower(c.Title + " " + c.University + " " + c.Code)
			return strings.Contains(hay, search)
		}
		return true
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	return paginate(all, f.Page), int64(len(all)), nil
}

func (r memCourses) Update(_ context.Context, c *models.Course) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.courses[c.ID]; !ok {
		return ErrNotFound
	}
	for id, other := range r.m.courses {
		if id != c.ID && c.Code != "" && other.Code == c.Code {
			return ErrDuplicate
		}
	}
	r.m.stamp(&c.BaseModel)
	r.m.courses[c.ID] = *c
	return nil
}

func (r memCourses) Delete(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.courses[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.courses, id)
	return nil
}

// memSettings keys rows by user id.
type memSettings struct{ m *MemoryStore }

func (r memSettings) Get(_ context.Context, userID uint) (*models.UserSettings, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r memSettings) ForUsers(_ context.Context, userIDs []uint) (map[uint]models.UserSettings, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := map[uint]models.UserSettings{}
	for _, id := range userIDs {
		if s, ok := r.m.settings[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (r memSettings) Save(_ context.Context, s *models.UserSettings) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if prev, ok := r.m.settings[s.UserID]; ok {
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	}
	r.m.stamp(&s.BaseModel)
	r.m.settings[s.UserID] = *s
	return nil
}

type memBlog struct{ m *MemoryStore }

func (r memBlog) slugTaken(slug string, except uint) bool {
	for id, p := range r.m.blog {
		if id != except && p.Slug == slug {
			return true
		}
	}
	return false
}

func (r memBlog) Create(_ context.Context, p *models.BlogPost) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.slugTaken(p.Slug, 0) {
		return ErrDuplicate
	}
	p.ID = 0
	r.m.stamp(&p.BaseModel)
	r.m.blog[p.ID] = *p
	return nil
}

func (r memBlog) GetByID(_ context.Context, id uint) (*models.BlogPost, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.blog[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r memBlog) GetPublished(_ context.Context, slug string) (*models.BlogPost, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, p := range r.m.blog {
		if p.Slug == slug && p.Published {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r memBlog) List(_ context.Context, f BlogFilter) ([]models.BlogPost, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	tag := strings.ToLower(f.Tag)
	all := sortedValues(r.m.blog, func(p models.BlogPost) bool {
		if f.PublishedOnly && !p.Published {
			return false
		}
		return tag == "" || strings.Contains(strings.ToLower(p.Tags), tag)
	})
	reverse(all)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].PublishedAt, all[j].PublishedAt
		switch {
		case a == nil || b == nil:
			return a != nil
		default:
			return a.After(*b)
		}
	})
	return paginate(all, f.Page), int64(len(all)), nil
}

func (r memBlog) Update(_ context.Context, p *models.BlogPost) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.blog[p.ID]; !ok {
		return ErrNotFound
	}
	if r.slugTaken(p.Slug, p.ID) {
		return ErrDuplicate
	}
	r.m.stamp(&p.BaseModel)
	r.m.blog[p.ID] = *p
	return nil
}

func (r memBlog) Delete(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.blog[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.blog, id)
	return nil
}

type memPolicies struct{ m *MemoryStore }

func (r memPolicies) Get(_ context.Context, slug string) (*models.PolicyPage, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, p := range r.m.policies {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r memPolicies) List(_ context.Context) ([]models.PolicyPage, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := sortedValues(r.m.policies, nil)
	for i := range all {
		all[i].Body = ""
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })
	return all, nil
}

func (r memPolicies) Upsert(_ context.Context, p *models.PolicyPage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = 0
	for id, existing := range r.m.policies {
		if existing.Slug == p.Slug {
			p.BaseModel = existing.BaseModel
			p.ID = id
			break
		}
	}
	r.m.stamp(&p.BaseModel)
	r.m.policies[p.ID] = *p
	return nil
}

type memNotifications struct{ m *MemoryStore }

func (r memNotifications) Create(_ context.Context, notifs []models.Notification) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range notifs {
		notifs[i].ID = 0
		r.m.stamp(&notifs[i].BaseModel)
		stored := notifs[i]
		stored.User = models.User{}
		r.m.notifications[stored.ID] = stored
	}
	return nil
}

func (r memNotifications) List(_ context.Context, f NotificationFilter) ([]models.Notification, int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := sortedValues(r.m.notifications, func(n models.Notification) bool {
		switch {
		case n.UserID != f.UserID:
			return false
		case f.Read != nil && n.Read != *f.Read:
			return false
		}
		return f.Type == "" || n.Type == f.Type
	})
	reverse(all)
	return paginate(all, f.Page), int64(len(all)), nil
}

func (r memNotifications) GetForUser(_ context.Context, id, userID uint) (*models.Notification, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	n, ok := r.m.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (r memNotifications) MarkRead(_ context.Context, id uint, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n, ok := r.m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Read, n.ReadAt = true, &at
	r.m.notifications[id] = n
	return nil
}

func (r memNotifications) MarkAllRead(_ context.Context, userID uint, at time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var changed int64
	for id, n := range r.m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read, n.ReadAt = true, &at
			r.m.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

func (r memNotifications) Delete(_ context.Context, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.notifications, id)
	return nil
}

func (r memNotifications) CountUnread(_ context.Context, userID uint) (int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var n int64
	for _, x := range r.m.notifications {
		if x.UserID == userID && !x.Read {
			n++
		}
	}
	return n, nil
}
