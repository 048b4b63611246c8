package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
	RolePending = "pending"
)

// User statuses
const (
	UserActive   = "active"
	UserInactive = "inactive"
	UserRejected = "rejected"
)

// User is an authenticated portal account.
type User struct {
	BaseModel
	Email       string     `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Password    string     `json:"-" gorm:"size:255;not null"`
	FullName    string     `json:"full_name" gorm:"size:200"`
	Phone       string     `json:"phone" gorm:"size:30"`
	LineID      string     `json:"line_id" gorm:"size:100"`
	Role        string     `json:"role" gorm:"size:20;not null;default:'pending';index"`
	Status      string     `json:"status" gorm:"size:20;not null;default:'active'"`
	Avatar      string     `json:"avatar" gorm:"size:500"`
	LastLoginAt *time.Time `json:"last_login_at"`

	Student *Student `json:"student,omitempty" gorm:"foreignKey:UserID"`
}

// Registration queue states
const (
	RegPendingPayment   = "pending_payment"
	RegPaymentSubmitted = "payment_submitted"
	RegPaymentVerified  = "payment_verified"
	RegApproved         = "approved"
	RegRejected         = "rejected"
)

// Registration is a queued sign-up waiting for payment verification and
// admin approval before the user is promoted to the student role.
type Registration struct {
	BaseModel
	UserID           uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	FullName         string     `json:"full_name" gorm:"size:200"`
	Email            string     `json:"email" gorm:"size:255"`
	Phone            string     `json:"phone" gorm:"size:30"`
	TargetCountry    string     `json:"target_country" gorm:"size:100"`
	IntendedProgram  string     `json:"intended_program" gorm:"size:200"`
	Status           string     `json:"status" gorm:"size:30;not null;default:'pending_payment';index"`
	FeeAmount        int        `json:"fee_amount"`
	PaymentReference string     `json:"payment_reference" gorm:"size:200"`
	ReceiptURL       string     `json:"receipt_url" gorm:"size:500"`
	PaymentSubmitted *time.Time `json:"payment_submitted_at"`
	PaymentVerified  *time.Time `json:"payment_verified_at"`
	VerifiedBy       *uint      `json:"verified_by"`
	DecidedAt        *time.Time `json:"decided_at"`
	DecidedBy        *uint      `json:"decided_by"`
	RejectionReason  string     `json:"rejection_reason" gorm:"type:text"`
	LastReminderAt   *time.Time `json:"last_reminder_at"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Student holds the general information a student maintains about themselves.
type Student struct {
	BaseModel
	UserID            uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	FirstName         string     `json:"first_name" gorm:"size:100"`
	LastName          string     `json:"last_name" gorm:"size:100"`
	DateOfBirth       *time.Time `json:"date_of_birth"`
	Gender            string     `json:"gender" gorm:"size:20"`
	Nationality       string     `json:"nationality" gorm:"size:100"`
	PassportNumber    string     `json:"passport_number" gorm:"size:50"`
	PassportExpiry    *time.Time `json:"passport_expiry"`
	Address           string     `json:"address" gorm:"size:500"`
	HighestEducation  string     `json:"highest_education" gorm:"size:100"`
	Institution       string     `json:"institution" gorm:"size:200"`
	GPA               string     `json:"gpa" gorm:"size:20"`
	EnglishTest       string     `json:"english_test" gorm:"size:50"`
	EnglishScore      string     `json:"english_score" gorm:"size:20"`
	TargetCountry     string     `json:"target_country" gorm:"size:100"`
	IntendedProgram   string     `json:"intended_program" gorm:"size:200"`
	PreferredIntake   string     `json:"preferred_intake" gorm:"size:50"`
	Budget            string     `json:"budget" gorm:"size:50"`
	EmergencyContact  string     `json:"emergency_contact" gorm:"size:200"`
	EmergencyPhone    string     `json:"emergency_phone" gorm:"size:30"`
	AssignedAdvisorID *uint      `json:"assigned_advisor_id"`
	Notes             string     `json:"notes" gorm:"type:text"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Progress stage statuses
const (
	StageNotStarted = "Not Started"
	StageInProgress = "In Progress"
	StageCompleted  = "Completed"
)

// Stage categories
const (
	CategoryApplication = "application"
	CategoryVisa        = "visa"
)

// Application tracks one university application and its visa process.
type Application struct {
	BaseModel
	StudentID    uint   `json:"student_id" gorm:"not null;index"`
	University   string `json:"university" gorm:"size:255;not null"`
	Program      string `json:"program" gorm:"size:255"`
	Country      string `json:"country" gorm:"size:100"`
	Intake       string `json:"intake" gorm:"size:50"`
	Notes        string `json:"notes" gorm:"type:text"`
	Status       string `json:"status" gorm:"size:20;not null;default:'Not Started';index"`
	Progress     int    `json:"progress"`
	CurrentStage string `json:"current_stage" gorm:"size:100"`

	Student   Student         `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Stages    []ProgressStage `json:"stages,omitempty" gorm:"foreignKey:ApplicationID"`
	Documents []Document      `json:"documents,omitempty" gorm:"foreignKey:ApplicationID"`
}

// ProgressStage is one named step of an application.
type ProgressStage struct {
	BaseModel
	ApplicationID uint       `json:"application_id" gorm:"not null;index"`
	Category      string     `json:"category" gorm:"size:20;not null"`
	Name          string     `json:"name" gorm:"size:100;not null"`
	SortOrder     int        `json:"sort_order"`
	Status        string     `json:"status" gorm:"size:20;not null;default:'Not Started'"`
	Note          string     `json:"note" gorm:"type:text"`
	UpdatedBy     *uint      `json:"updated_by"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// Document types
const (
	DocPassport    = "passport"
	DocTranscript  = "transcript"
	DocOfferLetter = "offer_letter"
	DocFinancial   = "financial"
	DocOther       = "other"
)

// Document is an uploaded file attached to an application.
type Document struct {
	BaseModel
	ApplicationID uint   `json:"application_id" gorm:"not null;index"`
	UploadedBy    uint   `json:"uploaded_by"`
	Type          string `json:"type" gorm:"size:30;not null"`
	FileName      string `json:"file_name" gorm:"size:255"`
	URL           string `json:"url" gorm:"size:500;not null"`
	Size          int64  `json:"size"`
}

// Course is a program listing shown in the catalogue.
type Course struct {
	BaseModel
	Title       string `json:"title" gorm:"size:255;not null"`
	Code        string `json:"code" gorm:"size:100;uniqueIndex"`
	University  string `json:"university" gorm:"size:255"`
	Country     string `json:"country" gorm:"size:100;index"`
	Level       string `json:"level" gorm:"size:50"`
	Duration    string `json:"duration" gorm:"size:50"`
	TuitionFee  string `json:"tuition_fee" gorm:"size:100"`
	Intakes     string `json:"intakes" gorm:"size:200"`
	Description string `json:"description" gorm:"type:text"`
	Active      bool   `json:"active" gorm:"default:true"`
}

// Appointment statuses
const (
	ApptRequested = "requested"
	ApptConfirmed = "confirmed"
	ApptCancelled = "cancelled"
	ApptCompleted = "completed"
)

// Appointment is a consultation between a student and an advisor.
type Appointment struct {
	BaseModel
	StudentID    uint       `json:"student_id" gorm:"not null;index"`
	AdvisorID    *uint      `json:"advisor_id" gorm:"index"`
	Topic        string     `json:"topic" gorm:"size:255;not null"`
	StartsAt     time.Time  `json:"starts_at" gorm:"not null;index"`
	DurationMin  int        `json:"duration_min" gorm:"default:30"`
	Mode         string     `json:"mode" gorm:"size:20;default:'online'"`
	MeetingLink  string     `json:"meeting_link" gorm:"size:500"`
	Status       string     `json:"status" gorm:"size:20;not null;default:'requested'"`
	CancelReason string     `json:"cancel_reason" gorm:"type:text"`
	RemindedAt   *time.Time `json:"reminded_at"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Advisor *User   `json:"advisor,omitempty" gorm:"foreignKey:AdvisorID"`
}

// EndsAt returns the scheduled end of the appointment.
func (a Appointment) EndsAt() time.Time {
	d := a.DurationMin
	if d <= 0 {
		d = 30
	}
	return a.StartsAt.Add(time.Duration(d) * time.Minute)
}

// Notification model
type Notification struct {
	BaseModel
	UserID   uint       `json:"user_id" gorm:"not null;index"`
	Title    string     `json:"title" gorm:"size:255;not null"`
	Message  string     `json:"message" gorm:"type:text;not null"`
	Type     string     `json:"type" gorm:"size:20;not null"` // info, warning, error, success
	Channels JSON       `json:"channels" gorm:"type:json"`
	Data     JSON       `json:"data" gorm:"type:json"`
	Read     bool       `json:"read" gorm:"default:false"`
	ReadAt   *time.Time `json:"read_at"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// UserSettings holds per-user preferences. A missing row means defaults.
type UserSettings struct {
	BaseModel
	UserID                   uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	Language                 string `json:"language" gorm:"size:10;not null;default:'en'"`
	EnableNotificationSound  bool   `json:"enable_notification_sound" gorm:"default:true"`
	NotificationSound        string `json:"notification_sound" gorm:"size:50;not null;default:'default'"`
	EnableEmailNotifications bool   `json:"enable_email_notifications" gorm:"default:true"`
	EnableLineNotifications  bool   `json:"enable_line_notifications" gorm:"default:true"`
}

// DefaultUserSettings returns the preferences applied before a user saves any.
func DefaultUserSettings(userID uint) UserSettings {
	return UserSettings{
		UserID:                   userID,
		Language:                 "en",
		EnableNotificationSound:  true,
		NotificationSound:        "default",
		EnableEmailNotifications: true,
		EnableLineNotifications:  true,
	}
}

// AllowsChannel reports whether the user accepts delivery on an external
// channel. In-app channels are always allowed.
func (s UserSettings) AllowsChannel(channel string) bool {
	switch channel {
	case "email":
		return s.EnableEmailNotifications
	case "line":
		return s.EnableLineNotifications
	}
	return true
}

// NotificationSoundOption is a selectable client alert sound.
type NotificationSoundOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	File  string `json:"file"`
}

var BuiltInNotificationSoundOptions = []NotificationSoundOption{
	{ID: "default", Label: "Default", File: "/sounds/default.mp3"},
	{ID: "chime", Label: "Chime", File: "/sounds/chime.mp3"},
	{ID: "bell", Label: "Bell", File: "/sounds/bell.mp3"},
	{ID: "soft", Label: "Soft", File: "/sounds/soft.mp3"},
}

// BlogPost is a marketing article.
type BlogPost struct {
	BaseModel
	Slug        string     `json:"slug" gorm:"size:200;not null;uniqueIndex"`
	Title       string     `json:"title" gorm:"size:255;not null"`
	Summary     string     `json:"summary" gorm:"size:500"`
	Body        string     `json:"body" gorm:"type:longtext"`
	CoverImage  string     `json:"cover_image" gorm:"size:500"`
	Tags        string     `json:"tags" gorm:"size:255"`
	Published   bool       `json:"published" gorm:"default:false;index"`
	PublishedAt *time.Time `json:"published_at"`
	AuthorID    uint       `json:"author_id"`
}

// PolicyPage is a legal page such as the privacy policy.
type PolicyPage struct {
	BaseModel
	Slug    string `json:"slug" gorm:"size:100;not null;uniqueIndex"`
	Title   string `json:"title" gorm:"size:255;not null"`
	Body    string `json:"body" gorm:"type:longtext"`
	Version string `json:"version" gorm:"size:20"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
