package controllers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/services"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LogController struct {
	db       *gorm.DB
	archives *services.LogArchiveService
}

func NewLogController(db *gorm.DB, archives *services.LogArchiveService) *LogController {
	return &LogController{db: db, archives: archives}
}

// LogResponse represents a log entry response
type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
	User       *utils.UserShort       `json:"user,omitempty"`
}

type LogsStatsResponse struct {
	Total             int64                 `json:"total"`
	TotalToday        int64                 `json:"total_today"`
	TotalThisWeek     int64                 `json:"total_this_week"`
	TotalThisMonth    int64                 `json:"total_this_month"`
	ActionBreakdown   map[string]int64      `json:"action_breakdown"`
	ResourceBreakdown map[string]int64      `json:"resource_breakdown"`
	HourlyActivity    map[string]int64      `json:"hourly_activity"`
	TopUsers          []UserActivitySummary `json:"top_users"`
	RecentActivity    []LogResponse         `json:"recent_activity"`
}

type UserActivitySummary struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Count  int64  `json:"count"`
}

func toLogResponse(l models.ActivityLog) LogResponse {
	out := LogResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if !l.Details.IsNull() {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	if l.User.ID > 0 {
		u := utils.ToUserShort(l.User)
		out.User = &u
	}
	return out
}

func (lc *LogController) filtered(c *fiber.Ctx) *gorm.DB {
	query := lc.db.WithContext(c.UserContext()).Model(&models.ActivityLog{})
	if userID := queryUint(c, "user_id"); userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if ip := c.Query("ip_address"); ip != "" {
		query = query.Where("ip_address = ?", ip)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if parsed, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("created_at >= ?", parsed)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if parsed, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("created_at < ?", parsed.Add(24*time.Hour))
		}
	}
	return query
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	query := lc.filtered(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, err, "logs")
	}
	var activityLogs []models.ActivityLog
	if err := query.Preload("User").Order("created_at DESC").
		Offset((page.Page - 1) * page.Limit).Limit(page.Limit).
		Find(&activityLogs).Error; err != nil {
		return respondError(c, err, "logs")
	}

	logs := make([]LogResponse, 0, len(activityLogs))
	for _, l := range activityLogs {
		logs = append(logs, toLogResponse(l))
	}
	return c.JSON(paginated("logs", logs, total, page))
}

// GetLogStats provides logging statistics
func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisWeek := today.AddDate(0, 0, -int(today.Weekday()))
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := LogsStatsResponse{
		ActionBreakdown:   make(map[string]int64),
		ResourceBreakdown: make(map[string]int64),
		HourlyActivity:    make(map[string]int64),
	}
	db := lc.db.WithContext(c.UserContext())
	model := func() *gorm.DB { return db.Model(&models.ActivityLog{}) }

	if err := model().Count(&stats.Total).Error; err != nil {
		return respondError(c, err, "log statistics")
	}
	model().Where("created_at >= ?", today).Count(&stats.TotalToday)
	model().Where("created_at >= ?", thisWeek).Count(&stats.TotalThisWeek)
	model().Where("created_at >= ?", thisMonth).Count(&stats.TotalThisMonth)

	var actionStats []struct {
		Action string
		Count  int64
	}
	model().Select("action, COUNT(*) as count").Group("action").Find(&actionStats)
	for _, s := range actionStats {
		stats.ActionBreakdown[s.Action] = s.Count
	}

	var resourceStats []struct {
		Resource string
		Count    int64
	}
	model().Select("resource, COUNT(*) as count").Group("resource").Find(&resourceStats)
	for _, s := range resourceStats {
		stats.ResourceBreakdown[s.Resource] = s.Count
	}

	for i := 0; i < 24; i++ {
		stats.HourlyActivity[fmt.Sprintf("%02d:00", i)] = 0
	}
	var hourlyStats []struct {
		Hour  int
		Count int64
	}
	model().Select("EXTRACT(hour FROM created_at) as hour, COUNT(*) as count").
		Where("created_at >= ?", today).Group("hour").Find(&hourlyStats)
	for _, s := range hourlyStats {
		stats.HourlyActivity[fmt.Sprintf("%02d:00", s.Hour)] = s.Count
	}

	model().Select("activity_logs.user_id, users.email, users.role, COUNT(*) as count").
		Joins("LEFT JOIN users ON activity_logs.user_id = users.id").
		Where("activity_logs.created_at >= ?", thisWeek).
		Group("activity_logs.user_id, users.email, users.role").
		Order("count DESC").Limit(10).
		Scan(&stats.TopUsers)

	var recent []models.ActivityLog
	db.Preload("User").Order("created_at DESC").Limit(10).Find(&recent)
	for _, l := range recent {
		stats.RecentActivity = append(stats.RecentActivity, toLogResponse(l))
	}

	return c.JSON(stats)
}

// GetLog retrieves a single log entry by ID
func (lc *LogController) GetLog(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid log ID")
	}
	var activityLog models.ActivityLog
	if err := lc.db.WithContext(c.UserContext()).Preload("User").First(&activityLog, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, services.ErrNotFound, "Log")
		}
		return respondError(c, err, "log")
	}
	return c.JSON(toLogResponse(activityLog))
}

// ExportLogs streams the filtered logs as CSV (Admin only)
func (lc *LogController) ExportLogs(c *fiber.Ctx) error {
	var logs []models.ActivityLog
	if err := lc.filtered(c).Preload("User").Order("created_at DESC").Limit(50000).Find(&logs).Error; err != nil {
		return respondError(c, err, "logs")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename=activity_logs.csv")

	w := csv.NewWriter(c.Response().BodyWriter())
	_ = w.Write([]string{"ID", "User ID", "Email", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.User.Email,
			l.User.Role,
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			string(l.Details),
		})
	}
	w.Flush()
	return w.Error()
}

// FlushCachedLogs moves queued logs from Redis into the database (Admin only)
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	n, err := lc.archives.FlushCachedLogsToDatabase(c.UserContext())
	if err != nil {
		logrus.WithError(err).Error("Manual log flush failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message":         "Cached logs flushing completed",
		"processed_count": n,
	})
}

// ArchiveLogs archives logs older than ?days= (default 30) to object storage.
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	archive, err := lc.archives.ArchiveOldLogs(c.UserContext(), days)
	if errors.Is(err, services.ErrArchiveNotConfigured) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err), "archive")
	}
	if archive == nil {
		return c.JSON(fiber.Map{"message": "No logs to archive"})
	}
	middleware.LogActivity(c, "ARCHIVE", "logs", archive.ID, fiber.Map{"records": archive.RecordCount})
	return c.JSON(fiber.Map{"message": "Logs archived", "archive": archive})
}

func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archives.GetArchivedLogs(c.UserContext())
	if err != nil {
		return respondError(c, err, "archives")
	}
	return c.JSON(fiber.Map{"archives": archives})
}

func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid archive ID")
	}
	r, name, err := lc.archives.DownloadArchivedLogs(c.UserContext(), id)
	if errors.Is(err, services.ErrArchiveNotConfigured) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, err, "Archive")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.SendStream(r)
}
