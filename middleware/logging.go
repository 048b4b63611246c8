package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"edupath_go/metrics"
	"edupath_go/models"
	"edupath_go/services"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LoggerMiddleware logs HTTP requests and records request metrics.
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < 400 {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		metrics.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method(), route).Observe(duration.Seconds())

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   duration.String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

// ActivitySink persists activity log entries.
type ActivitySink interface {
	Save(ctx context.Context, entry models.ActivityLog) error
}

// RedisActivitySink queues entries in Redis for the periodic flush and falls
// back to a direct insert when Redis is unavailable.
type RedisActivitySink struct {
	redis *redis.Client
	db    *gorm.DB
}

func NewRedisActivitySink(rdb *redis.Client, db *gorm.DB) *RedisActivitySink {
	return &RedisActivitySink{redis: rdb, db: db}
}

func (s *RedisActivitySink) Save(ctx context.Context, entry models.ActivityLog) error {
	err := s.cache(ctx, entry)
	if err == nil {
		return nil
	}
	logrus.WithError(err).Warn("Failed to cache activity log, saving directly to database")
	if s.db == nil {
		return fmt.Errorf("no database for activity log: %w", err)
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// cache stores the entry with a 24-hour TTL and queues its key.
func (s *RedisActivitySink) cache(ctx context.Context, entry models.ActivityLog) error {
	if s.redis == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	key := fmt.Sprintf("%s%d:%s:%d", services.LogKeyPrefix, entry.UserID, entry.Action, entry.CreatedAt.UnixNano())
	if err := s.redis.Set(ctx, key, data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache log: %w", err)
	}
	if err := s.redis.ZAdd(ctx, services.LogQueueKey, &redis.Z{
		Score:  float64(entry.CreatedAt.Unix()),
		Member: key,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

var (
	sinkMu sync.RWMutex
	sink   ActivitySink
)

// SetActivitySink installs the sink used by LogActivity. With no sink the
// entries are only written to the application log.
func SetActivitySink(s ActivitySink) {
	sinkMu.Lock()
	sink = s
	sinkMu.Unlock()
}

func currentSink() ActivitySink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sink
}

// BuildActivityLog assembles an entry for the request with security
// metadata and an integrity hash for tamper detection.
func BuildActivityLog(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) models.ActivityLog {
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	entry := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	now := time.Now()
	entry.CreatedAt = now

	securityDetails := map[string]interface{}{
		"original_details": details,
		"integrity_hash":   generateIntegrityHash(entry),
		"request_id":       c.Get("X-Request-ID", generateRequestID(now)),
		"forwarded_for":    c.Get("X-Forwarded-For"),
		"protocol":         c.Protocol(),
		"method":           c.Method(),
		"path":             c.Path(),
		"status_code":      c.Response().StatusCode(),
		"referer":          c.Get("Referer"),
		"timestamp_utc":    now.UTC().Unix(),
	}
	if b, err := json.Marshal(securityDetails); err == nil {
		entry.Details = b
	}
	return entry
}

// LogActivity records a user action asynchronously.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	entry := BuildActivityLog(c, action, resource, resourceID, details)
	s := currentSink()
	if s == nil {
		logrus.WithFields(logrus.Fields{
			"user_id":     entry.UserID,
			"action":      entry.Action,
			"resource":    entry.Resource,
			"resource_id": entry.ResourceID,
		}).Info("activity")
		return
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Save(ctx, al); err != nil {
			logrus.WithError(err).Error("Failed to save activity log")
		}
	}(entry)
}

func generateIntegrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt.Format(time.RFC3339),
	)
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

func generateRequestID(now time.Time) string {
	return fmt.Sprintf("req_%d_%x", now.UnixNano(), md5.Sum([]byte(strconv.FormatInt(now.UnixNano(), 10))))
}

// ActivityAction maps a mutating method to its log action.
func ActivityAction(method string) (string, bool) {
	switch method {
	case fiber.MethodPost:
		return "CREATE", true
	case fiber.MethodPut, fiber.MethodPatch:
		return "UPDATE", true
	case fiber.MethodDelete:
		return "DELETE", true
	}
	return "", false
}

// ActivityResource takes the resource segment of an /api/<resource>/... path,
// skipping the admin and student area prefixes.
func ActivityResource(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	i := 1
	if (parts[i] == "admin" || parts[i] == "student") && len(parts) > 2 {
		i++
	}
	return parts[i]
}

// LogActivityMiddleware automatically logs successful CRUD operations
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		action, ok := ActivityAction(c.Method())
		if !ok {
			return err
		}
		var resourceID uint
		if id := c.Params("id"); id != "" {
			if parsed, parseErr := strconv.ParseUint(id, 10, 64); parseErr == nil {
				resourceID = uint(parsed)
			}
		}
		if err == nil && c.Response().StatusCode() < 400 {
			LogActivity(c, action, ActivityResource(c.Path()), resourceID, nil)
		}
		return err
	}
}
