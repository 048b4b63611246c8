package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"edupath_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Redis keys of the activity log write-behind queue.
const (
	LogQueueKey     = "logs:queue"
	LogKeyPrefix    = "log:"
	minArchiveDays  = 7
	archiveBatch    = 1000
	flushAfterDelay = 5 * time.Minute
)

var ErrArchiveNotConfigured = errors.New("log archive storage not configured")

// ArchiveStore keeps archive files.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ArchiveStore stores archives in one S3 bucket.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArchiveStore loads the default AWS config for region. It returns
// nil when the SDK cannot be configured.
func NewS3ArchiveStore(ctx context.Context, region, bucket string) *S3ArchiveStore {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil || cfg.Region == "" || bucket == "" {
		logrus.WithError(err).Warn("log archive: AWS not configured; archiving disabled")
		return nil
	}
	return &S3ArchiveStore{client: s3.NewFromConfig(cfg), bucket: bucket}
}

func (s *S3ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3ArchiveStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService flushes cached activity logs into MySQL and moves old
// rows to the archive store.
type LogArchiveService struct {
	db     *gorm.DB
	redis  *redis.Client
	store  ArchiveStore
	appTag string
	now    func() time.Time
}

// ArchivedLog is the exported representation stored inside archives
type ArchivedLog struct {
	ID         uint           `json:"id"`
	UserID     uint           `json:"user_id"`
	Email      string         `json:"email,omitempty"`
	UserRole   string         `json:"user_role,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uint           `json:"resource_id"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewLogArchiveService(db *gorm.DB, rdb *redis.Client, store ArchiveStore) *LogArchiveService {
	s := &LogArchiveService{db: db, redis: rdb, appTag: "EduPath activity logs", now: time.Now}
	// a typed nil *S3ArchiveStore must not count as configured
	if s3s, ok := store.(*S3ArchiveStore); !ok || s3s != nil {
		s.store = store
	}
	return s
}

// FlushCachedLogsToDatabase moves queued logs older than a few minutes
// from Redis into activity_logs.
func (s *LogArchiveService) FlushCachedLogsToDatabase(ctx context.Context) (int, error) {
	if s.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}
	cutoff := s.now().Add(-flushAfterDelay)
	keys, err := s.redis.ZRangeByScore(ctx, LogQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read log queue: %w", err)
	}

	processed, failed := 0, 0
	for _, key := range keys {
		raw, err := s.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			// expired before we got to it
			s.redis.ZRem(ctx, LogQueueKey, key)
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Error("log flush: read failed")
			failed++
			continue
		}
		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("log flush: bad payload")
			s.redis.ZRem(ctx, LogQueueKey, key)
			failed++
			continue
		}
		entry.ID = 0
		if err := s.db.WithContext(ctx).Omit("User").Create(&entry).Error; err != nil {
			logrus.WithError(err).WithField("key", key).Error("log flush: insert failed")
			failed++
			continue
		}
		pipe := s.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, LogQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("log flush: cleanup failed")
		}
		processed++
	}
	logrus.WithFields(logrus.Fields{"flushed": processed, "failed": failed}).Info("activity log flush finished")
	return processed, nil
}

// ArchiveOldLogs zips logs older than daysOld, uploads the archive and
// deletes the archived rows.
func (s *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < minArchiveDays {
		return nil, fmt.Errorf("minimum archive age is %d days", minArchiveDays)
	}
	if s.store == nil {
		return nil, ErrArchiveNotConfigured
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)

	var logs []ArchivedLog
	var lastID uint
	for {
		var batch []models.ActivityLog
		err := s.db.WithContext(ctx).Preload("User").
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id ASC").Limit(archiveBatch).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch logs for archiving: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, l := range batch {
			logs = append(logs, toArchived(l))
		}
		lastID = batch[len(batch)-1].ID
	}
	if len(logs) == 0 {
		logrus.Info("no activity logs to archive")
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	body, err := BuildLogArchive(logs, name, s.appTag, s.now())
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)
	if err := s.store.Put(ctx, key, body, "application/zip"); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	res := s.db.WithContext(ctx).Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete archived logs: %w", res.Error)
	}

	archive := &models.LogArchive{
		FileName:    name,
		S3Key:       key,
		StartDate:   logs[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(logs),
		FileSize:    int64(len(body)),
		Status:      "completed",
	}
	if err := s.db.WithContext(ctx).Create(archive).Error; err != nil {
		logrus.WithError(err).Error("failed to save archive metadata")
	}
	logrus.WithFields(logrus.Fields{"key": key, "records": len(logs), "deleted": res.RowsAffected}).Info("activity logs archived")
	return archive, nil
}

func toArchived(l models.ActivityLog) ArchivedLog {
	out := ArchivedLog{
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
		var details map[string]any
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	if l.User.ID > 0 {
		out.Email = l.User.Email
		out.UserRole = l.User.Role
	}
	return out
}

// BuildLogArchive writes logs as JSON and CSV plus a metadata file into a
// zip archive.
func BuildLogArchive(logs []ArchivedLog, fileName, description string, now time.Time) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    now.UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode logs: %w", err)
	}

	mf, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"file_name":      fileName,
		"created_at":     now.UTC(),
		"record_count":   len(logs),
		"schema_version": "1.0",
		"description":    description,
	}
	if len(logs) > 0 {
		meta["date_range"] = map[string]any{"start": logs[0].CreatedAt, "end": logs[len(logs)-1].CreatedAt}
	}
	if err := json.NewEncoder(mf).Encode(meta); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	cf, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(cf)
	_ = w.Write([]string{"ID", "User ID", "Email", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		details := ""
		if l.Details != nil {
			if b, err := json.Marshal(l.Details); err == nil {
				details = string(b)
			}
		}
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Email, l.UserRole, l.Action, l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress, l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			details,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetArchivedLogs lists archive records, newest first.
func (s *LogArchiveService) GetArchivedLogs(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	return archives, nil
}

// DownloadArchivedLogs opens one archive from the store.
func (s *LogArchiveService) DownloadArchivedLogs(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	if s.store == nil {
		return nil, "", ErrArchiveNotConfigured
	}
	var archive models.LogArchive
	if err := s.db.WithContext(ctx).First(&archive, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	r, err := s.store.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download archive: %w", err)
	}
	return r, archive.FileName, nil
}
