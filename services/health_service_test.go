package services

import (
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"edupath_go/cache"
	"edupath_go/config"
	"edupath_go/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signOnlyUploader struct{ err error }

func (u signOnlyUploader) UploadFile(context.Context, *multipart.FileHeader, string, uint) (*storage.Object, error) {
	return nil, errors.New("not supported")
}

func (u signOnlyUploader) PresignURL(key string, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key, u.err
}

func (u signOnlyUploader) DeleteFile(context.Context, string) error { return nil }

func TestCombineStatus(t *testing.T) {
	assert.Equal(t, overallStatusDegraded, combineStatus(overallStatusOK, overallStatusDegraded))
	assert.Equal(t, overallStatusCritical, combineStatus(overallStatusDegraded, overallStatusCritical))
	assert.Equal(t, overallStatusCritical, combineStatus(overallStatusCritical, overallStatusOK))
	assert.Equal(t, overallStatusOK, combineStatus("bogus", "also-bogus"))
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "0s", humanizeDuration(0))
	assert.Equal(t, "1d 2h 3m 4s", humanizeDuration(26*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "5m", humanizeDuration(5*time.Minute))
	assert.Equal(t, "1h 5s", humanizeDuration(time.Hour+5*time.Second))
}

func TestRedisModes(t *testing.T) {
	assert.Empty(t, redisModes(nil))
	assert.Equal(t, []string{"cache", "notifications"}, redisModes(&config.Config{UseRedisCache: true, UseRedisNotifications: true}))
}

func TestHealthReportWithoutDatabaseIsCritical(t *testing.T) {
	prev := config.AppConfig
	defer func() { config.AppConfig = prev }()
	config.AppConfig = &config.Config{AppEnv: "test"}

	svc := NewHealthService("", "")
	svc.AddCheck(DatabaseCheck(nil))
	svc.SetListenerCounter(func() int { return 3 })
	report := svc.GetHealthReport(context.Background())

	assert.Equal(t, "EduPath Portal API", report.Service)
	assert.Equal(t, overallStatusCritical, report.Status)
	assert.Equal(t, 503, svc.HTTPStatusForOverall(report.Status))
	assert.Equal(t, 3, report.Metrics.Listeners)
	assert.Equal(t, "test", report.Environment)
	require.Len(t, report.Dependencies, 1)
	assert.Equal(t, dependencyStatusDown, report.Dependencies[0].Status)
}

func TestHealthReportPortalDependencies(t *testing.T) {
	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	monitor := NewStatusMonitor(newTestStore(), nil, nil, time.Hour)
	defer monitor.Stop()
	monitor.Touch(7)
	monitor.Touch(7)
	monitor.Touch(8)

	svc := NewHealthService("Portal", "2.0.0")
	svc.AddCheck(RedisCheck(nil, &config.Config{}))
	svc.AddCheck(CacheCheck(mem))
	svc.AddCheck(StorageCheck(nil))
	svc.SetStatusMonitor(monitor)

	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusOK, report.Status)
	assert.Equal(t, 200, svc.HTTPStatusForOverall(report.Status))
	assert.Equal(t, 2, report.Metrics.PendingStageUpdates)

	byName := map[string]DependencyStatus{}
	for _, d := range report.Dependencies {
		byName[d.Name] = d
	}
	assert.Equal(t, dependencyStatusDisabled, byName["redis"].Status)
	assert.Equal(t, dependencyStatusUp, byName["cache"].Status)
	assert.Equal(t, "memory", byName["cache"].Details["backend"])
	assert.Equal(t, dependencyStatusDisabled, byName["object_storage"].Status)
}

func TestHealthReportDegradesOnOptionalFailures(t *testing.T) {
	svc := NewHealthService("", "")
	// redis is required once the cache runs on it
	svc.AddCheck(RedisCheck(nil, &config.Config{UseRedisCache: true}))
	svc.AddCheck(StorageCheck(signOnlyUploader{err: errors.New("missing credentials")}))

	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusDegraded, report.Status)
	assert.Equal(t, 200, svc.HTTPStatusForOverall(report.Status))
	require.Len(t, report.Dependencies, 2)
	assert.Equal(t, dependencyStatusDisabled, report.Dependencies[0].Status)
	assert.NotEmpty(t, report.Dependencies[0].Error)
	assert.Equal(t, dependencyStatusDown, report.Dependencies[1].Status)
	assert.Equal(t, "missing credentials", report.Dependencies[1].Error)

	svc = NewHealthService("", "")
	svc.AddCheck(StorageCheck(signOnlyUploader{}))
	report = svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusOK, report.Status)
	assert.Equal(t, "enabled", report.Dependencies[0].Details["uploads"])
}
