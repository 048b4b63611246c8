package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"edupath_go/cache"
	"edupath_go/config"
	"edupath_go/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "EduPath Portal API"
	defaultVersion     = "1.0.0"
	healthTimeout      = 1500 * time.Millisecond
	healthCacheKey     = "health:ping"
)

// ErrCheckDisabled is returned by a check whose dependency is not configured.
var ErrCheckDisabled = errors.New("not configured")

// HealthCheck reports on one dependency. A failing required check makes
// the portal critical; any other failure only degrades it.
type HealthCheck struct {
	Name     string
	Required bool
	Run      func(ctx context.Context) (map[string]interface{}, error)
}

// HealthService aggregates dependency checks and runtime counters for the
// /health endpoint.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time

	mu        sync.RWMutex
	checks    []HealthCheck
	monitor   *StatusMonitor
	listeners func() int
}

type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Metrics       HealthMetrics      `json:"metrics"`
	Flags         HealthFlags        `json:"flags"`
	System        HealthSystem       `json:"system"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthMetrics carries portal counters next to Go runtime numbers.
type HealthMetrics struct {
	Goroutines          int           `json:"goroutines"`
	Listeners           int           `json:"listeners"`
	PendingStageUpdates int           `json:"pending_stage_updates"`
	Memory              MemoryMetrics `json:"memory"`
}

type MemoryMetrics struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
	LastGCUnix     *int64 `json:"last_gc_unix,omitempty"`
	PauseTotalNs   uint64 `json:"pause_total_ns"`
	NumCompletedGC uint32 `json:"num_gc"`
}

type HealthFlags struct {
	SkipMigrate           bool `json:"skip_migrate"`
	SeedData              bool `json:"seed_data"`
	UseRedisCache         bool `json:"use_redis_cache"`
	UseRedisNotifications bool `json:"use_redis_notifications"`
}

type HealthSystem struct {
	GoVersion string `json:"go_version"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
}

func NewHealthService(serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	return &HealthService{serviceName: serviceName, version: version, startTime: time.Now()}
}

// AddCheck registers a dependency check. Checks run in registration order.
func (s *HealthService) AddCheck(c HealthCheck) {
	s.mu.Lock()
	s.checks = append(s.checks, c)
	s.mu.Unlock()
}

// SetListenerCounter reports the listener hub size in health metrics.
func (s *HealthService) SetListenerCounter(fn func() int) {
	s.mu.Lock()
	s.listeners = fn
	s.mu.Unlock()
}

// SetStatusMonitor reports how many applications wait for a debounced
// status recompute.
func (s *HealthService) SetStatusMonitor(m *StatusMonitor) {
	s.mu.Lock()
	s.monitor = m
	s.mu.Unlock()
}

// GetHealthReport runs every check and collects the current counters.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	s.mu.RLock()
	checks := append([]HealthCheck(nil), s.checks...)
	monitor, listeners := s.monitor, s.listeners
	s.mu.RUnlock()

	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report := HealthReport{
		Status:        overallStatusOK,
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   currentEnvironment(),
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
		Dependencies:  make([]DependencyStatus, 0, len(checks)),
		Flags:         collectFlags(),
		System: HealthSystem{
			GoVersion: runtime.Version(),
			GoOS:      runtime.GOOS,
			GoArch:    runtime.GOARCH,
		},
	}

	for _, c := range checks {
		dep, status := runCheck(ctx, c)
		report.Dependencies = append(report.Dependencies, dep)
		report.Status = combineStatus(report.Status, status)
	}

	report.Metrics = collectSystemMetrics()
	if listeners != nil {
		report.Metrics.Listeners = listeners()
	}
	if monitor != nil {
		report.Metrics.PendingStageUpdates = monitor.Pending()
	}
	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return 503
	}
	return 200
}

func runCheck(ctx context.Context, c HealthCheck) (DependencyStatus, string) {
	dep := DependencyStatus{Name: c.Name}
	start := time.Now()
	details, err := c.Run(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	dep.Details = details

	switch {
	case errors.Is(err, ErrCheckDisabled):
		dep.Status = dependencyStatusDisabled
		if c.Required {
			dep.Error = err.Error()
			return dep, overallStatusDegraded
		}
		return dep, overallStatusOK
	case err != nil:
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		if c.Required {
			return dep, overallStatusCritical
		}
		return dep, overallStatusDegraded
	}
	dep.Status = dependencyStatusUp
	return dep, overallStatusOK
}

// DatabaseCheck pings MySQL and reports connection pool usage.
func DatabaseCheck(db *gorm.DB) HealthCheck {
	return HealthCheck{Name: "mysql", Required: true, Run: func(ctx context.Context) (map[string]interface{}, error) {
		if db == nil {
			return nil, errors.New("database connection not initialised")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sql DB handle error: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		stats := sqlDB.Stats()
		return map[string]interface{}{
			"open_connections":     stats.OpenConnections,
			"in_use":               stats.InUse,
			"idle":                 stats.Idle,
			"wait_count":           stats.WaitCount,
			"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
			"max_open_connections": stats.MaxOpenConnections,
		}, nil
	}}
}

// RedisCheck pings Redis. It is required when the cache or the
// notification queue is configured to use it.
func RedisCheck(client *redis.Client, cfg *config.Config) HealthCheck {
	modes := redisModes(cfg)
	return HealthCheck{Name: "redis", Required: len(modes) > 0, Run: func(ctx context.Context) (map[string]interface{}, error) {
		if client == nil {
			return nil, ErrCheckDisabled
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		mode := "optional"
		if len(modes) > 0 {
			mode = strings.Join(modes, ",")
		}
		return map[string]interface{}{"address": client.Options().Addr, "mode": mode}, nil
	}}
}

// CacheCheck round-trips a short-lived key through the response cache.
func CacheCheck(c cache.Cache) HealthCheck {
	return HealthCheck{Name: "cache", Run: func(ctx context.Context) (map[string]interface{}, error) {
		if c == nil {
			return nil, ErrCheckDisabled
		}
		details := map[string]interface{}{"backend": cacheBackend(c)}
		want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
		if err := c.Set(ctx, healthCacheKey, want, 10*time.Second); err != nil {
			return details, err
		}
		got, ok, err := c.Get(ctx, healthCacheKey)
		if err != nil {
			return details, err
		}
		if !ok || string(got) != string(want) {
			return details, errors.New("cached value not read back")
		}
		return details, nil
	}}
}

// StorageCheck reports whether document and avatar uploads are available.
// Signing a URL needs working credentials but no round trip to S3.
func StorageCheck(uploader storage.Uploader) HealthCheck {
	return HealthCheck{Name: "object_storage", Run: func(context.Context) (map[string]interface{}, error) {
		if uploader == nil {
			return nil, ErrCheckDisabled
		}
		if _, err := uploader.PresignURL("health/ping", time.Minute); err != nil {
			return nil, err
		}
		return map[string]interface{}{"uploads": "enabled"}, nil
	}}
}

func cacheBackend(c cache.Cache) string {
	switch c.(type) {
	case *cache.RedisCache:
		return "redis"
	case *cache.MemoryCache:
		return "memory"
	}
	return "custom"
}

// redisModes lists the features configured to depend on Redis.
func redisModes(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	var modes []string
	if cfg.UseRedisCache {
		modes = append(modes, "cache")
	}
	if cfg.UseRedisNotifications {
		modes = append(modes, "notifications")
	}
	return modes
}

func collectSystemMetrics() HealthMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := HealthMetrics{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryMetrics{
			AllocBytes:     mem.Alloc,
			SysBytes:       mem.Sys,
			HeapObjects:    mem.HeapObjects,
			PauseTotalNs:   mem.PauseTotalNs,
			NumCompletedGC: mem.NumGC,
		},
	}
	if mem.LastGC != 0 {
		unix := time.Unix(0, int64(mem.LastGC)).Unix()
		metrics.Memory.LastGCUnix = &unix
	}
	return metrics
}

func collectFlags() HealthFlags {
	cfg := config.AppConfig
	if cfg == nil {
		return HealthFlags{}
	}
	return HealthFlags{
		SkipMigrate:           cfg.SkipMigrate,
		SeedData:              cfg.SeedData,
		UseRedisCache:         cfg.UseRedisCache,
		UseRedisNotifications: cfg.UseRedisNotifications,
	}
}

func currentEnvironment() string {
	if config.AppConfig == nil {
		return "unknown"
	}
	if env := strings.TrimSpace(config.AppConfig.AppEnv); env != "" {
		return env
	}
	return "unknown"
}

var statusRank = map[string]int{
	overallStatusOK:       0,
	overallStatusDegraded: 1,
	overallStatusCritical: 2,
}

func combineStatus(current, candidate string) string {
	if _, ok := statusRank[current]; !ok {
		current = overallStatusOK
	}
	if v, ok := statusRank[candidate]; ok && v > statusRank[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	units := []struct {
		size   time.Duration
		suffix string
	}{{24 * time.Hour, "d"}, {time.Hour, "h"}, {time.Minute, "m"}}

	var parts []string
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d %= u.size
		}
	}
	if d > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", d/time.Second))
	}
	return strings.Join(parts, " ")
}
