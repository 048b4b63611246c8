package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job schedules
const (
	AppointmentReminderSpec = "@every 15m"
	StaleRegistrationSpec   = "0 9 * * *"
	LogFlushSpec            = "@every 30m"
	LogArchiveSpec          = "30 3 * * *"

	staleRegistrationAge = 72 * time.Hour
	logArchiveDays       = 30
	jobTimeout           = 5 * time.Minute
)

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	logrus.WithFields(kvFields(kv)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	logrus.WithError(err).WithFields(kvFields(kv)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}

// NewScheduler registers the jobs of the non-nil services. Nothing runs
// until Start.
func NewScheduler(appointments *AppointmentService, registrations *RegistrationService, logs *LogArchiveService, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	add := func(schedule, name string, fn func(ctx context.Context) error) error {
		_, err := c.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			start := time.Now()
			if err := fn(ctx); err != nil {
				logrus.WithError(err).WithField("job", name).Error("scheduled job failed")
				return
			}
			logrus.WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()}).Debug("scheduled job finished")
		})
		return err
	}

	if appointments != nil {
		if err := add(AppointmentReminderSpec, "appointment_reminders", func(ctx context.Context) error {
			n, err := appointments.SendReminders(ctx)
			if n > 0 {
				logrus.WithField("count", n).Info("appointment reminders sent")
			}
			return err
		}); err != nil {
			return nil, err
		}
	}
	if registrations != nil {
		if err := add(StaleRegistrationSpec, "stale_registrations", func(ctx context.Context) error {
			n, err := registrations.RemindStale(ctx, staleRegistrationAge)
			if n > 0 {
				logrus.WithField("count", n).Info("stale registration reminders sent")
			}
			return err
		}); err != nil {
			return nil, err
		}
	}
	if logs != nil {
		if logs.redis != nil {
			if err := add(LogFlushSpec, "log_flush", func(ctx context.Context) error {
				_, err := logs.FlushCachedLogsToDatabase(ctx)
				return err
			}); err != nil {
				return nil, err
			}
		}
		if logs.store != nil {
			if err := add(LogArchiveSpec, "log_archive", func(ctx context.Context) error {
				_, err := logs.ArchiveOldLogs(ctx, logArchiveDays)
				return err
			}); err != nil {
				return nil, err
			}
		}
	}
	return &Scheduler{cron: c}, nil
}

// Jobs returns how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.WithField("jobs", s.Jobs()).Info("scheduler started")
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("scheduler stop timed out")
	}
}
