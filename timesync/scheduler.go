package timesync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

const (
	passLockKey = "timesync:pass"
	passLockTTL = 30 * time.Minute

	defaultQueueCap   = 5
	defaultWindowDays = 30
)

// PassRunner is what the scheduler drives; Orchestrator implements it.
type PassRunner interface {
	Run(ctx context.Context, triggerType string, start, end time.Time) (*models.SyncRun, error)
}

type triggerRequest struct {
	triggerType string
}

// Scheduler serializes sync passes. A single actor goroutine owns the
// running flag and the pending queue, so concurrent triggers from cron,
// the API and webhooks never race: while a pass runs, a new trigger is
// either dropped or queued depending on the configured concurrency mode.
// The queue is bounded; overflow is dropped with a log line.
type Scheduler struct {
	runner      PassRunner
	store       Store
	notifier    Notifier
	getSchedule func() (*models.Schedule, error)
	locker      *redislock.Client
	logger      *logrus.Logger

	windowDays      int
	notifyThreshold int
	queueCap        int

	triggers chan triggerRequest
	reload   chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
}

func NewScheduler(runner PassRunner, store Store, notifier Notifier, getSchedule func() (*models.Schedule, error), locker *redislock.Client, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		runner:          runner,
		store:           store,
		notifier:        notifier,
		getSchedule:     getSchedule,
		locker:          locker,
		logger:          logger,
		windowDays:      defaultWindowDays,
		notifyThreshold: config.NotificationConflictThreshold(),
		queueCap:        defaultQueueCap,
		triggers:        make(chan triggerRequest),
		reload:          make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// Start launches the actor and the cron job.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop shuts the actor down. A pass in flight finishes first.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

// Trigger requests a sync pass. Never blocks the caller: when the actor
// is busy draining a pass, concurrency handling happens inside the actor.
func (s *Scheduler) Trigger(triggerType string) {
	select {
	case s.triggers <- triggerRequest{triggerType: triggerType}:
	case <-s.stop:
	}
}

// Reload asks the actor to rebuild the cron job from the stored schedule.
// Called after the schedule is edited through the API.
func (s *Scheduler) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.stopped)

	running := false
	var queue []string
	done := make(chan struct{}, 1)

	cronJob := s.buildCron()
	if cronJob != nil {
		cronJob.Start()
	}
	defer func() {
		if cronJob != nil {
			cronJob.Stop()
		}
	}()

	launch := func(triggerType string) {
		running = true
		go func() {
			s.runPass(triggerType)
			done <- struct{}{}
		}()
	}

	for {
		select {
		case req := <-s.triggers:
			if !running {
				launch(req.triggerType)
				continue
			}
			mode := s.concurrencyMode()
			if mode == models.ConcurrencyQueue {
				if len(queue) >= s.queueCap {
					s.logger.WithField("trigger", req.triggerType).Warn("sync queue full, dropping trigger")
					continue
				}
				queue = append(queue, req.triggerType)
				s.logger.WithFields(logrus.Fields{
					"trigger": req.triggerType,
					"queued":  len(queue),
				}).Info("sync pass queued")
				continue
			}
			s.logger.WithField("trigger", req.triggerType).Info("sync already running, skipping trigger")

		case <-done:
			running = false
			if len(queue) > 0 {
				next := queue[0]
				queue = queue[1:]
				launch(next)
			}

		case <-s.reload:
			if cronJob != nil {
				cronJob.Stop()
			}
			// The job is rebuilt, never mutated in place.
			cronJob = s.buildCron()
			if cronJob != nil {
				cronJob.Start()
			}

		case <-s.stop:
			if running {
				<-done
			}
			return
		}
	}
}

// buildCron creates a cron runner for the stored schedule, or nil when no
// schedule is configured or it is disabled.
func (s *Scheduler) buildCron() *cron.Cron {
	schedule, err := s.getSchedule()
	if err != nil {
		config.LogError(s.logger, "timesync", "buildCron", "load schedule", nil, err)
		return nil
	}
	if schedule == nil || !schedule.Enabled {
		return nil
	}
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		config.LogError(s.logger, "timesync", "buildCron", "load schedule timezone", schedule.Timezone, err)
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(schedule.Cron, func() {
		s.Trigger(models.SyncTriggeredScheduled)
	}); err != nil {
		config.LogError(s.logger, "timesync", "buildCron", "register cron expression", schedule.Cron, err)
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"cron":     schedule.Cron,
		"timezone": schedule.Timezone,
	}).Info("sync schedule active")
	return c
}

func (s *Scheduler) concurrencyMode() string {
	schedule, err := s.getSchedule()
	if err != nil || schedule == nil {
		return models.ConcurrencySkip
	}
	return schedule.Concurrency
}

// runPass executes one pass over the trailing window, guarded by the
// distributed lock when Redis is configured.
func (s *Scheduler) runPass(triggerType string) {
	ctx := context.Background()

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, passLockKey, passLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.Info("another instance holds the pass lock, skipping")
			return
		}
		if err != nil {
			config.LogError(s.logger, "timesync", "runPass", "obtain pass lock", nil, err)
			return
		}
		defer lock.Release(ctx)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -s.windowDays)

	run, err := s.runner.Run(ctx, triggerType, start, end)
	if err != nil {
		config.LogError(s.logger, "timesync", "runPass", "sync pass", triggerType, err)
	}
	if run == nil {
		return
	}

	pending, err := s.store.CountPendingConflicts()
	if err != nil {
		config.LogError(s.logger, "timesync", "runPass", "count pending conflicts", nil, err)
		pending = 0
	}
	summary := summaryOf(run, pending)
	s.maybeNotify(ctx, run, summary)
	if err := config.SetRedisObject(lastRunKey, summary, 24*time.Hour); err != nil {
		config.LogError(s.logger, "timesync", "runPass", "cache last run summary", run.ID, err)
	}

	// Access-log retention rides along after each pass; sync audit rows
	// are exempt from the cleanup.
	if db := config.GetDB(); db != nil {
		retention := utils.IntFromEnv("AUDIT_RETENTION_DAYS", 90)
		if _, err := models.CleanupOldAccessLogs(db, retention); err != nil {
			config.LogError(s.logger, "timesync", "runPass", "audit log cleanup", retention, err)
		}
	}
}

// maybeNotify fires the notification hook when the finished pass crossed
// the conflict threshold or failed records. Delivery errors are logged
// and swallowed.
func (s *Scheduler) maybeNotify(ctx context.Context, run *models.SyncRun, summary Summary) {
	schedule, err := s.getSchedule()
	if err != nil || schedule == nil || !schedule.Notifications {
		return
	}
	if summary.PendingConflicts <= int64(s.notifyThreshold) && run.EntriesFailed == 0 && run.Status != models.SyncRunStatusFailed {
		return
	}
	if err := s.notifier.Notify(ctx, summary); err != nil {
		config.LogError(s.logger, "timesync", "maybeNotify", "deliver notification", run.ID, err)
	}
}
