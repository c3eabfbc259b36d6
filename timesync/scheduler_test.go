package timesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/timesync_backend/models"
)

// blockingRunner holds every pass until released, so tests control
// exactly when the scheduler sees a pass finish.
type blockingRunner struct {
	mu       sync.Mutex
	started  chan struct{}
	release  chan struct{}
	triggers []string
	result   *models.SyncRun
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		result:  &models.SyncRun{Status: models.SyncRunStatusCompleted},
	}
}

func (r *blockingRunner) Run(_ context.Context, triggerType string, _, _ time.Time) (*models.SyncRun, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, triggerType)
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	return r.result, nil
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func (r *blockingRunner) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a pass to start")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []Summary
}

func (n *recordingNotifier) Notify(_ context.Context, summary Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.summaries)
}

func newTestScheduler(runner PassRunner, schedule *models.Schedule, notifier Notifier) *Scheduler {
	if notifier == nil {
		notifier = &LogNotifier{Logger: testLogger()}
	}
	return NewScheduler(runner, newFakeStore(), notifier,
		func() (*models.Schedule, error) { return schedule, nil },
		nil, testLogger())
}

func TestSchedulerSkipModeDropsConcurrentTrigger(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestScheduler(runner, &models.Schedule{Concurrency: models.ConcurrencySkip}, nil)
	s.Start()
	defer s.Stop()

	s.Trigger(models.SyncTriggeredManual)
	runner.waitStarted(t)

	// A second trigger while the first pass runs must be dropped.
	s.Trigger(models.SyncTriggeredWebhook)
	close(runner.release)

	waitFor(t, func() bool { return runner.count() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := runner.count(); got != 1 {
		t.Fatalf("expected 1 pass, got %d", got)
	}
}

func TestSchedulerQueueModeRunsQueuedTriggers(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestScheduler(runner, &models.Schedule{Concurrency: models.ConcurrencyQueue}, nil)
	s.Start()
	defer s.Stop()

	s.Trigger(models.SyncTriggeredManual)
	runner.waitStarted(t)

	s.Trigger(models.SyncTriggeredWebhook)
	s.Trigger(models.SyncTriggeredScheduled)

	close(runner.release)
	waitFor(t, func() bool { return runner.count() == 3 })

	runner.mu.Lock()
	defer runner.mu.Unlock()
	want := []string{models.SyncTriggeredManual, models.SyncTriggeredWebhook, models.SyncTriggeredScheduled}
	for i, trigger := range want {
		if runner.triggers[i] != trigger {
			t.Fatalf("trigger order %v, want %v", runner.triggers, want)
		}
	}
}

func TestSchedulerQueueIsBounded(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestScheduler(runner, &models.Schedule{Concurrency: models.ConcurrencyQueue}, nil)
	s.queueCap = 2
	s.Start()
	defer s.Stop()

	s.Trigger(models.SyncTriggeredManual)
	runner.waitStarted(t)

	// Three more triggers against a cap of two: one is dropped.
	s.Trigger(models.SyncTriggeredWebhook)
	s.Trigger(models.SyncTriggeredWebhook)
	s.Trigger(models.SyncTriggeredWebhook)

	close(runner.release)
	waitFor(t, func() bool { return runner.count() == 3 })
	time.Sleep(50 * time.Millisecond)
	if got := runner.count(); got != 3 {
		t.Fatalf("expected 3 passes (1 running + 2 queued), got %d", got)
	}
}

func TestSchedulerNotifiesOnFailedRecords(t *testing.T) {
	runner := newBlockingRunner()
	runner.result = &models.SyncRun{Status: models.SyncRunStatusCompleted, EntriesFailed: 2}
	notifier := &recordingNotifier{}
	s := newTestScheduler(runner, &models.Schedule{Concurrency: models.ConcurrencySkip, Notifications: true}, notifier)
	s.Start()
	defer s.Stop()

	s.Trigger(models.SyncTriggeredScheduled)
	runner.waitStarted(t)
	close(runner.release)

	waitFor(t, func() bool { return notifier.count() == 1 })
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.summaries[0].EntriesFailed != 2 {
		t.Fatalf("summary %+v", notifier.summaries[0])
	}
}

func TestSchedulerQuietPassDoesNotNotify(t *testing.T) {
	runner := newBlockingRunner()
	notifier := &recordingNotifier{}
	s := newTestScheduler(runner, &models.Schedule{Concurrency: models.ConcurrencySkip, Notifications: true}, notifier)
	s.Start()
	defer s.Stop()

	s.Trigger(models.SyncTriggeredScheduled)
	runner.waitStarted(t)
	close(runner.release)

	waitFor(t, func() bool { return runner.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	if notifier.count() != 0 {
		t.Fatal("clean pass must not notify")
	}
}
