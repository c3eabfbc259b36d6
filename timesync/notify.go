package timesync

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

// lastRunKey caches the latest pass summary in Redis for the status
// endpoint.
const lastRunKey = "timesync:last_run"

// Summary is the notification payload for a finished pass.
type Summary struct {
	RunId             uint      `json:"run_id"`
	TriggerType       string    `json:"trigger_type"`
	Status            string    `json:"status"`
	EntriesSynced     int       `json:"entries_synced"`
	EntriesFailed     int       `json:"entries_failed"`
	ConflictsDetected int       `json:"conflicts_detected"`
	PendingConflicts  int64     `json:"pending_conflicts"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Notifier delivers pass summaries to operators. Delivery failure must
// never fail the pass.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// LogNotifier writes the summary to the structured log. Default when no
// Pub/Sub topic is configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, summary Summary) error {
	n.Logger.WithFields(logrus.Fields{
		"run_id":            summary.RunId,
		"status":            summary.Status,
		"entries_failed":    summary.EntriesFailed,
		"pending_conflicts": summary.PendingConflicts,
	}).Warn("sync pass needs attention")
	return nil
}

// PubSubNotifier publishes the summary to a Pub/Sub topic, for downstream
// alerting (mail relay, chat bridge).
type PubSubNotifier struct {
	Topic  string
	Logger *logrus.Logger
}

func (n *PubSubNotifier) Notify(ctx context.Context, summary Summary) error {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, n.Topic)
	if err != nil {
		return err
	}
	payload, err := utils.MarshalToJSON(summary)
	if err != nil {
		return err
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: []byte(payload)})
	if _, err := result.Get(ctx); err != nil {
		return err
	}
	n.Logger.WithField("run_id", summary.RunId).Info("published sync notification")
	return nil
}

func summaryOf(run *models.SyncRun, pendingConflicts int64) Summary {
	finished := time.Now()
	if run.EndTime != nil {
		finished = *run.EndTime
	}
	return Summary{
		RunId:             run.ID,
		TriggerType:       run.TriggerType,
		Status:            run.Status,
		EntriesSynced:     run.EntriesSynced,
		EntriesFailed:     run.EntriesFailed,
		ConflictsDetected: run.ConflictsDetected,
		PendingConflicts:  pendingConflicts,
		FinishedAt:        finished,
	}
}
