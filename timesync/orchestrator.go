package timesync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

// Orchestrator drives one sync pass end to end:
//
//	FETCHING -> PERSISTING_PENDING -> RECONCILING -> PROCESSING -> FINALIZING
//
// A pass always finalizes its SyncRun row, whatever phase it dies in.
// Per-record failures inside PROCESSING are isolated: they degrade to a
// conflict or a failed counter and the pass keeps going. Only classified
// auth/permission errors abort the pass.
type Orchestrator struct {
	source      SourceConnector
	target      TargetConnector
	store       Store
	provisioner *Provisioner

	matchCfg       MatchConfig
	ignoreUnmapped bool
	logger         *logrus.Logger
}

func NewOrchestrator(source SourceConnector, target TargetConnector, store Store, provisioner *Provisioner, matchCfg MatchConfig, ignoreUnmapped bool, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		source:         source,
		target:         target,
		store:          store,
		provisioner:    provisioner,
		matchCfg:       matchCfg,
		ignoreUnmapped: ignoreUnmapped,
		logger:         logger,
	}
}

var tracer = otel.Tracer("timesync")

// Run executes one pass over [start, end). Returns the finalized SyncRun
// row; err is non-nil only when the pass as a whole failed.
func (o *Orchestrator) Run(ctx context.Context, triggerType string, start, end time.Time) (run *models.SyncRun, err error) {
	ctx, span := tracer.Start(ctx, "sync.pass")
	defer span.End()

	run, err = o.store.CreateSyncRun(triggerType, time.Now())
	if err != nil {
		return nil, err
	}
	o.store.Audit("sync_started", "sync_run", &run.ID, map[string]any{
		"trigger": triggerType,
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
	})

	finalized := false
	finalize := func(passErr error) {
		if finalized {
			return
		}
		finalized = true
		now := time.Now()
		run.EndTime = &now
		if passErr != nil {
			run.Status = models.SyncRunStatusFailed
			run.ErrorMessage = passErr.Error()
		} else {
			run.Status = models.SyncRunStatusCompleted
		}
		if err := o.store.FinalizeSyncRun(run); err != nil {
			config.LogError(o.logger, "timesync", "Run", "finalize sync run", run.ID, err)
		}
		action := "sync_completed"
		if passErr != nil {
			action = "sync_failed"
		}
		o.store.Audit(action, "sync_run", &run.ID, map[string]any{
			"synced":    run.EntriesSynced,
			"conflicts": run.ConflictsDetected,
			"failed":    run.EntriesFailed,
		})
	}
	// A panic anywhere below must still leave the run FAILED, not RUNNING
	// or COMPLETED. The panic is converted into the pass error.
	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("sync pass panic: %v", r)
			finalize(panicErr)
			err = panicErr
			return
		}
		finalize(nil)
	}()

	o.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"trigger": triggerType,
	}).Info("sync pass started")

	sourceRecords, err := o.source.FetchRecords(ctx, start, end)
	if err != nil {
		finalize(err)
		return run, err
	}
	targetRecords, err := o.target.FetchRecords(ctx, start, end)
	if err != nil {
		finalize(err)
		return run, err
	}
	run.EntriesFetched = len(sourceRecords) + len(targetRecords)

	entryIds := make(map[string]uint, len(sourceRecords))
	for i := range sourceRecords {
		entry, err := o.store.UpsertPendingEntry(&sourceRecords[i])
		if err != nil {
			config.LogError(o.logger, "timesync", "Run", "persist pending entry", sourceRecords[i].SourceId, err)
			continue
		}
		entryIds[sourceRecords[i].SourceId] = entry.ID
	}

	outcomes := Reconcile(sourceRecords, targetRecords, o.matchCfg)

	for i := range outcomes {
		if err := o.processOutcome(ctx, run, &outcomes[i], entryIds); err != nil {
			finalize(err)
			return run, err
		}
	}

	finalize(nil)
	o.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"synced":    run.EntriesSynced,
		"already":   run.AlreadySynced,
		"conflicts": run.ConflictsDetected,
		"skipped":   run.EntriesSkipped,
		"failed":    run.EntriesFailed,
	}).Info("sync pass completed")
	return run, nil
}

// processOutcome handles one reconciliation verdict. A non-nil return
// aborts the pass; everything else is absorbed into the run counters.
func (o *Orchestrator) processOutcome(ctx context.Context, run *models.SyncRun, out *Outcome, entryIds map[string]uint) error {
	switch out.Status {
	case StatusMatch:
		// A pair tied together by the marker is skipped only when duration
		// and activity still agree; an edit on either side is a conflict.
		if out.MatchedBy == "identity" {
			if reason, diverged := o.markerDivergence(out.Source, out.Target); diverged {
				o.recordConflict(run, out.Source, out.Target, reason, entryIds)
				return nil
			}
		}
		run.AlreadySynced++
		if entryId, ok := entryIds[out.Source.SourceId]; ok {
			targetId, _ := strconv.Atoi(out.Target.SourceId)
			if err := o.store.MarkEntrySynced(entryId, targetId); err != nil {
				config.LogError(o.logger, "timesync", "processOutcome", "mark entry synced", entryId, err)
			}
		}
		return nil

	case StatusConflict:
		o.recordConflict(run, out.Source, out.Target, out.Reason, entryIds)
		return nil

	case StatusMissing:
		return o.processMissing(ctx, run, out.Source, entryIds)

	case StatusOrphan:
		// Target-only records are someone's manual work; never touched.
		o.logger.WithFields(logrus.Fields{
			"target_id": out.Target.SourceId,
			"ticket":    out.Target.TicketReference,
		}).Debug("orphan target record, leaving as is")
		return nil
	}
	return nil
}

// processMissing pushes one source-only record through the provisioning
// pipeline. Fatal connector errors propagate; everything else degrades to
// a conflict or skip.
func (o *Orchestrator) processMissing(ctx context.Context, run *models.SyncRun, rec *NormalizedRecord, entryIds map[string]uint) error {
	entryId, hasEntry := entryIds[rec.SourceId]

	// Idempotency guard: a marker hit in the target window means a prior
	// pass already created this record, whatever the local database says.
	existing, err := o.provisioner.LookupExisting(ctx, rec)
	if err != nil {
		if IsFatalError(err) {
			return err
		}
		return o.degrade(run, rec, entryIds, err)
	}
	if existing != nil {
		if reason, diverged := o.markerDivergence(rec, existing); diverged {
			// Marker hit but the record was edited in the target since.
			o.recordConflict(run, rec, existing, reason, entryIds)
			return nil
		}
		run.AlreadySynced++
		if hasEntry {
			targetId, _ := strconv.Atoi(existing.SourceId)
			if err := o.store.MarkEntrySynced(entryId, targetId); err != nil {
				config.LogError(o.logger, "timesync", "processMissing", "mark entry synced", entryId, err)
			}
		}
		return nil
	}

	activityId, err := o.provisioner.ResolveActivity(rec)
	if err != nil {
		if unmapped, ok := err.(*ErrUnmappedActivity); ok {
			if o.ignoreUnmapped {
				run.EntriesSkipped++
				if hasEntry {
					o.store.MarkEntryStatus(entryId, models.EntrySyncStatusIgnored, unmapped.Error())
				}
				return nil
			}
			o.recordConflict(run, rec, nil, UnmappedActivityReason{
				ActivityName: unmapped.ActivityName,
				SourceTypeId: unmapped.SourceTypeId,
			}, entryIds)
			return nil
		}
		return o.degrade(run, rec, entryIds, err)
	}

	customer, err := o.provisioner.EnsureCustomer(ctx, rec)
	if err != nil {
		if IsFatalError(err) {
			return err
		}
		o.recordConflict(run, rec, nil, ProjectOrCustomerMissingReason{OrgName: rec.OrgName}, entryIds)
		return nil
	}
	project, err := o.provisioner.EnsureProject(ctx, customer, rec)
	if err != nil {
		if IsFatalError(err) {
			return err
		}
		o.recordConflict(run, rec, nil, ProjectOrCustomerMissingReason{OrgName: rec.OrgName}, entryIds)
		return nil
	}

	created, err := o.provisioner.CreateTimesheet(ctx, project, activityId, rec)
	if err != nil {
		if IsFatalError(err) {
			return err
		}
		o.recordConflict(run, rec, nil, CreationErrorReason{Detail: err.Error()}, entryIds)
		return nil
	}

	run.EntriesSynced++
	if hasEntry {
		if err := o.store.MarkEntrySynced(entryId, created.Id); err != nil {
			config.LogError(o.logger, "timesync", "processMissing", "mark entry synced", entryId, err)
		}
	}
	return nil
}

// degrade books an unclassified per-record failure and keeps the pass
// going.
func (o *Orchestrator) degrade(run *models.SyncRun, rec *NormalizedRecord, entryIds map[string]uint, err error) error {
	run.EntriesFailed++
	config.LogError(o.logger, "timesync", "processMissing", "record failed", rec.SourceId, err)
	if entryId, ok := entryIds[rec.SourceId]; ok {
		o.store.MarkEntryStatus(entryId, models.EntrySyncStatusError, err.Error())
	}
	return nil
}

// markerDivergence decides skip-or-conflict for a source record and the
// target record carrying its marker. Equal duration and activity mean the
// record is already synced; a gap in either is a conflict. The activity is
// compared through the mapping; when it cannot be resolved or the target
// activity is unknown the check is inconclusive and the pair is skipped.
func (o *Orchestrator) markerDivergence(src, tgt *NormalizedRecord) (Reason, bool) {
	if durationDiff(src, tgt) > o.matchCfg.DurationTolerance {
		return TimeMismatchReason{
			TicketNumber:  src.TicketReference,
			SourceSeconds: src.DurationSeconds,
			TargetSeconds: tgt.DurationSeconds,
		}, true
	}
	activityId, err := o.provisioner.ResolveActivity(src)
	if err != nil || activityId == 0 || tgt.ActivityTypeId == 0 {
		return nil, false
	}
	if tgt.ActivityTypeId != activityId {
		return EntryConflictReason{
			TicketNumber: src.TicketReference,
			EntryDate:    src.EntryDate,
		}, true
	}
	return nil, false
}

// conflictTypeFor buckets a reason into the coarse conflict type used for
// filtering in the review UI.
func conflictTypeFor(code ReasonCode) string {
	switch code {
	case ReasonDuplicate:
		return models.ConflictTypeDuplicate
	case ReasonTimeMismatch, ReasonConflict, ReasonLockedOrExported, ReasonOther:
		return models.ConflictTypeMismatch
	default:
		return models.ConflictTypeMissing
	}
}

// recordConflict persists a conflict unless an identical pending one
// already exists. Duplicates from overlapping windows count as skipped.
func (o *Orchestrator) recordConflict(run *models.SyncRun, src, tgt *NormalizedRecord, reason Reason, entryIds map[string]uint) {
	existing, err := o.store.FindDuplicateConflict(src.TicketReference, src.CreatedAt, src.DurationSeconds)
	if err != nil {
		config.LogError(o.logger, "timesync", "recordConflict", "dedup lookup", src.SourceId, err)
	}
	if existing != nil {
		run.EntriesSkipped++
		return
	}

	projectName := src.ProjectName
	if tgt != nil && tgt.ProjectName != "" {
		projectName = tgt.ProjectName
	}
	conflict := models.Conflict{
		ConflictType:     conflictTypeFor(reason.Code()),
		ReasonCode:       string(reason.Code()),
		ReasonDetail:     Render(reason),
		TicketReference:  src.TicketReference,
		DurationSeconds:  src.DurationSeconds,
		CustomerName:     src.CustomerName,
		ProjectName:      projectName,
		ActivityName:     src.ActivityName,
		TicketNumber:     src.TicketReference,
		ResolutionStatus: models.ResolutionStatusPending,
	}
	if !src.CreatedAt.IsZero() {
		created := src.CreatedAt
		conflict.SourceCreatedAt = &created
	}
	if entryId, ok := entryIds[src.SourceId]; ok {
		conflict.TimeEntryId = &entryId
	}
	if s, err := utils.MarshalToJSON(src); err == nil {
		conflict.SourceDataJSON = []byte(s)
	}
	if tgt != nil {
		if s, err := utils.MarshalToJSON(tgt); err == nil {
			conflict.TargetDataJSON = []byte(s)
		}
	}

	if err := o.store.CreateConflict(&conflict); err != nil {
		config.LogError(o.logger, "timesync", "recordConflict", "create conflict", src.SourceId, err)
		run.EntriesFailed++
		return
	}
	run.ConflictsDetected++
	if entryId, ok := entryIds[src.SourceId]; ok {
		o.store.MarkEntryStatus(entryId, models.EntrySyncStatusConflict, Render(reason))
	}
}
