package timesync

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/timesync_backend/models"
)

const mysqlDuplicateEntry = 1062

// Store is the persistence surface the orchestrator needs. The GORM
// implementation below is the only production one; tests substitute an
// in-memory fake.
type Store interface {
	CreateSyncRun(triggerType string, start time.Time) (*models.SyncRun, error)
	FinalizeSyncRun(run *models.SyncRun) error

	UpsertPendingEntry(rec *NormalizedRecord) (*models.TimeEntry, error)
	MarkEntrySynced(entryId uint, targetId int) error
	MarkEntryStatus(entryId uint, status, syncError string) error

	FindDuplicateConflict(ticketRef string, sourceCreatedAt time.Time, durationSeconds int) (*models.Conflict, error)
	CreateConflict(conflict *models.Conflict) error
	CountPendingConflicts() (int64, error)

	Audit(action, entityType string, entityId *uint, details map[string]any) error
}

// MappingStore resolves source activity types to target activities.
type MappingStore interface {
	FindActiveMapping(sourceActivityId int) (*models.ActivityMapping, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateSyncRun(triggerType string, start time.Time) (*models.SyncRun, error) {
	run := models.SyncRun{
		TriggerType: triggerType,
		StartTime:   start,
		Status:      models.SyncRunStatusRunning,
	}
	if err := s.db.Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) FinalizeSyncRun(run *models.SyncRun) error {
	return s.db.Model(&models.SyncRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"end_time":           run.EndTime,
			"status":             run.Status,
			"entries_fetched":    run.EntriesFetched,
			"entries_synced":     run.EntriesSynced,
			"already_synced":     run.AlreadySynced,
			"entries_skipped":    run.EntriesSkipped,
			"entries_failed":     run.EntriesFailed,
			"conflicts_detected": run.ConflictsDetected,
			"error_message":      run.ErrorMessage,
		}).Error
}

// UpsertPendingEntry persists a fetched record keyed by (source, source_id).
// Existing rows get their volatile fields refreshed; sync status fields are
// left untouched so a previously synced row stays synced.
func (s *GormStore) UpsertPendingEntry(rec *NormalizedRecord) (*models.TimeEntry, error) {
	entry := entryFromRecord(rec)
	err := s.db.Create(entry).Error
	if err == nil {
		return entry, nil
	}
	if !isDuplicateEntry(err) {
		return nil, err
	}

	var existing models.TimeEntry
	if err := s.db.
		Where("source = ? AND source_id = ?", string(rec.Source), rec.SourceId).
		First(&existing).Error; err != nil {
		return nil, err
	}
	updates := map[string]any{
		"ticket_reference":  entry.TicketReference,
		"ticket_id":         entry.TicketId,
		"description":       entry.Description,
		"duration_seconds":  entry.DurationSeconds,
		"begin_time":        entry.BeginTime,
		"end_time":          entry.EndTime,
		"entry_date":        entry.EntryDate,
		"customer_id":       entry.CustomerId,
		"customer_name":     entry.CustomerName,
		"activity_type_id":  entry.ActivityTypeId,
		"activity_name":     entry.ActivityName,
		"tags_json":         entry.TagsJSON,
		"source_updated_at": entry.SourceUpdatedAt,
	}
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *GormStore) MarkEntrySynced(entryId uint, targetId int) error {
	now := time.Now()
	return s.db.Model(&models.TimeEntry{}).
		Where("id = ?", entryId).
		Updates(map[string]any{
			"sync_status": models.EntrySyncStatusSynced,
			"sync_error":  "",
			"target_id":   targetId,
			"synced_at":   &now,
		}).Error
}

func (s *GormStore) MarkEntryStatus(entryId uint, status, syncError string) error {
	return s.db.Model(&models.TimeEntry{}).
		Where("id = ?", entryId).
		Updates(map[string]any{
			"sync_status": status,
			"sync_error":  syncError,
		}).Error
}

func (s *GormStore) FindDuplicateConflict(ticketRef string, sourceCreatedAt time.Time, durationSeconds int) (*models.Conflict, error) {
	var conflict models.Conflict
	err := s.db.
		Where("ticket_reference = ? AND source_created_at = ? AND duration_seconds = ?",
			ticketRef, sourceCreatedAt, durationSeconds).
		Where("resolution_status = ?", models.ResolutionStatusPending).
		First(&conflict).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (s *GormStore) CreateConflict(conflict *models.Conflict) error {
	return s.db.Create(conflict).Error
}

func (s *GormStore) CountPendingConflicts() (int64, error) {
	var count int64
	err := s.db.Model(&models.Conflict{}).
		Where("resolution_status = ?", models.ResolutionStatusPending).
		Count(&count).Error
	return count, err
}

func (s *GormStore) Audit(action, entityType string, entityId *uint, details map[string]any) error {
	return models.CreateAuditLog(s.db, action, entityType, entityId, "system", details)
}

type GormMappingStore struct {
	db *gorm.DB
}

func NewGormMappingStore(db *gorm.DB) *GormMappingStore {
	return &GormMappingStore{db: db}
}

func (s *GormMappingStore) FindActiveMapping(sourceActivityId int) (*models.ActivityMapping, error) {
	return models.FindActiveMapping(s.db, sourceActivityId)
}

func entryFromRecord(rec *NormalizedRecord) *models.TimeEntry {
	entry := models.TimeEntry{
		Source:          string(rec.Source),
		SourceId:        rec.SourceId,
		TicketReference: rec.TicketReference,
		Description:     rec.Description,
		DurationSeconds: rec.DurationSeconds,
		BeginTime:       rec.Begin,
		EndTime:         rec.End,
		EntryDate:       rec.EntryDate,
		CustomerName:    rec.CustomerName,
		ActivityName:    rec.ActivityName,
		SyncStatus:      models.EntrySyncStatusPending,
	}
	if rec.TicketId != 0 {
		entry.TicketId = &rec.TicketId
	}
	if rec.CustomerId != 0 {
		entry.CustomerId = &rec.CustomerId
	}
	if rec.ActivityTypeId != 0 {
		entry.ActivityTypeId = &rec.ActivityTypeId
	}
	if len(rec.Tags) > 0 {
		entry.TagsJSON, _ = json.Marshal(rec.Tags)
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt
		entry.SourceCreatedAt = &created
	}
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		entry.SourceUpdatedAt = &updated
	}
	return &entry
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
