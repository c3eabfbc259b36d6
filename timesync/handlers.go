package timesync

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

var validate = validator.New()

type resolveConflictRequest struct {
	Action string `json:"action" validate:"required,oneof=create update keep-target skip"`
	Notes  string `json:"notes"`
}

type updateScheduleRequest struct {
	Cron          string `json:"cron" validate:"required"`
	Timezone      string `json:"timezone" validate:"required"`
	Concurrency   string `json:"concurrency" validate:"required,oneof=skip queue"`
	Notifications bool   `json:"notifications"`
	Enabled       bool   `json:"enabled"`
}

type createMappingRequest struct {
	SourceActivityId   int    `json:"source_activity_id" validate:"required"`
	SourceActivityName string `json:"source_activity_name"`
	TargetActivityId   int    `json:"target_activity_id" validate:"required"`
	TargetActivityName string `json:"target_activity_name"`
}

// TriggerSyncHandler starts a manual sync pass. Returns immediately; the
// pass runs in the scheduler actor.
func TriggerSyncHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduler.Trigger(models.SyncTriggeredManual)
		c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
	}
}

// WebhookHandler lets the ticketing system nudge a sync on ticket update.
func WebhookHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduler.Trigger(models.SyncTriggeredWebhook)
		c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
	}
}

// SyncStatusHandler returns the latest pass summary, from the Redis
// cache when available, else from the newest SyncRun row.
func SyncStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var summary Summary
		if found, err := config.GetRedisObject(lastRunKey, &summary); err == nil && found {
			c.JSON(http.StatusOK, summary)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var run models.SyncRun
		if err := db.Order("id DESC").Take(&run).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sync runs yet"})
			return
		}
		var pending int64
		if err := db.Model(&models.Conflict{}).
			Where("resolution_status = ?", models.ResolutionStatusPending).
			Count(&pending).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summaryOf(&run, pending))
	}
}

// SyncHistoryHandler lists sync runs, newest first.
func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		limit := queryInt(c, "limit", 50)
		if limit > 200 {
			limit = 200
		}

		var runs []models.SyncRun
		if err := db.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sync_runs": runs})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var run models.SyncRun
		if err := db.First(&run, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// ConflictsHandler lists conflicts, pending first, optionally filtered by
// resolution status.
func ConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		limit := queryInt(c, "limit", 100)
		if limit > 500 {
			limit = 500
		}

		query := db.Order("id DESC").Limit(limit)
		if status := c.Query("status"); status != "" {
			query = query.Where("resolution_status = ?", status)
		}
		var conflicts []models.Conflict
		if err := query.Find(&conflicts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
	}
}

// ResolveConflictHandler records a human decision on a pending conflict.
// Resolution is terminal: an already-resolved conflict cannot be resolved
// again.
func ResolveConflictHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var req resolveConflictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var conflict models.Conflict
		if err := db.First(&conflict, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conflict not found"})
			return
		}
		if conflict.ResolutionStatus != models.ResolutionStatusPending {
			c.JSON(http.StatusConflict, gin.H{"error": "conflict already resolved"})
			return
		}

		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		if username == "" {
			username = "operator"
		}
		now := time.Now()
		status := models.ResolutionStatusResolved
		if req.Action == models.ResolutionActionSkip {
			status = models.ResolutionStatusIgnored
		}
		updates := map[string]any{
			"resolution_status": status,
			"resolution_action": req.Action,
			"resolved_by":       username,
			"resolved_at":       &now,
			"notes":             req.Notes,
		}
		if err := db.Model(&conflict).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		models.CreateAuditLog(db, "sync_conflict_resolved", "conflict", &conflict.ID, username, map[string]any{
			"action": req.Action,
			"notes":  req.Notes,
		})
		c.JSON(http.StatusOK, gin.H{"status": status, "action": req.Action})
	}
}

func GetScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		schedule, err := models.GetSchedule(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if schedule == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no schedule configured"})
			return
		}
		c.JSON(http.StatusOK, schedule)
	}
}

// UpdateScheduleHandler upserts the schedule row and reloads the cron
// job. The cron expression is validated before anything is written.
func UpdateScheduleHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		var req updateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := cron.ParseStandard(req.Cron); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cron expression"})
			return
		}
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timezone"})
			return
		}

		schedule, err := models.GetSchedule(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if schedule == nil {
			schedule = &models.Schedule{}
		}
		schedule.Cron = req.Cron
		schedule.Timezone = req.Timezone
		schedule.Concurrency = req.Concurrency
		schedule.Notifications = req.Notifications
		schedule.Enabled = req.Enabled
		if err := db.Save(schedule).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		scheduler.Reload()
		c.JSON(http.StatusOK, schedule)
	}
}

func ListActivityMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		var mappings []models.ActivityMapping
		if err := db.Order("source_activity_id").Find(&mappings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mappings": mappings})
	}
}

func CreateActivityMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		var req createMappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		mapping := models.ActivityMapping{
			SourceActivityId:   req.SourceActivityId,
			SourceActivityName: req.SourceActivityName,
			TargetActivityId:   req.TargetActivityId,
			TargetActivityName: req.TargetActivityName,
			IsActive:           true,
		}
		if err := db.Create(&mapping).Error; err != nil {
			if isDuplicateEntry(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "mapping already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, mapping)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
