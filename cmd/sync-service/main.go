package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
	"bitbucket.org/mmdatafocus/timesync_backend/timesync"
	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

const defaultPort = "8080"

// newConnectors is replaced by the deployment build that links the
// concrete Zammad/Kimai HTTP clients. Without them the service still
// serves the review and configuration endpoints; only the sync passes
// are disabled.
var newConnectors = func(logger *logrus.Logger) (timesync.SourceConnector, timesync.TargetConnector, error) {
	return nil, nil, errors.New("no connector implementation linked")
}

// schedulerHolder lets routes be registered before the server listens
// while the scheduler itself is wired only after the database is up.
type schedulerHolder struct {
	mu sync.RWMutex
	s  *timesync.Scheduler
}

func (h *schedulerHolder) get() *timesync.Scheduler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

func (h *schedulerHolder) set(s *timesync.Scheduler) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	// Operator identity for audit attribution, set by the authenticating
	// proxy in front of this service.
	r.Use(func(c *gin.Context) {
		if user := strings.TrimSpace(c.GetHeader("x-forwarded-user")); user != "" {
			c.Request = c.Request.WithContext(utils.SetUsernameInContext(c.Request.Context(), user))
		}
		c.Next()
	})
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	holder := &schedulerHolder{}
	registerRoutes(r, holder)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if scheduler := buildScheduler(logger); scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
		holder.set(scheduler)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// buildScheduler wires connectors, store, provisioner, orchestrator and
// scheduler. Returns nil when no connector implementation is linked.
func buildScheduler(logger *logrus.Logger) *timesync.Scheduler {
	source, target, err := newConnectors(logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "connectors"}).Warnf("sync passes disabled: %v", err)
		return nil
	}

	db := config.GetDB()
	store := timesync.NewGormStore(db)
	mappings := timesync.NewGormMappingStore(db)

	provisioner := timesync.NewProvisioner(target, mappings, timesync.ProvisionSettings{
		DefaultActivityId: utils.IntFromEnv("SYNC_DEFAULT_ACTIVITY_ID", 0),
		IgnoreUnmapped:    config.IgnoreUnmappedActivities(),
		Timezone:          utils.EnvStringDefault("SYNC_TARGET_TIMEZONE", "UTC"),
		Country:           utils.EnvStringDefault("SYNC_CUSTOMER_COUNTRY", "DE"),
		Currency:          utils.EnvStringDefault("SYNC_CUSTOMER_CURRENCY", "EUR"),
		ProvenanceTag:     utils.EnvStringDefault("SYNC_PROVENANCE_TAG", "zammad-sync"),
		MarkerWindowDays:  config.MarkerSearchWindowDays(),
		DurationTolerance: config.DurationTolerance(),
	}, logger)

	matchCfg := timesync.MatchConfig{
		DurationTolerance: config.DurationTolerance(),
		CoarseThreshold:   config.CoarseMatchThreshold(),
		Rounding:          roundingFromEnv(),
	}

	orchestrator := timesync.NewOrchestrator(source, target, store, provisioner, matchCfg,
		config.IgnoreUnmappedActivities(), logger)

	var notifier timesync.Notifier = &timesync.LogNotifier{Logger: logger}
	if topic := os.Getenv("SYNC_NOTIFY_TOPIC"); topic != "" {
		notifier = &timesync.PubSubNotifier{Topic: topic, Logger: logger}
	}

	getSchedule := func() (*models.Schedule, error) {
		return models.GetSchedule(config.GetDB())
	}
	return timesync.NewScheduler(orchestrator, store, notifier, getSchedule, config.GetRedisLock(), logger)
}

// roundingFromEnv reads the target system's rounding rule, when the
// deployment mirrors one. SYNC_ROUNDING_MINUTES=0 disables it.
func roundingFromEnv() *timesync.RoundingRule {
	minutes := utils.IntFromEnv("SYNC_ROUNDING_MINUTES", 0)
	if minutes <= 0 {
		return nil
	}
	return &timesync.RoundingRule{
		Mode:            timesync.RoundingMode(utils.EnvStringDefault("SYNC_ROUNDING_MODE", string(timesync.RoundNearest))),
		BeginMinutes:    minutes,
		EndMinutes:      minutes,
		DurationMinutes: minutes,
	}
}

func registerRoutes(r *gin.Engine, holder *schedulerHolder) {
	withScheduler := func(build func(*timesync.Scheduler) gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			s := holder.get()
			if s == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync passes disabled"})
				return
			}
			build(s)(c)
		}
	}

	r.POST("/api/sync/trigger", withScheduler(timesync.TriggerSyncHandler))
	r.POST("/api/sync/webhook", withScheduler(timesync.WebhookHandler))
	r.PUT("/api/sync/schedule", withScheduler(timesync.UpdateScheduleHandler))
	r.GET("/api/sync/status", timesync.SyncStatusHandler())
	r.GET("/api/sync/runs", timesync.SyncHistoryHandler())
	r.GET("/api/sync/runs/:id", timesync.SyncRunDetailHandler())
	r.GET("/api/sync/schedule", timesync.GetScheduleHandler())

	r.GET("/api/conflicts", timesync.ConflictsHandler())
	r.POST("/api/conflicts/:id/resolve", timesync.ResolveConflictHandler())
	r.GET("/api/conflicts/export", timesync.ExportConflictsHandler())

	r.GET("/api/mappings", timesync.ListActivityMappingsHandler())
	r.POST("/api/mappings", timesync.CreateActivityMappingHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
