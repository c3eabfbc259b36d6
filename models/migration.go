package models

import (
	"bitbucket.org/mmdatafocus/timesync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&TimeEntry{},
		&SyncRun{},
		&Conflict{},
		&ActivityMapping{},
		&Schedule{},
		&AuditLog{},
	)
	if err != nil {
		config.GetLogger().WithField("module", "models").Error("auto migrate failed: " + err.Error())
	}
}
