package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// AuditLog is the audit trail for sync and operator actions. Sync actions
// ("sync_" prefix) are retained forever; access logs are cleaned up on a
// retention schedule.
type AuditLog struct {
	ID uint `gorm:"primary_key" json:"id"`

	Action     string `gorm:"index;size:100;not null" json:"action"`
	EntityType string `gorm:"size:50" json:"entity_type"`
	EntityId   *uint  `json:"entity_id"`

	User        string `gorm:"size:100" json:"user"`
	DetailsJSON []byte `gorm:"type:json" json:"details"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func CreateAuditLog(db *gorm.DB, action, entityType string, entityId *uint, user string, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		detailsJSON, _ = json.Marshal(details)
	}
	entry := AuditLog{
		Action:      action,
		EntityType:  entityType,
		EntityId:    entityId,
		User:        user,
		DetailsJSON: detailsJSON,
	}
	return db.Create(&entry).Error
}

// CleanupOldAccessLogs deletes access logs older than the retention window.
// Sync logs (action LIKE 'sync%') are never deleted.
func CleanupOldAccessLogs(db *gorm.DB, daysToKeep int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	res := db.
		Where("created_at < ? AND action NOT LIKE ?", cutoff, "sync%").
		Delete(&AuditLog{})
	return res.RowsAffected, res.Error
}
