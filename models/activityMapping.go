package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ActivityMapping associates a source (Zammad) activity type with a target
// (Kimai) activity. At most one active mapping per pair; maintained through
// an administrative surface, read-only to the sync engine.
type ActivityMapping struct {
	ID uint `gorm:"primary_key" json:"id"`

	SourceActivityId   int    `gorm:"uniqueIndex:uq_activity_mapping,priority:1;not null" json:"source_activity_id"`
	SourceActivityName string `gorm:"size:100" json:"source_activity_name"`

	TargetActivityId   int    `gorm:"uniqueIndex:uq_activity_mapping,priority:2;not null" json:"target_activity_id"`
	TargetActivityName string `gorm:"size:100" json:"target_activity_name"`

	IsActive bool `gorm:"default:true;not null" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindActiveMapping returns the active target activity for a source
// activity type, or (nil, nil) when none is configured.
func FindActiveMapping(db *gorm.DB, sourceActivityId int) (*ActivityMapping, error) {
	var mapping ActivityMapping
	err := db.
		Where("source_activity_id = ? AND is_active = ?", sourceActivityId, true).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}
