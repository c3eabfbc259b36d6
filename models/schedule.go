package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	ConcurrencySkip  = "skip"
	ConcurrencyQueue = "queue"
)

// Schedule is the periodic sync configuration. A single row; read at
// trigger time so edits take effect without a restart.
type Schedule struct {
	ID uint `gorm:"primary_key" json:"id"`

	Cron          string `gorm:"size:100;not null" json:"cron"`
	Timezone      string `gorm:"size:50;not null;default:UTC" json:"timezone"`
	Concurrency   string `gorm:"size:20;not null;default:skip" json:"concurrency"`
	Notifications bool   `gorm:"default:false;not null" json:"notifications"`
	Enabled       bool   `gorm:"default:true;not null" json:"enabled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSchedule(db *gorm.DB) (*Schedule, error) {
	var schedule Schedule
	err := db.Order("id").Take(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}
