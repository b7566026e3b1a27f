package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is one feature switch. Value holds a JSON boolean.
type SystemSetting struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	Key         string         `gorm:"type:varchar(120);not null;uniqueIndex"`
	Value       datatypes.JSON `gorm:"not null"`
	Description string         `gorm:"type:text"`
	// UpdatedBy is the authority that last flipped the switch; empty for seeded defaults.
	UpdatedBy string    `gorm:"type:varchar(128)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
