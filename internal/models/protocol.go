package models

import (
	"time"

	"gorm.io/datatypes"
)

const ProtocolConfigID uint = 1

// ProtocolConfig is the singleton protocol record.
type ProtocolConfig struct {
	ID        uint   `gorm:"primaryKey;autoIncrement:false"`
	Authority string `gorm:"type:varchar(100);not null"`
	Treasury  string `gorm:"type:varchar(100);not null"`

	TotalBattles       uint64 `gorm:"not null;default:0"`
	TotalValueLocked   uint64 `gorm:"not null;default:0"`
	TotalFeesCollected uint64 `gorm:"not null;default:0"`

	// YieldBackend records the backend selected for this deployment, e.g.
	// {"kind":"marginfi","marginfi":{"apy":"0.065"}}.
	YieldBackend datatypes.JSON
	ForwardBps   uint64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ProtocolConfig) TableName() string {
	return "protocol_config"
}
