package models

import (
	"time"

	"memewars/internal/battle"
)

// StakePosition is one user's stake in one battle. Team never changes after
// the first deposit; a claimed position is final.
type StakePosition struct {
	ID       uint64      `gorm:"primaryKey;autoIncrement"`
	UserID   string      `gorm:"type:varchar(100);not null;uniqueIndex:idx_positions_user_battle"`
	BattleID uint64      `gorm:"not null;uniqueIndex:idx_positions_user_battle;index"`
	Team     battle.Team `gorm:"not null"`

	AmountStaked uint64    `gorm:"not null;default:0"`
	StakeTime    time.Time `gorm:"not null"`
	Claimed      bool      `gorm:"not null;default:false;index"`
	Withdrawn    bool      `gorm:"not null;default:false"`
	RewardAmount uint64    `gorm:"not null;default:0"`
	ClaimedAt    *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (StakePosition) TableName() string {
	return "stake_positions"
}
