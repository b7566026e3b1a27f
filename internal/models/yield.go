package models

import (
	"time"

	"github.com/shopspring/decimal"

	"memewars/internal/battle"
)

const (
	YieldForwardPending = "pending"
	YieldForwardDone    = "done"
	YieldForwardSkipped = "skipped"

	YieldPositionOpen     = "open"
	YieldPositionRedeemed = "redeemed"
)

// YieldForward is the pending marker written by a deposit and consumed once
// the delegation succeeds. Key is the idempotency key sent to the backend.
type YieldForward struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement"`
	Key           string      `gorm:"type:varchar(64);not null;uniqueIndex"`
	BattleID      uint64      `gorm:"not null;index"`
	Team          battle.Team `gorm:"not null"`
	Amount        uint64      `gorm:"not null"`
	Status        string      `gorm:"type:varchar(16);not null;index"`
	Attempts      int         `gorm:"not null;default:0"`
	LastError     string      `gorm:"type:text"`
	LastAttemptAt *time.Time
	PositionRef   string    `gorm:"type:varchar(120)"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (YieldForward) TableName() string {
	return "yield_forwards"
}

// YieldPosition is principal delegated to a yield backend.
type YieldPosition struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	Ref         string          `gorm:"type:varchar(120);not null;uniqueIndex"`
	BattleID    uint64          `gorm:"not null;index:idx_yield_positions_battle_status"`
	Team        battle.Team     `gorm:"not null"`
	Backend     string          `gorm:"type:varchar(20);not null"`
	Amount      uint64          `gorm:"not null"`
	EntryRate   decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Status      string          `gorm:"type:varchar(16);not null;index:idx_yield_positions_battle_status"`
	DelegatedAt time.Time       `gorm:"not null"`

	RedeemedPrincipal uint64 `gorm:"not null;default:0"`
	RedeemedYield     uint64 `gorm:"not null;default:0"`
	RedeemedAt        *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (YieldPosition) TableName() string {
	return "yield_positions"
}
