package models

import (
	"time"

	"memewars/internal/battle"
)

// Vault is the escrow of one team of one battle. OnHand is what is held in
// custody right now; LentAmount is principal delegated to the yield backend.
type Vault struct {
	ID       uint64      `gorm:"primaryKey;autoIncrement"`
	BattleID uint64      `gorm:"not null;uniqueIndex:idx_vaults_battle_team"`
	Team     battle.Team `gorm:"not null;uniqueIndex:idx_vaults_battle_team"`
	Ref      string      `gorm:"type:varchar(64);not null;uniqueIndex"`

	TotalAmount    uint64 `gorm:"not null;default:0"`
	LentAmount     uint64 `gorm:"not null;default:0"`
	YieldCollected uint64 `gorm:"not null;default:0"`
	ClaimedAmount  uint64 `gorm:"not null;default:0"`
	OnHand         uint64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Vault) TableName() string {
	return "vaults"
}

// Undelegated is principal not currently lent out.
func (v *Vault) Undelegated() uint64 {
	if v.LentAmount > v.TotalAmount {
		return 0
	}
	return v.TotalAmount - v.LentAmount
}
