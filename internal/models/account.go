package models

import (
	"time"

	"gorm.io/datatypes"
)

// Account is a user's spendable balance outside any battle.
type Account struct {
	UserID    string    `gorm:"type:varchar(100);primaryKey"`
	Balance   uint64    `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

const (
	LedgerKindCredit   = "credit"
	LedgerKindDeposit  = "deposit"
	LedgerKindClaim    = "claim"
	LedgerKindWithdraw = "withdraw"
	LedgerKindPenalty  = "penalty"
	LedgerKindFee      = "fee"

	LedgerDirectionIn  = "in"
	LedgerDirectionOut = "out"
)

// LedgerEntry journals every account movement.
type LedgerEntry struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	UserID    string  `gorm:"type:varchar(100);not null;index"`
	BattleID  *uint64 `gorm:"index"`
	Kind      string  `gorm:"type:varchar(20);not null;index"`
	Direction string  `gorm:"type:varchar(4);not null"`
	Amount    uint64  `gorm:"not null"`
	// BalanceAfter is the account balance once this entry applied. Zero for
	// informational entries that do not move the account.
	BalanceAfter uint64 `gorm:"not null;default:0"`
	Metadata     datatypes.JSON
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
