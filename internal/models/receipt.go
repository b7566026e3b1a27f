package models

import "time"

// ReceiptBalance holds receipt units of one mint for one owner.
type ReceiptBalance struct {
	Mint      string    `gorm:"type:varchar(100);primaryKey"`
	Owner     string    `gorm:"type:varchar(100);primaryKey"`
	Amount    uint64    `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ReceiptBalance) TableName() string {
	return "receipt_balances"
}
