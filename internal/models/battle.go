package models

import (
	"time"

	"memewars/internal/battle"
)

// Battle is one contest between two price-tracked assets. Prices are fixed
// point with exponent -8. Rows are never deleted.
type Battle struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement:false"`
	Authority string `gorm:"type:varchar(100);not null;index"`

	TokenA     string `gorm:"type:varchar(100);not null"`
	TokenB     string `gorm:"type:varchar(100);not null"`
	PriceFeedA string `gorm:"type:varchar(100);not null"`
	PriceFeedB string `gorm:"type:varchar(100);not null"`

	InitialPriceA int64  `gorm:"not null"`
	InitialPriceB int64  `gorm:"not null"`
	FinalPriceA   *int64
	FinalPriceB   *int64

	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null;index"`

	TotalStakedA   uint64 `gorm:"not null;default:0"`
	TotalStakedB   uint64 `gorm:"not null;default:0"`
	// SettledStakedA/B freeze the team totals at settlement. Claims are priced
	// against them; withdrawals after settlement only move the live totals.
	SettledStakedA uint64 `gorm:"not null;default:0"`
	SettledStakedB uint64 `gorm:"not null;default:0"`

	Status battle.Status `gorm:"not null;default:0;index"`
	Winner battle.Team   `gorm:"not null;default:0"`

	TotalYieldCollected  uint64 `gorm:"not null;default:0"`
	WinnerYield          uint64 `gorm:"not null;default:0"`
	ProtocolFeeCollected uint64 `gorm:"not null;default:0"`
	// EarlyYield is yield realized by redemptions forced by early withdrawals;
	// it joins the settlement pool.
	EarlyYield uint64 `gorm:"not null;default:0"`

	VaultA string `gorm:"type:varchar(64);not null"`
	VaultB string `gorm:"type:varchar(64);not null"`

	SettledAt   *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Battle) TableName() string {
	return "battles"
}

func (b *Battle) IsActive() bool {
	return b != nil && b.Status == battle.StatusActive
}

// InWindow reports whether deposits are open at now.
func (b *Battle) InWindow(now time.Time) bool {
	return !now.Before(b.StartTime) && now.Before(b.EndTime)
}

func (b *Battle) Ended(now time.Time) bool {
	return !now.Before(b.EndTime)
}

func (b *Battle) VaultRef(team battle.Team) string {
	switch team {
	case battle.TeamA:
		return b.VaultA
	case battle.TeamB:
		return b.VaultB
	default:
		return ""
	}
}

func (b *Battle) TotalStaked(team battle.Team) uint64 {
	switch team {
	case battle.TeamA:
		return b.TotalStakedA
	case battle.TeamB:
		return b.TotalStakedB
	default:
		return 0
	}
}

func (b *Battle) SetTotalStaked(team battle.Team, v uint64) {
	switch team {
	case battle.TeamA:
		b.TotalStakedA = v
	case battle.TeamB:
		b.TotalStakedB = v
	}
}

func (b *Battle) FeedFor(team battle.Team) string {
	if team == battle.TeamB {
		return b.PriceFeedB
	}
	return b.PriceFeedA
}
