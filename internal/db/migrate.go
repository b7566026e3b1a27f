package db

import (
	"memewars/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.ProtocolConfig{},
		&models.Battle{},
		&models.Vault{},
		&models.StakePosition{},
		&models.Account{},
		&models.LedgerEntry{},
		&models.ReceiptBalance{},
		&models.YieldForward{},
		&models.YieldPosition{},
		&models.SystemSetting{},
	)
}
