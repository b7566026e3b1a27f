package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/models"
)

// ErrDuplicate is returned when an insert hits an existing primary key.
var ErrDuplicate = errors.New("duplicate record")

// Getters return (nil, nil) when the record does not exist. Methods taking a
// tx run inside that transaction; a nil tx uses the store's connection.
type BattleRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateBattleTx(ctx context.Context, tx *gorm.DB, item *models.Battle) error
	// GetBattleForUpdateTx locks the battle row until tx ends.
	GetBattleForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Battle, error)
	SaveBattleTx(ctx context.Context, tx *gorm.DB, item *models.Battle) error
	MaxBattleIDTx(ctx context.Context, tx *gorm.DB) (uint64, error)
	GetBattle(ctx context.Context, id uint64) (*models.Battle, error)
	ListBattles(ctx context.Context, params ListBattlesParams) ([]models.Battle, error)
	CountBattles(ctx context.Context, params ListBattlesParams) (int64, error)
	ListEndedActiveBattles(ctx context.Context, now time.Time, authority string, limit int) ([]models.Battle, error)

	GetVaultTx(ctx context.Context, tx *gorm.DB, battleID uint64, team battle.Team) (*models.Vault, error)
	SaveVaultTx(ctx context.Context, tx *gorm.DB, item *models.Vault) error
	ListVaultsByBattle(ctx context.Context, battleID uint64) ([]models.Vault, error)

	GetStakePositionTx(ctx context.Context, tx *gorm.DB, userID string, battleID uint64) (*models.StakePosition, error)
	SaveStakePositionTx(ctx context.Context, tx *gorm.DB, item *models.StakePosition) error
	GetStakePosition(ctx context.Context, userID string, battleID uint64) (*models.StakePosition, error)
	ListStakePositions(ctx context.Context, params ListStakePositionsParams) ([]models.StakePosition, error)
	CountStakePositions(ctx context.Context, params ListStakePositionsParams) (int64, error)
	// SumStakedPrincipal totals principal of positions not withdrawn, per team.
	SumStakedPrincipal(ctx context.Context, battleID uint64) (map[battle.Team]uint64, error)
}

type ProtocolRepository interface {
	GetProtocolConfigTx(ctx context.Context, tx *gorm.DB) (*models.ProtocolConfig, error)
	CreateProtocolConfigTx(ctx context.Context, tx *gorm.DB, item *models.ProtocolConfig) error
	SaveProtocolConfigTx(ctx context.Context, tx *gorm.DB, item *models.ProtocolConfig) error
}

type AccountRepository interface {
	GetAccountTx(ctx context.Context, tx *gorm.DB, userID string) (*models.Account, error)
	SaveAccountTx(ctx context.Context, tx *gorm.DB, item *models.Account) error
	InsertLedgerEntryTx(ctx context.Context, tx *gorm.DB, item *models.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, params ListLedgerEntriesParams) ([]models.LedgerEntry, error)
}

type ReceiptRepository interface {
	GetReceiptBalanceTx(ctx context.Context, tx *gorm.DB, mint, owner string) (*models.ReceiptBalance, error)
	SaveReceiptBalanceTx(ctx context.Context, tx *gorm.DB, item *models.ReceiptBalance) error
}

type YieldRepository interface {
	InsertYieldForwardTx(ctx context.Context, tx *gorm.DB, item *models.YieldForward) error
	GetYieldForwardTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.YieldForward, error)
	SaveYieldForwardTx(ctx context.Context, tx *gorm.DB, item *models.YieldForward) error
	ListPendingYieldForwards(ctx context.Context, limit int) ([]models.YieldForward, error)

	InsertYieldPositionTx(ctx context.Context, tx *gorm.DB, item *models.YieldPosition) error
	SaveYieldPositionTx(ctx context.Context, tx *gorm.DB, item *models.YieldPosition) error
	// ListOpenYieldPositionsTx lists open positions of a battle, oldest first.
	// A nil team lists both teams.
	ListOpenYieldPositionsTx(ctx context.Context, tx *gorm.DB, battleID uint64, team *battle.Team) ([]models.YieldPosition, error)
}

type SystemSettingRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type Repository interface {
	BattleRepository
	ProtocolRepository
	AccountRepository
	ReceiptRepository
	YieldRepository
	SystemSettingRepository
}

type ListBattlesParams struct {
	Limit     int
	Offset    int
	Status    *battle.Status
	Authority *string
	OrderBy   string
	Asc       *bool
}

type ListStakePositionsParams struct {
	Limit    int
	Offset   int
	UserID   *string
	BattleID *uint64
	Claimed  *bool
	OrderBy  string
	Asc      *bool
}

type ListLedgerEntriesParams struct {
	Limit    int
	Offset   int
	UserID   *string
	BattleID *uint64
	Kind     *string
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
