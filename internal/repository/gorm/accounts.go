package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memewars/internal/models"
	"memewars/internal/repository"
)

func (s *Store) GetProtocolConfigTx(ctx context.Context, tx *gorm.DB) (*models.ProtocolConfig, error) {
	if s == nil {
		return nil, nil
	}
	var item models.ProtocolConfig
	query := s.conn(ctx, tx).Where("id = ?", models.ProtocolConfigID)
	if tx != nil {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	ok, err := first(query, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateProtocolConfigTx(ctx context.Context, tx *gorm.DB, item *models.ProtocolConfig) error {
	if s == nil || item == nil {
		return nil
	}
	item.ID = models.ProtocolConfigID
	res := s.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (s *Store) SaveProtocolConfigTx(ctx context.Context, tx *gorm.DB, item *models.ProtocolConfig) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) GetAccountTx(ctx context.Context, tx *gorm.DB, userID string) (*models.Account, error) {
	if s == nil {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var item models.Account
	ok, err := first(s.conn(ctx, tx).Where("user_id = ?", userID), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveAccountTx(ctx context.Context, tx *gorm.DB, item *models.Account) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) InsertLedgerEntryTx(ctx context.Context, tx *gorm.DB, item *models.LedgerEntry) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) ListLedgerEntries(ctx context.Context, params repository.ListLedgerEntriesParams) ([]models.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.BattleID != nil {
		query = query.Where("battle_id = ?", *params.BattleID)
	}
	if params.Kind != nil {
		query = query.Where("kind = ?", *params.Kind)
	}
	var items []models.LedgerEntry
	if err := query.Order("id desc").Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetReceiptBalanceTx(ctx context.Context, tx *gorm.DB, mint, owner string) (*models.ReceiptBalance, error) {
	if s == nil {
		return nil, nil
	}
	var item models.ReceiptBalance
	ok, err := first(s.conn(ctx, tx).Where("mint = ? AND owner = ?", mint, owner), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveReceiptBalanceTx(ctx context.Context, tx *gorm.DB, item *models.ReceiptBalance) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}, {Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(item).Error
}
