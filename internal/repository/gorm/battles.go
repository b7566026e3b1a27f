package gormrepository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memewars/internal/battle"
	"memewars/internal/models"
	"memewars/internal/repository"
)

var battleOrderColumns = map[string]bool{
	"id":         true,
	"end_time":   true,
	"start_time": true,
	"created_at": true,
}

var positionOrderColumns = map[string]bool{
	"id":            true,
	"stake_time":    true,
	"amount_staked": true,
}

func (s *Store) CreateBattleTx(ctx context.Context, tx *gorm.DB, item *models.Battle) error {
	if s == nil || item == nil {
		return nil
	}
	res := s.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (s *Store) GetBattleForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Battle, error) {
	if s == nil {
		return nil, nil
	}
	var item models.Battle
	ok, err := first(s.conn(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveBattleTx(ctx context.Context, tx *gorm.DB, item *models.Battle) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) MaxBattleIDTx(ctx context.Context, tx *gorm.DB) (uint64, error) {
	if s == nil {
		return 0, nil
	}
	var maxID int64
	if err := s.conn(ctx, tx).Model(&models.Battle{}).Select("COALESCE(MAX(id), 0)").Row().Scan(&maxID); err != nil {
		return 0, err
	}
	return uint64(maxID), nil
}

func (s *Store) GetBattle(ctx context.Context, id uint64) (*models.Battle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Battle
	ok, err := first(s.db.WithContext(ctx).Where("id = ?", id), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) battleQuery(ctx context.Context, params repository.ListBattlesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Battle{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Authority != nil {
		query = query.Where("authority = ?", *params.Authority)
	}
	return query
}

func (s *Store) ListBattles(ctx context.Context, params repository.ListBattlesParams) ([]models.Battle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.battleQuery(ctx, params), params.OrderBy, params.Asc, battleOrderColumns, "id")
	var items []models.Battle
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBattles(ctx context.Context, params repository.ListBattlesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.battleQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListEndedActiveBattles(ctx context.Context, now time.Time, authority string, limit int) ([]models.Battle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", battle.StatusActive, now)
	if authority != "" {
		query = query.Where("authority = ?", authority)
	}
	var items []models.Battle
	if err := query.Order("end_time asc").Limit(normalizeLimit(limit, 20)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetVaultTx(ctx context.Context, tx *gorm.DB, battleID uint64, team battle.Team) (*models.Vault, error) {
	if s == nil {
		return nil, nil
	}
	var item models.Vault
	ok, err := first(s.conn(ctx, tx).Where("battle_id = ? AND team = ?", battleID, team), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveVaultTx(ctx context.Context, tx *gorm.DB, item *models.Vault) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) ListVaultsByBattle(ctx context.Context, battleID uint64) ([]models.Vault, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Vault
	if err := s.db.WithContext(ctx).Where("battle_id = ?", battleID).Order("team asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetStakePositionTx(ctx context.Context, tx *gorm.DB, userID string, battleID uint64) (*models.StakePosition, error) {
	if s == nil {
		return nil, nil
	}
	var item models.StakePosition
	ok, err := first(s.conn(ctx, tx).Where("user_id = ? AND battle_id = ?", userID, battleID), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveStakePositionTx(ctx context.Context, tx *gorm.DB, item *models.StakePosition) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) GetStakePosition(ctx context.Context, userID string, battleID uint64) (*models.StakePosition, error) {
	return s.GetStakePositionTx(ctx, nil, userID, battleID)
}

func (s *Store) positionQuery(ctx context.Context, params repository.ListStakePositionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.StakePosition{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.BattleID != nil {
		query = query.Where("battle_id = ?", *params.BattleID)
	}
	if params.Claimed != nil {
		query = query.Where("claimed = ?", *params.Claimed)
	}
	return query
}

func (s *Store) ListStakePositions(ctx context.Context, params repository.ListStakePositionsParams) ([]models.StakePosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.positionQuery(ctx, params), params.OrderBy, params.Asc, positionOrderColumns, "id")
	var items []models.StakePosition
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountStakePositions(ctx context.Context, params repository.ListStakePositionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.positionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) SumStakedPrincipal(ctx context.Context, battleID uint64) (map[battle.Team]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var positions []models.StakePosition
	if err := s.db.WithContext(ctx).
		Select("team", "amount_staked").
		Where("battle_id = ? AND withdrawn = ?", battleID, false).
		Find(&positions).Error; err != nil {
		return nil, err
	}
	out := map[battle.Team]uint64{}
	for _, p := range positions {
		out[p.Team] += p.AmountStaked
	}
	return out, nil
}
