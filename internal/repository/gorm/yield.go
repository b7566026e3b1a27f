package gormrepository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memewars/internal/battle"
	"memewars/internal/models"
)

func (s *Store) InsertYieldForwardTx(ctx context.Context, tx *gorm.DB, item *models.YieldForward) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) GetYieldForwardTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.YieldForward, error) {
	if s == nil {
		return nil, nil
	}
	var item models.YieldForward
	query := s.conn(ctx, tx).Where("id = ?", id)
	if tx != nil {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	ok, err := first(query, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveYieldForwardTx(ctx context.Context, tx *gorm.DB, item *models.YieldForward) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) ListPendingYieldForwards(ctx context.Context, limit int) ([]models.YieldForward, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.YieldForward
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.YieldForwardPending).
		Order("id asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertYieldPositionTx(ctx context.Context, tx *gorm.DB, item *models.YieldPosition) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) SaveYieldPositionTx(ctx context.Context, tx *gorm.DB, item *models.YieldPosition) error {
	if s == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Save(item).Error
}

func (s *Store) ListOpenYieldPositionsTx(ctx context.Context, tx *gorm.DB, battleID uint64, team *battle.Team) ([]models.YieldPosition, error) {
	if s == nil {
		return nil, nil
	}
	query := s.conn(ctx, tx).Where("battle_id = ? AND status = ?", battleID, models.YieldPositionOpen)
	if team != nil {
		query = query.Where("team = ?", *team)
	}
	var items []models.YieldPosition
	if err := query.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
