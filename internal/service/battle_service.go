package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/config"
	"memewars/internal/metrics"
	"memewars/internal/models"
	"memewars/internal/receipt"
	"memewars/internal/repository"
	"memewars/internal/settlement"
	"memewars/internal/yield"
)

const defaultTreasury = "treasury"

type PriceReader interface {
	ReadPrice(ctx context.Context, feedID string, now time.Time) (int64, error)
}

type SettlementNotifier interface {
	BattleSettled(ctx context.Context, b models.Battle, res settlement.Result) error
}

// BattleService runs the battle lifecycle. Every operation is one database
// transaction holding the battle row lock, so a failure leaves no trace.
type BattleService struct {
	Repo     repository.Repository
	Oracle   PriceReader
	Yield    yield.Backend
	Receipts receipt.Issuer
	Notifier SettlementNotifier
	Flags    *SystemSettingsService
	Config   config.SettlementConfig
	// YieldConfig is recorded on the protocol row at init.
	YieldConfig config.YieldConfig
	Logger      *zap.Logger
	Now         func() time.Time
}

type CreateBattleInput struct {
	// ID zero allocates the next free id.
	ID         uint64
	TokenA     string
	TokenB     string
	PriceFeedA string
	PriceFeedB string
	Duration   time.Duration
}

type BattleDetail struct {
	Battle models.Battle
	Vaults []models.Vault
}

func (s *BattleService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *BattleService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *BattleService) backend() yield.Backend {
	if s.Yield == nil {
		return yield.None{}
	}
	return s.Yield
}

func (s *BattleService) ready() error {
	if s == nil || s.Repo == nil {
		return errors.New("battle service not configured")
	}
	return nil
}

func (s *BattleService) CreateBattle(ctx context.Context, caller string, in CreateBattleInput) (out *models.Battle, err error) {
	started := time.Now()
	defer func() { metrics.Observe("create", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, battle.ErrUnauthorized
	}
	if err := battle.ValidateDuration(in.Duration); err != nil {
		return nil, err
	}
	in.TokenA, in.TokenB = strings.TrimSpace(in.TokenA), strings.TrimSpace(in.TokenB)
	in.PriceFeedA, in.PriceFeedB = strings.TrimSpace(in.PriceFeedA), strings.TrimSpace(in.PriceFeedB)
	if in.TokenA == "" || in.TokenB == "" || in.PriceFeedA == "" || in.PriceFeedB == "" {
		return nil, battle.ErrInvalidAsset
	}
	if s.Oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", battle.ErrInvalidPriceFeed)
	}

	now := s.now()
	priceA, err := s.Oracle.ReadPrice(ctx, in.PriceFeedA, now)
	if err != nil {
		return nil, err
	}
	priceB, err := s.Oracle.ReadPrice(ctx, in.PriceFeedB, now)
	if err != nil {
		return nil, err
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		id := in.ID
		if id == 0 {
			maxID, err := s.Repo.MaxBattleIDTx(ctx, tx)
			if err != nil {
				return err
			}
			id = maxID + 1
		}
		b := &models.Battle{
			ID:            id,
			Authority:     caller,
			TokenA:        in.TokenA,
			TokenB:        in.TokenB,
			PriceFeedA:    in.PriceFeedA,
			PriceFeedB:    in.PriceFeedB,
			InitialPriceA: priceA,
			InitialPriceB: priceB,
			StartTime:     now,
			EndTime:       now.Add(in.Duration),
			Status:        battle.StatusActive,
			Winner:        battle.TeamNone,
			VaultA:        battle.VaultRef(id, battle.TeamA),
			VaultB:        battle.VaultRef(id, battle.TeamB),
		}
		if err := s.Repo.CreateBattleTx(ctx, tx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: %d", battle.ErrBattleExists, id)
			}
			return err
		}
		if err := s.bumpProtocolTx(ctx, tx, func(p *models.ProtocolConfig) error {
			n, err := settlement.AddU64(p.TotalBattles, 1)
			p.TotalBattles = n
			return err
		}); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("battle created",
		zap.Uint64("battle_id", out.ID),
		zap.String("authority", caller),
		zap.String("token_a", out.TokenA),
		zap.String("token_b", out.TokenB),
		zap.Int64("initial_price_a", out.InitialPriceA),
		zap.Int64("initial_price_b", out.InitialPriceB),
		zap.Time("end_time", out.EndTime),
	)
	return out, nil
}

func (s *BattleService) GetBattle(ctx context.Context, id uint64) (*BattleDetail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b, err := s.Repo.GetBattle(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, battle.ErrBattleNotFound
	}
	vaults, err := s.Repo.ListVaultsByBattle(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BattleDetail{Battle: *b, Vaults: vaults}, nil
}

func (s *BattleService) ListBattles(ctx context.Context, params repository.ListBattlesParams) ([]models.Battle, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	items, err := s.Repo.ListBattles(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountBattles(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *BattleService) GetPosition(ctx context.Context, userID string, battleID uint64) (*models.StakePosition, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pos, err := s.Repo.GetStakePosition(ctx, userID, battleID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, battle.ErrPositionNotFound
	}
	return pos, nil
}

func (s *BattleService) ListPositions(ctx context.Context, params repository.ListStakePositionsParams) ([]models.StakePosition, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	items, err := s.Repo.ListStakePositions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountStakePositions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// lockBattleTx loads and locks the battle or fails with ErrBattleNotFound.
func (s *BattleService) lockBattleTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Battle, error) {
	b, err := s.Repo.GetBattleForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %d", battle.ErrBattleNotFound, id)
	}
	return b, nil
}

// vaultTx loads the team vault, initializing it in memory when absent.
func (s *BattleService) vaultTx(ctx context.Context, tx *gorm.DB, b *models.Battle, team battle.Team) (*models.Vault, error) {
	v, err := s.Repo.GetVaultTx(ctx, tx, b.ID, team)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = &models.Vault{BattleID: b.ID, Team: team, Ref: b.VaultRef(team)}
	}
	return v, nil
}

func (s *BattleService) bumpProtocolTx(ctx context.Context, tx *gorm.DB, fn func(p *models.ProtocolConfig) error) error {
	p, err := s.Repo.GetProtocolConfigTx(ctx, tx)
	if err != nil || p == nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return s.Repo.SaveProtocolConfigTx(ctx, tx, p)
}

func (s *BattleService) treasuryTx(ctx context.Context, tx *gorm.DB) (string, error) {
	p, err := s.Repo.GetProtocolConfigTx(ctx, tx)
	if err != nil {
		return "", err
	}
	if p == nil || strings.TrimSpace(p.Treasury) == "" {
		return defaultTreasury, nil
	}
	return p.Treasury, nil
}

func jsonMeta(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// ReceiptBalance returns the receipt units user holds for one team.
func (s *BattleService) ReceiptBalance(ctx context.Context, battleID uint64, team battle.Team, userID string) (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.Receipts == nil {
		return 0, nil
	}
	return s.Receipts.Balance(ctx, nil, battle.ReceiptMintFor(battleID, team), userID)
}
