package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/metrics"
	"memewars/internal/models"
	"memewars/internal/settlement"
	"memewars/internal/yield"
)

type SettleResult struct {
	Battle  models.Battle
	Outcome settlement.Result
}

// Settle resolves an ended battle. Final prices are read before the
// transaction opens; everything else happens under the battle lock, so a
// second settle of the same battle fails with ErrBattleNotActive.
func (s *BattleService) Settle(ctx context.Context, caller string, battleID uint64) (out *SettleResult, err error) {
	started := time.Now()
	defer func() { metrics.Observe("settle", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := s.now()
	pre, err := s.Repo.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		return nil, fmt.Errorf("%w: %d", battle.ErrBattleNotFound, battleID)
	}
	if strings.TrimSpace(caller) == "" || pre.Authority != caller {
		return nil, battle.ErrUnauthorized
	}
	if !pre.IsActive() {
		return nil, battle.ErrBattleNotActive
	}
	if !pre.Ended(now) {
		return nil, battle.ErrBattleNotEnded
	}
	if s.Oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", battle.ErrInvalidPriceFeed)
	}
	finalA, err := s.Oracle.ReadPrice(ctx, pre.PriceFeedA, now)
	if err != nil {
		return nil, err
	}
	finalB, err := s.Oracle.ReadPrice(ctx, pre.PriceFeedB, now)
	if err != nil {
		return nil, err
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.lockBattleTx(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if !b.IsActive() {
			return battle.ErrBattleNotActive
		}
		vaults, realized, err := s.recallAllTx(ctx, tx, b, now)
		if err != nil {
			return err
		}
		res, err := settlement.Compute(settlement.Input{
			InitialPriceA: b.InitialPriceA,
			InitialPriceB: b.InitialPriceB,
			FinalPriceA:   finalA,
			FinalPriceB:   finalB,
			TotalStakedA:  b.TotalStakedA,
			TotalStakedB:  b.TotalStakedB,
			Yield:         realized,
		})
		if err != nil {
			return err
		}
		for _, team := range []battle.Team{battle.TeamA, battle.TeamB} {
			v := vaults[team]
			share := res.YieldFor(team)
			if v.ID == 0 && share == 0 {
				continue
			}
			v.YieldCollected = share
			if v.OnHand, err = settlement.AddU64(v.OnHand, share); err != nil {
				return err
			}
			if err := s.Repo.SaveVaultTx(ctx, tx, v); err != nil {
				return err
			}
		}
		if err := s.collectFeeTx(ctx, tx, b.ID, res.ProtocolFee, "settle"); err != nil {
			return err
		}

		b.FinalPriceA = &finalA
		b.FinalPriceB = &finalB
		b.Winner = res.Winner
		b.TotalYieldCollected = res.TotalYield
		b.WinnerYield = res.WinnerYield
		b.ProtocolFeeCollected = res.ProtocolFee
		b.SettledStakedA = b.TotalStakedA
		b.SettledStakedB = b.TotalStakedB
		b.Status = battle.StatusSettled
		b.SettledAt = &now
		if err := s.Repo.SaveBattleTx(ctx, tx, b); err != nil {
			return err
		}
		out = &SettleResult{Battle: *b, Outcome: res}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddPayout(models.LedgerKindFee, out.Outcome.ProtocolFee)
	s.logger().Info("battle settled",
		zap.Uint64("battle_id", battleID),
		zap.String("winner", out.Outcome.Winner.String()),
		zap.Int64("growth_a_bps", out.Outcome.GrowthA),
		zap.Int64("growth_b_bps", out.Outcome.GrowthB),
		zap.Uint64("total_yield", out.Outcome.TotalYield),
		zap.Uint64("protocol_fee", out.Outcome.ProtocolFee),
	)
	if s.Notifier != nil && s.Flags.IsEnabled(ctx, FeatureNotifications, true) {
		if err := s.Notifier.BattleSettled(ctx, out.Battle, out.Outcome); err != nil {
			s.logger().Warn("settlement notification failed", zap.Uint64("battle_id", battleID), zap.Error(err))
		}
	}
	return out, nil
}

// Cancel stops an active battle. Stakes stay in place and are returned in
// full through Withdraw. Yield realized so far has no winner and goes to the
// treasury.
func (s *BattleService) Cancel(ctx context.Context, caller string, battleID uint64) (out *models.Battle, err error) {
	started := time.Now()
	defer func() { metrics.Observe("cancel", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := s.now()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.lockBattleTx(ctx, tx, battleID)
		if err != nil {
			return err
		}
		allowed := strings.TrimSpace(caller) != "" && b.Authority == caller
		if !allowed {
			p, err := s.Repo.GetProtocolConfigTx(ctx, tx)
			if err != nil {
				return err
			}
			allowed = p != nil && caller != "" && p.Authority == caller
		}
		if !allowed {
			return battle.ErrUnauthorized
		}
		if !b.IsActive() {
			return battle.ErrBattleNotActive
		}
		vaults, realized, err := s.recallAllTx(ctx, tx, b, now)
		if err != nil {
			return err
		}
		for _, v := range vaults {
			if v.ID == 0 {
				continue
			}
			if err := s.Repo.SaveVaultTx(ctx, tx, v); err != nil {
				return err
			}
		}
		if err := s.collectFeeTx(ctx, tx, b.ID, realized, "cancel"); err != nil {
			return err
		}
		b.TotalYieldCollected = realized
		b.ProtocolFeeCollected = realized
		b.Status = battle.StatusCancelled
		b.CancelledAt = &now
		if err := s.Repo.SaveBattleTx(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.AddPayout(models.LedgerKindFee, out.ProtocolFeeCollected)
	s.logger().Info("battle cancelled", zap.Uint64("battle_id", battleID), zap.String("by", caller))
	return out, nil
}

// SettleEnded settles active battles past their end time that the keeper
// identity owns. Failures are logged and left for the next run.
func (s *BattleService) SettleEnded(ctx context.Context, limit int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	keeper := strings.TrimSpace(s.Config.KeeperIdentity)
	if keeper == "" {
		return 0, nil
	}
	if limit <= 0 {
		limit = s.Config.KeeperBatch
	}
	items, err := s.Repo.ListEndedActiveBattles(ctx, s.now(), keeper, limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, b := range items {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Settle(ctx, keeper, b.ID); err != nil {
			s.logger().Warn("keeper settle failed",
				zap.Uint64("battle_id", b.ID),
				zap.String("code", battle.CodeOf(err)),
				zap.Bool("retryable", battle.Retryable(err)),
				zap.Error(err),
			)
			continue
		}
		settled++
	}
	return settled, ctx.Err()
}

// recallAllTx redeems every open yield position of b. It returns both team
// vaults, updated but not saved, and the realized yield including what early
// withdrawals already recalled.
func (s *BattleService) recallAllTx(ctx context.Context, tx *gorm.DB, b *models.Battle, now time.Time) (map[battle.Team]*models.Vault, uint64, error) {
	vaults := make(map[battle.Team]*models.Vault, 2)
	for _, team := range []battle.Team{battle.TeamA, battle.TeamB} {
		v, err := s.vaultTx(ctx, tx, b, team)
		if err != nil {
			return nil, 0, err
		}
		vaults[team] = v
	}
	positions, err := s.Repo.ListOpenYieldPositionsTx(ctx, tx, b.ID, nil)
	if err != nil {
		return nil, 0, err
	}
	realized := b.EarlyYield
	for i := range positions {
		v, ok := vaults[positions[i].Team]
		if !ok {
			continue
		}
		red, err := s.redeemTx(ctx, tx, &positions[i], v, now)
		if err != nil {
			return nil, 0, err
		}
		if realized, err = settlement.AddU64(realized, red.Yield); err != nil {
			return nil, 0, err
		}
	}
	return vaults, realized, nil
}

// redeemTx closes one yield position and returns its principal to the
// vault's custody. The caller decides where the yield goes.
func (s *BattleService) redeemTx(ctx context.Context, tx *gorm.DB, pos *models.YieldPosition, v *models.Vault, now time.Time) (yield.Redemption, error) {
	red, err := s.backend().Redeem(ctx, yield.Position{
		Ref:         pos.Ref,
		Amount:      pos.Amount,
		EntryRate:   pos.EntryRate,
		DelegatedAt: pos.DelegatedAt,
	}, now)
	if err != nil {
		return yield.Redemption{}, fmt.Errorf("%w: redeem %s: %v", battle.ErrYieldUnavailable, pos.Ref, err)
	}
	if v.LentAmount, err = settlement.SubU64(v.LentAmount, pos.Amount); err != nil {
		return yield.Redemption{}, err
	}
	if v.OnHand, err = settlement.AddU64(v.OnHand, red.Principal); err != nil {
		return yield.Redemption{}, err
	}
	pos.Status = models.YieldPositionRedeemed
	pos.RedeemedPrincipal = red.Principal
	pos.RedeemedYield = red.Yield
	pos.RedeemedAt = &now
	if err := s.Repo.SaveYieldPositionTx(ctx, tx, pos); err != nil {
		return yield.Redemption{}, err
	}
	return red, nil
}

func (s *BattleService) collectFeeTx(ctx context.Context, tx *gorm.DB, battleID, fee uint64, reason string) error {
	if fee == 0 {
		return nil
	}
	treasury, err := s.treasuryTx(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := s.creditTx(ctx, tx, treasury, fee, models.LedgerKindFee, uint64Ptr(battleID), map[string]any{"reason": reason}); err != nil {
		return err
	}
	return s.bumpProtocolTx(ctx, tx, func(p *models.ProtocolConfig) error {
		total, err := settlement.AddU64(p.TotalFeesCollected, fee)
		p.TotalFeesCollected = total
		return err
	})
}
