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
)

type PayoutResult struct {
	Position models.StakePosition
	Amount   uint64
	Penalty  uint64
}

// Claim pays a settled position its principal plus any yield share and
// closes it.
func (s *BattleService) Claim(ctx context.Context, userID string, battleID uint64) (out *PayoutResult, err error) {
	started := time.Now()
	defer func() { metrics.Observe("claim", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, battle.ErrUnauthorized
	}
	now := s.now()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.lockBattleTx(ctx, tx, battleID)
		if err != nil {
			return err
		}
		pos, err := s.Repo.GetStakePositionTx(ctx, tx, userID, battleID)
		if err != nil {
			return err
		}
		if pos == nil {
			return battle.ErrPositionNotFound
		}
		if b.Status != battle.StatusSettled {
			return battle.ErrBattleNotSettled
		}
		if pos.Claimed {
			return battle.ErrAlreadyClaimed
		}
		vault, err := s.Repo.GetVaultTx(ctx, tx, battleID, pos.Team)
		if err != nil {
			return err
		}
		if vault == nil || vault.Team != pos.Team || vault.Ref != b.VaultRef(pos.Team) {
			return battle.ErrInvalidVault
		}
		amount, err := settlement.ClaimAmount(settlement.Pool{
			Winner:       b.Winner,
			WinnerYield:  b.WinnerYield,
			TotalStakedA: b.SettledStakedA,
			TotalStakedB: b.SettledStakedB,
			VaultYield:   vault.YieldCollected,
		}, pos.Team, pos.AmountStaked)
		if err != nil {
			return err
		}
		if vault.OnHand < amount {
			return fmt.Errorf("%w: vault %s holds %d, owes %d", battle.ErrInsufficientFunds, vault.Ref, vault.OnHand, amount)
		}
		vault.OnHand -= amount
		if vault.ClaimedAmount, err = settlement.AddU64(vault.ClaimedAmount, amount); err != nil {
			return err
		}
		pos.Claimed = true
		pos.RewardAmount = settlement.SaturatingSub(amount, pos.AmountStaked)
		pos.ClaimedAt = &now

		if err := s.closePositionTx(ctx, tx, b, vault, pos); err != nil {
			return err
		}
		if _, err := s.creditTx(ctx, tx, userID, amount, models.LedgerKindClaim, uint64Ptr(battleID), map[string]any{
			"principal": pos.AmountStaked,
			"reward":    pos.RewardAmount,
		}); err != nil {
			return err
		}
		out = &PayoutResult{Position: *pos, Amount: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.AddPayout(models.LedgerKindClaim, out.Amount)
	s.logger().Info("stake claimed",
		zap.Uint64("battle_id", battleID),
		zap.String("user_id", userID),
		zap.Uint64("amount", out.Amount),
		zap.Uint64("reward", out.Position.RewardAmount),
	)
	return out, nil
}

// Withdraw returns principal and closes the position. While the battle is
// active the early withdrawal penalty is kept in the vault; after settlement
// or cancellation principal is returned in full with no yield. Delegated
// principal is recalled when custody cannot cover the payout.
func (s *BattleService) Withdraw(ctx context.Context, userID string, battleID uint64) (out *PayoutResult, err error) {
	started := time.Now()
	defer func() { metrics.Observe("withdraw", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, battle.ErrUnauthorized
	}
	now := s.now()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.lockBattleTx(ctx, tx, battleID)
		if err != nil {
			return err
		}
		pos, err := s.Repo.GetStakePositionTx(ctx, tx, userID, battleID)
		if err != nil {
			return err
		}
		if pos == nil {
			return battle.ErrPositionNotFound
		}
		if pos.Claimed {
			return battle.ErrAlreadyClaimed
		}
		principal := pos.AmountStaked
		payout, penalty := principal, uint64(0)
		if b.IsActive() {
			if payout, penalty, err = settlement.EarlyWithdrawal(principal); err != nil {
				return err
			}
		}
		vault, err := s.Repo.GetVaultTx(ctx, tx, battleID, pos.Team)
		if err != nil {
			return err
		}
		if vault == nil || vault.Ref != b.VaultRef(pos.Team) {
			return battle.ErrInvalidVault
		}
		remaining, err := settlement.SubU64(vault.TotalAmount, principal)
		if err != nil {
			return err
		}
		if vault.OnHand < payout || vault.LentAmount > remaining {
			if err := s.recallTx(ctx, tx, b, vault, payout, remaining, now); err != nil {
				return err
			}
		}
		if vault.OnHand < payout {
			return fmt.Errorf("%w: vault %s holds %d, owes %d", battle.ErrInsufficientFunds, vault.Ref, vault.OnHand, payout)
		}
		vault.OnHand -= payout
		vault.TotalAmount = remaining
		staked, err := settlement.SubU64(b.TotalStaked(pos.Team), principal)
		if err != nil {
			return err
		}
		b.SetTotalStaked(pos.Team, staked)

		pos.Claimed = true
		pos.Withdrawn = true
		pos.RewardAmount = 0
		pos.ClaimedAt = &now

		if err := s.closePositionTx(ctx, tx, b, vault, pos); err != nil {
			return err
		}
		acct, err := s.creditTx(ctx, tx, userID, payout, models.LedgerKindWithdraw, uint64Ptr(battleID), map[string]any{
			"principal": principal,
			"status":    b.Status.String(),
		})
		if err != nil {
			return err
		}
		if penalty > 0 {
			// Informational: the penalty never left the vault.
			if err := s.journalTx(ctx, tx, userID, models.LedgerKindPenalty, models.LedgerDirectionOut, penalty, acct.Balance, uint64Ptr(battleID), nil); err != nil {
				return err
			}
		}
		out = &PayoutResult{Position: *pos, Amount: payout, Penalty: penalty}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.AddPayout(models.LedgerKindWithdraw, out.Amount)
	s.logger().Info("stake withdrawn",
		zap.Uint64("battle_id", battleID),
		zap.String("user_id", userID),
		zap.Uint64("amount", out.Amount),
		zap.Uint64("penalty", out.Penalty),
	)
	return out, nil
}

// recallTx redeems the team's open yield positions, oldest first, until
// custody covers payout and no more than remaining principal stays lent.
// Recalled yield joins the battle's settlement pool.
func (s *BattleService) recallTx(ctx context.Context, tx *gorm.DB, b *models.Battle, v *models.Vault, payout, remaining uint64, now time.Time) error {
	team := v.Team
	positions, err := s.Repo.ListOpenYieldPositionsTx(ctx, tx, b.ID, &team)
	if err != nil {
		return err
	}
	for i := range positions {
		if v.OnHand >= payout && v.LentAmount <= remaining {
			break
		}
		red, err := s.redeemTx(ctx, tx, &positions[i], v, now)
		if err != nil {
			return err
		}
		if b.EarlyYield, err = settlement.AddU64(b.EarlyYield, red.Yield); err != nil {
			return err
		}
	}
	return nil
}

// closePositionTx persists a paid out position with its vault and battle,
// burns the receipt units, and releases the principal from TVL.
func (s *BattleService) closePositionTx(ctx context.Context, tx *gorm.DB, b *models.Battle, v *models.Vault, pos *models.StakePosition) error {
	if err := s.Repo.SaveVaultTx(ctx, tx, v); err != nil {
		return err
	}
	if err := s.Repo.SaveStakePositionTx(ctx, tx, pos); err != nil {
		return err
	}
	if err := s.Repo.SaveBattleTx(ctx, tx, b); err != nil {
		return err
	}
	if s.Receipts != nil {
		mint := battle.ReceiptMintFor(b.ID, pos.Team)
		held, err := s.Receipts.Balance(ctx, tx, mint, pos.UserID)
		if err != nil {
			return err
		}
		if err := s.Receipts.Burn(ctx, tx, mint, pos.UserID, held); err != nil {
			return err
		}
	}
	return s.bumpProtocolTx(ctx, tx, func(p *models.ProtocolConfig) error {
		p.TotalValueLocked = settlement.SaturatingSub(p.TotalValueLocked, pos.AmountStaked)
		return nil
	})
}
