package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/metrics"
	"memewars/internal/models"
	"memewars/internal/settlement"
	"memewars/internal/yield"
)

type DepositInput struct {
	UserID   string
	BattleID uint64
	Team     battle.Team
	Amount   uint64
	// VaultRef is optional; when set it must name the battle's vault for Team.
	VaultRef string
}

type DepositResult struct {
	Battle   models.Battle
	Vault    models.Vault
	Position models.StakePosition
	Forward  *models.YieldForward
}

// Deposit moves amount from the user's account into the team vault and
// records the stake. Yield forwarding runs after the commit; a failed
// delegation leaves the deposit intact and the forward pending.
func (s *BattleService) Deposit(ctx context.Context, in DepositInput) (out *DepositResult, err error) {
	started := time.Now()
	defer func() { metrics.Observe("deposit", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, battle.ErrUnauthorized
	}
	if in.Amount == 0 {
		return nil, battle.ErrInvalidAmount
	}
	now := s.now()
	bps, err := s.forwardBps(ctx)
	if err != nil {
		return nil, err
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.lockBattleTx(ctx, tx, in.BattleID)
		if err != nil {
			return err
		}
		if !b.IsActive() {
			return battle.ErrBattleNotActive
		}
		if !in.Team.Valid() {
			return battle.ErrInvalidTeam
		}
		if !b.InWindow(now) {
			return battle.ErrBattleTimeExpired
		}
		if in.VaultRef != "" && in.VaultRef != b.VaultRef(in.Team) {
			return fmt.Errorf("%w: %s", battle.ErrInvalidVault, in.VaultRef)
		}

		pos, err := s.Repo.GetStakePositionTx(ctx, tx, in.UserID, b.ID)
		if err != nil {
			return err
		}
		if pos != nil {
			if pos.Claimed {
				return battle.ErrAlreadyClaimed
			}
			if pos.Team != in.Team {
				return battle.ErrCannotChangeTeam
			}
		}

		if _, err := s.debitTx(ctx, tx, in.UserID, in.Amount, models.LedgerKindDeposit, uint64Ptr(b.ID), map[string]any{"team": in.Team.String()}); err != nil {
			return err
		}

		vault, err := s.vaultTx(ctx, tx, b, in.Team)
		if err != nil {
			return err
		}
		if vault.TotalAmount, err = settlement.AddU64(vault.TotalAmount, in.Amount); err != nil {
			return err
		}
		if vault.OnHand, err = settlement.AddU64(vault.OnHand, in.Amount); err != nil {
			return err
		}

		if pos == nil {
			pos = &models.StakePosition{
				UserID:    in.UserID,
				BattleID:  b.ID,
				Team:      in.Team,
				StakeTime: now,
			}
		}
		if pos.AmountStaked, err = settlement.AddU64(pos.AmountStaked, in.Amount); err != nil {
			return err
		}

		total, err := settlement.AddU64(b.TotalStaked(in.Team), in.Amount)
		if err != nil {
			return err
		}
		b.SetTotalStaked(in.Team, total)

		if err := s.Repo.SaveVaultTx(ctx, tx, vault); err != nil {
			return err
		}
		if err := s.Repo.SaveStakePositionTx(ctx, tx, pos); err != nil {
			return err
		}
		if err := s.Repo.SaveBattleTx(ctx, tx, b); err != nil {
			return err
		}
		if err := s.bumpProtocolTx(ctx, tx, func(p *models.ProtocolConfig) error {
			tvl, err := settlement.AddU64(p.TotalValueLocked, in.Amount)
			p.TotalValueLocked = tvl
			return err
		}); err != nil {
			return err
		}
		if s.Receipts != nil {
			if err := s.Receipts.Mint(ctx, tx, battle.ReceiptMintFor(b.ID, in.Team), in.UserID, in.Amount); err != nil {
				return err
			}
		}

		out = &DepositResult{Battle: *b, Vault: *vault, Position: *pos}
		if bps == 0 {
			return nil
		}
		amount, err := settlement.MulDiv(in.Amount, bps, battle.BpsDivisor)
		if err != nil || amount == 0 {
			return err
		}
		fwd := &models.YieldForward{
			Key:      uuid.NewString(),
			BattleID: b.ID,
			Team:     in.Team,
			Amount:   amount,
			Status:   models.YieldForwardPending,
		}
		if err := s.Repo.InsertYieldForwardTx(ctx, tx, fwd); err != nil {
			return err
		}
		out.Forward = fwd
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger().Info("deposit accepted",
		zap.Uint64("battle_id", in.BattleID),
		zap.String("user_id", in.UserID),
		zap.String("team", in.Team.String()),
		zap.Uint64("amount", in.Amount),
	)

	if out.Forward != nil && s.Flags.IsEnabled(ctx, FeatureYieldForwarding, true) {
		fwd, ferr := s.ForwardYield(ctx, *out.Forward)
		if ferr != nil {
			s.logger().Warn("yield forward deferred",
				zap.Uint64("battle_id", in.BattleID),
				zap.Uint64("forward_id", out.Forward.ID),
				zap.Error(ferr),
			)
		}
		if fwd != nil {
			out.Forward = fwd
		}
	}
	return out, nil
}

// forwardBps is the share of each deposit sent to the yield backend. The
// protocol record wins over static config once it exists.
func (s *BattleService) forwardBps(ctx context.Context) (uint64, error) {
	if s.backend().Kind() == yield.KindNone {
		return 0, nil
	}
	bps := s.Config.ForwardBps
	p, err := s.Repo.GetProtocolConfigTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if p != nil {
		bps = p.ForwardBps
	}
	if bps > battle.BpsDivisor {
		bps = battle.BpsDivisor
	}
	return bps, nil
}

// ForwardYield delegates one pending forward. On backend failure the marker
// stays pending with the attempt recorded, and the error wraps
// ErrYieldUnavailable.
func (s *BattleService) ForwardYield(ctx context.Context, fwd models.YieldForward) (out *models.YieldForward, err error) {
	started := time.Now()
	defer func() { metrics.Observe("forward", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	backend := s.backend()
	var delegateErr error
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		b, err := s.Repo.GetBattleForUpdateTx(ctx, tx, fwd.BattleID)
		if err != nil {
			return err
		}
		cur, err := s.Repo.GetYieldForwardTx(ctx, tx, fwd.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status != models.YieldForwardPending {
			out = cur
			return nil
		}
		out = cur
		now := s.now()
		if !b.IsActive() {
			cur.Status = models.YieldForwardSkipped
			cur.LastError = "battle no longer active"
			return s.Repo.SaveYieldForwardTx(ctx, tx, cur)
		}
		vault, err := s.vaultTx(ctx, tx, b, cur.Team)
		if err != nil {
			return err
		}
		amount := min(cur.Amount, vault.OnHand, vault.Undelegated())
		if amount == 0 {
			cur.Status = models.YieldForwardSkipped
			cur.LastError = "nothing left to delegate"
			return s.Repo.SaveYieldForwardTx(ctx, tx, cur)
		}

		rc, derr := backend.Delegate(ctx, yield.DelegateRequest{
			Key:      cur.Key,
			BattleID: b.ID,
			Team:     cur.Team,
			VaultRef: vault.Ref,
			Amount:   amount,
			At:       now,
		})
		cur.Attempts++
		cur.LastAttemptAt = &now
		if derr != nil {
			cur.LastError = derr.Error()
			if errors.Is(derr, yield.ErrDisabled) {
				cur.Status = models.YieldForwardSkipped
			} else {
				delegateErr = derr
			}
			return s.Repo.SaveYieldForwardTx(ctx, tx, cur)
		}

		if err := s.Repo.InsertYieldPositionTx(ctx, tx, &models.YieldPosition{
			Ref:         rc.Ref,
			BattleID:    b.ID,
			Team:        cur.Team,
			Backend:     string(backend.Kind()),
			Amount:      amount,
			EntryRate:   rc.EntryRate,
			Status:      models.YieldPositionOpen,
			DelegatedAt: now,
		}); err != nil {
			return err
		}
		vault.OnHand -= amount
		if vault.LentAmount, err = settlement.AddU64(vault.LentAmount, amount); err != nil {
			return err
		}
		if err := s.Repo.SaveVaultTx(ctx, tx, vault); err != nil {
			return err
		}
		cur.Status = models.YieldForwardDone
		cur.PositionRef = rc.Ref
		cur.LastError = ""
		return s.Repo.SaveYieldForwardTx(ctx, tx, cur)
	})
	if err != nil {
		return nil, err
	}
	if delegateErr != nil {
		return out, fmt.Errorf("%w: %v", battle.ErrYieldUnavailable, delegateErr)
	}
	if out != nil && out.Status == models.YieldForwardDone {
		s.logger().Info("yield forwarded",
			zap.Uint64("battle_id", out.BattleID),
			zap.String("position_ref", out.PositionRef),
			zap.Int("attempts", out.Attempts),
		)
	}
	return out, nil
}

// RetryYieldForwards replays pending forwards, oldest first, and returns how
// many were delegated.
func (s *BattleService) RetryYieldForwards(ctx context.Context, limit int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = s.Config.RetryBatch
	}
	pending, err := s.Repo.ListPendingYieldForwards(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	remaining := len(pending)
	for _, fwd := range pending {
		if ctx.Err() != nil {
			break
		}
		got, err := s.ForwardYield(ctx, fwd)
		if err != nil {
			s.logger().Warn("yield forward retry failed",
				zap.Uint64("forward_id", fwd.ID),
				zap.Uint64("battle_id", fwd.BattleID),
				zap.Error(err),
			)
			continue
		}
		if got == nil || got.Status != models.YieldForwardPending {
			remaining--
		}
		if got != nil && got.Status == models.YieldForwardDone {
			done++
		}
	}
	metrics.SetPendingForwards(remaining)
	return done, ctx.Err()
}
