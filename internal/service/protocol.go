package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/metrics"
	"memewars/internal/models"
	"memewars/internal/repository"
	"memewars/internal/settlement"
)

type UpdateProtocolInput struct {
	Authority  *string
	Treasury   *string
	ForwardBps *uint64
}

type AccountView struct {
	Account models.Account
	Ledger  []models.LedgerEntry
}

// InitProtocol creates the singleton protocol record with caller as its
// authority. The treasury defaults to the caller.
func (s *BattleService) InitProtocol(ctx context.Context, caller, treasury string) (out *models.ProtocolConfig, err error) {
	started := time.Now()
	defer func() { metrics.Observe("init_protocol", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, battle.ErrUnauthorized
	}
	treasury = strings.TrimSpace(treasury)
	if treasury == "" {
		treasury = caller
	}
	backend, err := json.Marshal(s.YieldConfig)
	if err != nil {
		return nil, err
	}
	bps := s.Config.ForwardBps
	if bps > battle.BpsDivisor {
		bps = battle.BpsDivisor
	}
	item := &models.ProtocolConfig{
		ID:           models.ProtocolConfigID,
		Authority:    caller,
		Treasury:     treasury,
		YieldBackend: backend,
		ForwardBps:   bps,
	}
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		total, err := s.Repo.MaxBattleIDTx(ctx, tx)
		if err != nil {
			return err
		}
		item.TotalBattles = total
		if err := s.Repo.CreateProtocolConfigTx(ctx, tx, item); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return battle.ErrProtocolExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("protocol initialized", zap.String("authority", caller), zap.String("treasury", treasury))
	return item, nil
}

func (s *BattleService) GetProtocol(ctx context.Context) (*models.ProtocolConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, err := s.Repo.GetProtocolConfigTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, battle.ErrProtocolNotFound
	}
	return p, nil
}

func (s *BattleService) UpdateProtocol(ctx context.Context, caller string, in UpdateProtocolInput) (out *models.ProtocolConfig, err error) {
	started := time.Now()
	defer func() { metrics.Observe("update_protocol", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		p, err := s.requireAuthorityTx(ctx, tx, caller)
		if err != nil {
			return err
		}
		if in.Authority != nil {
			v := strings.TrimSpace(*in.Authority)
			if v == "" {
				return fmt.Errorf("%w: authority is empty", battle.ErrUnauthorized)
			}
			p.Authority = v
		}
		if in.Treasury != nil {
			v := strings.TrimSpace(*in.Treasury)
			if v == "" {
				return fmt.Errorf("%w: treasury is empty", battle.ErrInvalidAsset)
			}
			p.Treasury = v
		}
		if in.ForwardBps != nil {
			if *in.ForwardBps > battle.BpsDivisor {
				return fmt.Errorf("%w: forward bps above %d", battle.ErrInvalidAmount, battle.BpsDivisor)
			}
			p.ForwardBps = *in.ForwardBps
		}
		if err := s.Repo.SaveProtocolConfigTx(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// requireAuthorityTx loads the protocol record and checks caller against it.
func (s *BattleService) requireAuthorityTx(ctx context.Context, tx *gorm.DB, caller string) (*models.ProtocolConfig, error) {
	p, err := s.Repo.GetProtocolConfigTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, battle.ErrProtocolNotFound
	}
	if strings.TrimSpace(caller) == "" || p.Authority != caller {
		return nil, battle.ErrUnauthorized
	}
	return p, nil
}

// CreditAccount funds a user account. Only the protocol authority may mint
// balance into the system.
func (s *BattleService) CreditAccount(ctx context.Context, caller, userID string, amount uint64) (out *models.Account, err error) {
	started := time.Now()
	defer func() { metrics.Observe("credit", started, err) }()
	if err := s.ready(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", battle.ErrInvalidAsset)
	}
	if amount == 0 {
		return nil, battle.ErrInvalidAmount
	}
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.requireAuthorityTx(ctx, tx, caller); err != nil {
			return err
		}
		acct, err := s.creditTx(ctx, tx, userID, amount, models.LedgerKindCredit, nil, map[string]any{"by": caller})
		out = acct
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BattleService) GetAccount(ctx context.Context, userID string, limit int) (*AccountView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	acct, err := s.Repo.GetAccountTx(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &models.Account{UserID: userID}
	}
	entries, err := s.Repo.ListLedgerEntries(ctx, repository.ListLedgerEntriesParams{UserID: &userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &AccountView{Account: *acct, Ledger: entries}, nil
}

func (s *BattleService) creditTx(ctx context.Context, tx *gorm.DB, userID string, amount uint64, kind string, battleID *uint64, meta map[string]any) (*models.Account, error) {
	acct, err := s.Repo.GetAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &models.Account{UserID: userID}
	}
	next, err := settlement.AddU64(acct.Balance, amount)
	if err != nil {
		return nil, err
	}
	acct.Balance = next
	if err := s.Repo.SaveAccountTx(ctx, tx, acct); err != nil {
		return nil, err
	}
	if err := s.journalTx(ctx, tx, userID, kind, models.LedgerDirectionIn, amount, next, battleID, meta); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *BattleService) debitTx(ctx context.Context, tx *gorm.DB, userID string, amount uint64, kind string, battleID *uint64, meta map[string]any) (*models.Account, error) {
	acct, err := s.Repo.GetAccountTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	var balance uint64
	if acct != nil {
		balance = acct.Balance
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d, need %d", battle.ErrInsufficientFunds, balance, amount)
	}
	acct.Balance = balance - amount
	if err := s.Repo.SaveAccountTx(ctx, tx, acct); err != nil {
		return nil, err
	}
	if err := s.journalTx(ctx, tx, userID, kind, models.LedgerDirectionOut, amount, acct.Balance, battleID, meta); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *BattleService) journalTx(ctx context.Context, tx *gorm.DB, userID, kind, direction string, amount, balanceAfter uint64, battleID *uint64, meta map[string]any) error {
	return s.Repo.InsertLedgerEntryTx(ctx, tx, &models.LedgerEntry{
		UserID:       userID,
		BattleID:     battleID,
		Kind:         kind,
		Direction:    direction,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Metadata:     jsonMeta(meta),
	})
}

// Authorize fails unless caller is the protocol authority.
func (s *BattleService) Authorize(ctx context.Context, caller string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.requireAuthorityTx(ctx, nil, caller)
	return err
}
