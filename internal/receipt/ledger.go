package receipt

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"memewars/internal/battle"
	"memewars/internal/models"
	"memewars/internal/repository"
)

// Issuer mints and burns receipt units inside the caller's transaction.
type Issuer interface {
	Mint(ctx context.Context, tx *gorm.DB, mint, owner string, amount uint64) error
	Burn(ctx context.Context, tx *gorm.DB, mint, owner string, amount uint64) error
	Balance(ctx context.Context, tx *gorm.DB, mint, owner string) (uint64, error)
}

// Ledger keeps receipt balances in the database.
type Ledger struct {
	Repo repository.ReceiptRepository
}

func NewLedger(repo repository.ReceiptRepository) *Ledger {
	return &Ledger{Repo: repo}
}

func (l *Ledger) Balance(ctx context.Context, tx *gorm.DB, mint, owner string) (uint64, error) {
	item, err := l.Repo.GetReceiptBalanceTx(ctx, tx, mint, owner)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, nil
	}
	return item.Amount, nil
}

func (l *Ledger) Mint(ctx context.Context, tx *gorm.DB, mint, owner string, amount uint64) error {
	current, err := l.Balance(ctx, tx, mint, owner)
	if err != nil {
		return err
	}
	next := current + amount
	if next < current {
		return battle.ErrOverflow
	}
	return l.Repo.SaveReceiptBalanceTx(ctx, tx, &models.ReceiptBalance{Mint: mint, Owner: owner, Amount: next})
}

func (l *Ledger) Burn(ctx context.Context, tx *gorm.DB, mint, owner string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	current, err := l.Balance(ctx, tx, mint, owner)
	if err != nil {
		return err
	}
	if amount > current {
		return fmt.Errorf("%w: burn %d of %s, holding %d", battle.ErrInsufficientFunds, amount, mint, current)
	}
	return l.Repo.SaveReceiptBalanceTx(ctx, tx, &models.ReceiptBalance{Mint: mint, Owner: owner, Amount: current - amount})
}
