package yield

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"memewars/internal/battle"
	"memewars/internal/config"
)

type Kind string

const (
	KindNone     Kind = "none"
	KindMarinade Kind = "marinade"
	KindMarginfi Kind = "marginfi"
	KindKamino   Kind = "kamino"
)

// ErrDisabled is returned by Delegate when no backend is configured.
var ErrDisabled = errors.New("yield backend disabled")

type DelegateRequest struct {
	// Key is stable across retries of the same forward.
	Key      string
	BattleID uint64
	Team     battle.Team
	VaultRef string
	Amount   uint64
	At       time.Time
}

type Receipt struct {
	Ref       string
	EntryRate decimal.Decimal
}

type Position struct {
	Ref         string
	Amount      uint64
	EntryRate   decimal.Decimal
	DelegatedAt time.Time
}

type Redemption struct {
	Principal uint64
	Yield     uint64
}

// Backend generates yield on delegated principal.
type Backend interface {
	Kind() Kind
	Delegate(ctx context.Context, req DelegateRequest) (Receipt, error)
	Redeem(ctx context.Context, pos Position, now time.Time) (Redemption, error)
}

// New selects the backend named by cfg.Kind.
func New(cfg config.YieldConfig, httpClient *http.Client) (Backend, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(cfg.Kind))) {
	case "", KindNone:
		return None{}, nil
	case KindMarinade:
		return NewMarinade(cfg.Marinade, httpClient), nil
	case KindMarginfi:
		return NewAccrual(KindMarginfi, cfg.Marginfi, false)
	case KindKamino:
		return NewAccrual(KindKamino, cfg.Kamino, true)
	default:
		return nil, fmt.Errorf("unknown yield backend %q", cfg.Kind)
	}
}

// None keeps everything in custody and never produces yield.
type None struct{}

func (None) Kind() Kind { return KindNone }

func (None) Delegate(context.Context, DelegateRequest) (Receipt, error) {
	return Receipt{}, ErrDisabled
}

func (None) Redeem(_ context.Context, pos Position, _ time.Time) (Redemption, error) {
	return Redemption{Principal: pos.Amount}, nil
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// toUint64 floors d and fails when it is negative or wider than 64 bits.
func toUint64(d decimal.Decimal) (uint64, error) {
	b := d.Floor().BigInt()
	if b.Sign() < 0 || !b.IsUint64() {
		return 0, battle.ErrOverflow
	}
	return b.Uint64(), nil
}
