package yield

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"memewars/internal/config"
)

const secondsPerYear = 365 * 24 * 60 * 60

// Accrual models a lending market paying a fixed APY, locked in at
// delegation. Marginfi accrues simple interest by the second; Kamino
// compounds daily.
type Accrual struct {
	kind     Kind
	apy      decimal.Decimal
	compound bool
}

func NewAccrual(kind Kind, cfg config.AccrualConfig, compound bool) (*Accrual, error) {
	raw := strings.TrimSpace(cfg.APY)
	if raw == "" {
		raw = "0"
	}
	apy, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s apy %q: %w", kind, cfg.APY, err)
	}
	if apy.IsNegative() {
		return nil, fmt.Errorf("%s apy must not be negative", kind)
	}
	return &Accrual{kind: kind, apy: apy, compound: compound}, nil
}

func (a *Accrual) Kind() Kind { return a.kind }

func (a *Accrual) Delegate(_ context.Context, req DelegateRequest) (Receipt, error) {
	if req.Amount == 0 {
		return Receipt{}, fmt.Errorf("%s delegate: zero amount", a.kind)
	}
	return Receipt{Ref: fmt.Sprintf("%s:%s", a.kind, req.Key), EntryRate: a.apy}, nil
}

func (a *Accrual) Redeem(_ context.Context, pos Position, now time.Time) (Redemption, error) {
	elapsed := now.Sub(pos.DelegatedAt)
	if elapsed <= 0 || pos.EntryRate.IsZero() {
		return Redemption{Principal: pos.Amount}, nil
	}
	principal := fromUint64(pos.Amount)
	var earned decimal.Decimal
	if a.compound {
		days := int64(elapsed / (24 * time.Hour))
		daily := decimal.NewFromInt(1).Add(pos.EntryRate.Div(decimal.NewFromInt(365)))
		earned = principal.Mul(daily.Pow(decimal.NewFromInt(days))).Sub(principal)
	} else {
		seconds := decimal.NewFromInt(int64(elapsed / time.Second))
		earned = principal.Mul(pos.EntryRate).Mul(seconds).Div(decimal.NewFromInt(secondsPerYear))
	}
	y, err := toUint64(earned)
	if err != nil {
		return Redemption{}, err
	}
	return Redemption{Principal: pos.Amount, Yield: y}, nil
}
