package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"memewars/internal/battle"
	"memewars/internal/models"
	"memewars/internal/oracle"
	"memewars/internal/settlement"
)

type battleView struct {
	ID         uint64 `json:"id"`
	Authority  string `json:"authority"`
	TokenA     string `json:"token_a"`
	TokenB     string `json:"token_b"`
	PriceFeedA string `json:"price_feed_a"`
	PriceFeedB string `json:"price_feed_b"`

	InitialPriceA string  `json:"initial_price_a"`
	InitialPriceB string  `json:"initial_price_b"`
	FinalPriceA   *string `json:"final_price_a,omitempty"`
	FinalPriceB   *string `json:"final_price_b,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	TotalStakedA   uint64        `json:"total_staked_a"`
	TotalStakedB   uint64        `json:"total_staked_b"`
	// Team totals claims are priced against, set at settlement.
	SettledStakedA uint64        `json:"settled_staked_a,omitempty"`
	SettledStakedB uint64        `json:"settled_staked_b,omitempty"`
	Status         battle.Status `json:"status"`
	Winner         battle.Team   `json:"winner"`

	TotalYieldCollected  uint64 `json:"total_yield_collected"`
	WinnerYield          uint64 `json:"winner_yield"`
	ProtocolFeeCollected uint64 `json:"protocol_fee_collected"`

	VaultA      string      `json:"vault_a"`
	VaultB      string      `json:"vault_b"`
	SettledAt   *time.Time  `json:"settled_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
	Vaults      []vaultView `json:"vaults,omitempty"`
}

type vaultView struct {
	Ref            string      `json:"ref"`
	Team           battle.Team `json:"team"`
	TotalAmount    uint64      `json:"total_amount"`
	LentAmount     uint64      `json:"lent_amount"`
	OnHand         uint64      `json:"on_hand"`
	YieldCollected uint64      `json:"yield_collected"`
	ClaimedAmount  uint64      `json:"claimed_amount"`
}

type positionView struct {
	UserID       string      `json:"user_id"`
	BattleID     uint64      `json:"battle_id"`
	Team         battle.Team `json:"team"`
	AmountStaked uint64      `json:"amount_staked"`
	StakeTime    time.Time   `json:"stake_time"`
	Claimed      bool        `json:"claimed"`
	Withdrawn    bool        `json:"withdrawn"`
	RewardAmount uint64      `json:"reward_amount"`
	ClaimedAt    *time.Time  `json:"claimed_at,omitempty"`
	Receipts     *uint64     `json:"receipts,omitempty"`
}

type forwardView struct {
	Key         string     `json:"key"`
	Amount      uint64     `json:"amount"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	PositionRef string     `json:"position_ref,omitempty"`
	LastAttempt *time.Time `json:"last_attempt_at,omitempty"`
}

type outcomeView struct {
	Winner      battle.Team `json:"winner"`
	GrowthABps  int64       `json:"growth_a_bps"`
	GrowthBBps  int64       `json:"growth_b_bps"`
	TotalYield  uint64      `json:"total_yield"`
	ProtocolFee uint64      `json:"protocol_fee"`
	WinnerYield uint64      `json:"winner_yield"`
	YieldA      uint64      `json:"yield_a"`
	YieldB      uint64      `json:"yield_b"`
}

type ledgerView struct {
	ID           uint64    `json:"id"`
	BattleID     *uint64   `json:"battle_id,omitempty"`
	Kind         string    `json:"kind"`
	Direction    string    `json:"direction"`
	Amount       uint64    `json:"amount"`
	BalanceAfter uint64    `json:"balance_after"`
	Metadata     any       `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type protocolView struct {
	Authority          string `json:"authority"`
	Treasury           string `json:"treasury"`
	TotalBattles       uint64 `json:"total_battles"`
	TotalValueLocked   uint64 `json:"total_value_locked"`
	TotalFeesCollected uint64 `json:"total_fees_collected"`
	YieldBackend       any    `json:"yield_backend,omitempty"`
	ForwardBps         uint64 `json:"forward_bps"`
}

// priceString renders a fixed point price at the stored exponent.
func priceString(v int64) string {
	return decimal.New(v, oracle.TargetExponent).String()
}

func priceStringPtr(v *int64) *string {
	if v == nil {
		return nil
	}
	s := priceString(*v)
	return &s
}

func toBattleView(b models.Battle, vaults []models.Vault) battleView {
	out := battleView{
		ID:                   b.ID,
		Authority:            b.Authority,
		TokenA:               b.TokenA,
		TokenB:               b.TokenB,
		PriceFeedA:           b.PriceFeedA,
		PriceFeedB:           b.PriceFeedB,
		InitialPriceA:        priceString(b.InitialPriceA),
		InitialPriceB:        priceString(b.InitialPriceB),
		FinalPriceA:          priceStringPtr(b.FinalPriceA),
		FinalPriceB:          priceStringPtr(b.FinalPriceB),
		StartTime:            b.StartTime,
		EndTime:              b.EndTime,
		TotalStakedA:         b.TotalStakedA,
		TotalStakedB:         b.TotalStakedB,
		SettledStakedA:       b.SettledStakedA,
		SettledStakedB:       b.SettledStakedB,
		Status:               b.Status,
		Winner:               b.Winner,
		TotalYieldCollected:  b.TotalYieldCollected,
		WinnerYield:          b.WinnerYield,
		ProtocolFeeCollected: b.ProtocolFeeCollected,
		VaultA:               b.VaultA,
		VaultB:               b.VaultB,
		SettledAt:            b.SettledAt,
		CancelledAt:          b.CancelledAt,
	}
	for _, v := range vaults {
		out.Vaults = append(out.Vaults, toVaultView(v))
	}
	return out
}

func toVaultView(v models.Vault) vaultView {
	return vaultView{
		Ref:            v.Ref,
		Team:           v.Team,
		TotalAmount:    v.TotalAmount,
		LentAmount:     v.LentAmount,
		OnHand:         v.OnHand,
		YieldCollected: v.YieldCollected,
		ClaimedAmount:  v.ClaimedAmount,
	}
}

func toPositionView(p models.StakePosition) positionView {
	return positionView{
		UserID:       p.UserID,
		BattleID:     p.BattleID,
		Team:         p.Team,
		AmountStaked: p.AmountStaked,
		StakeTime:    p.StakeTime,
		Claimed:      p.Claimed,
		Withdrawn:    p.Withdrawn,
		RewardAmount: p.RewardAmount,
		ClaimedAt:    p.ClaimedAt,
	}
}

func toForwardView(f *models.YieldForward) *forwardView {
	if f == nil {
		return nil
	}
	return &forwardView{
		Key:         f.Key,
		Amount:      f.Amount,
		Status:      f.Status,
		Attempts:    f.Attempts,
		LastError:   f.LastError,
		PositionRef: f.PositionRef,
		LastAttempt: f.LastAttemptAt,
	}
}

func toOutcomeView(r settlement.Result) outcomeView {
	return outcomeView{
		Winner:      r.Winner,
		GrowthABps:  r.GrowthA,
		GrowthBBps:  r.GrowthB,
		TotalYield:  r.TotalYield,
		ProtocolFee: r.ProtocolFee,
		WinnerYield: r.WinnerYield,
		YieldA:      r.YieldA,
		YieldB:      r.YieldB,
	}
}

func toLedgerView(e models.LedgerEntry) ledgerView {
	out := ledgerView{
		ID:           e.ID,
		BattleID:     e.BattleID,
		Kind:         e.Kind,
		Direction:    e.Direction,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
	if len(e.Metadata) > 0 {
		out.Metadata = e.Metadata
	}
	return out
}

func toProtocolView(p models.ProtocolConfig) protocolView {
	out := protocolView{
		Authority:          p.Authority,
		Treasury:           p.Treasury,
		TotalBattles:       p.TotalBattles,
		TotalValueLocked:   p.TotalValueLocked,
		TotalFeesCollected: p.TotalFeesCollected,
		ForwardBps:         p.ForwardBps,
	}
	if len(p.YieldBackend) > 0 {
		out.YieldBackend = p.YieldBackend
	}
	return out
}
