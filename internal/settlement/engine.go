package settlement

import (
	"memewars/internal/battle"
)

// GrowthBps is the relative change from initial to final in basis points.
// A zero initial price yields zero growth.
func GrowthBps(initial, final int64) (int64, error) {
	if initial == 0 {
		return 0, nil
	}
	diff, err := subI64(final, initial)
	if err != nil {
		return 0, err
	}
	scaled, err := mulI64(diff, int64(battle.BpsDivisor))
	if err != nil {
		return 0, err
	}
	return divI64(scaled, initial)
}

func DetermineWinner(growthA, growthB int64) battle.Team {
	switch {
	case growthA > growthB:
		return battle.TeamA
	case growthB > growthA:
		return battle.TeamB
	default:
		return battle.TeamNone
	}
}

// ProtocolFee returns the protocol cut of yield and what remains for stakers.
func ProtocolFee(yield uint64) (fee, winnerYield uint64, err error) {
	fee, err = MulDiv(yield, battle.ProtocolFeeBps, battle.BpsDivisor)
	if err != nil {
		return 0, 0, err
	}
	return fee, SaturatingSub(yield, fee), nil
}

// SplitYield distributes winnerYield between the two vaults. A decisive
// outcome gives everything to the winner; a tie splits pro rata to stake with
// the remainder going to B so the halves always sum to winnerYield.
func SplitYield(winner battle.Team, winnerYield, totalA, totalB uint64) (yieldA, yieldB uint64, err error) {
	switch winner {
	case battle.TeamA:
		return winnerYield, 0, nil
	case battle.TeamB:
		return 0, winnerYield, nil
	}
	if totalA == 0 && totalB == 0 {
		return 0, winnerYield, nil
	}
	yieldA, err = mulDivSum(winnerYield, totalA, totalA, totalB)
	if err != nil {
		return 0, 0, err
	}
	return yieldA, winnerYield - yieldA, nil
}

type Input struct {
	InitialPriceA int64
	InitialPriceB int64
	FinalPriceA   int64
	FinalPriceB   int64
	TotalStakedA  uint64
	TotalStakedB  uint64
	Yield         uint64
}

type Result struct {
	GrowthA     int64
	GrowthB     int64
	Winner      battle.Team
	TotalYield  uint64
	ProtocolFee uint64
	WinnerYield uint64
	YieldA      uint64
	YieldB      uint64
}

// YieldFor returns the share credited to one team's vault.
func (r Result) YieldFor(team battle.Team) uint64 {
	switch team {
	case battle.TeamA:
		return r.YieldA
	case battle.TeamB:
		return r.YieldB
	default:
		return 0
	}
}

// Compute resolves a battle. It has no side effects.
func Compute(in Input) (Result, error) {
	growthA, err := GrowthBps(in.InitialPriceA, in.FinalPriceA)
	if err != nil {
		return Result{}, err
	}
	growthB, err := GrowthBps(in.InitialPriceB, in.FinalPriceB)
	if err != nil {
		return Result{}, err
	}
	winner := DetermineWinner(growthA, growthB)

	fee, winnerYield, err := ProtocolFee(in.Yield)
	if err != nil {
		return Result{}, err
	}
	yieldA, yieldB, err := SplitYield(winner, winnerYield, in.TotalStakedA, in.TotalStakedB)
	if err != nil {
		return Result{}, err
	}
	return Result{
		GrowthA:     growthA,
		GrowthB:     growthB,
		Winner:      winner,
		TotalYield:  in.Yield,
		ProtocolFee: fee,
		WinnerYield: winnerYield,
		YieldA:      yieldA,
		YieldB:      yieldB,
	}, nil
}
