package settlement

import (
	"memewars/internal/battle"
)

// Pool is the settled state a claim is priced against. The team totals are
// the ones frozen at settlement, not the live ones.
type Pool struct {
	Winner       battle.Team
	WinnerYield  uint64
	TotalStakedA uint64
	TotalStakedB uint64
	// VaultYield is the yield credited to the claimant's vault.
	VaultYield uint64
}

func (p Pool) totalStaked(team battle.Team) uint64 {
	if team == battle.TeamA {
		return p.TotalStakedA
	}
	return p.TotalStakedB
}

// ClaimAmount is what a settled position pays out: principal plus its share
// of yield when on the winning side, principal plus a pro rata share of the
// winner yield on a tie, principal alone otherwise.
func ClaimAmount(p Pool, team battle.Team, principal uint64) (uint64, error) {
	if !team.Valid() {
		return 0, battle.ErrInvalidTeam
	}
	var share uint64
	var err error
	switch p.Winner {
	case battle.TeamNone:
		if p.TotalStakedA == 0 && p.TotalStakedB == 0 {
			return principal, nil
		}
		share, err = mulDivSum(p.WinnerYield, principal, p.TotalStakedA, p.TotalStakedB)
	case team:
		total := p.totalStaked(team)
		if total == 0 {
			return principal, nil
		}
		share, err = MulDiv(p.VaultYield, principal, total)
	default:
		return principal, nil
	}
	if err != nil {
		return 0, err
	}
	return AddU64(principal, share)
}

// EarlyWithdrawal returns the payout and retained penalty for leaving an
// active battle.
func EarlyWithdrawal(principal uint64) (payout, penalty uint64, err error) {
	penalty, err = MulDiv(principal, battle.EarlyWithdrawalPenaltyBps, battle.BpsDivisor)
	if err != nil {
		return 0, 0, err
	}
	return SaturatingSub(principal, penalty), penalty, nil
}
