package battle

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinDuration = 24 * time.Hour
	MaxDuration = 30 * 24 * time.Hour

	BpsDivisor                uint64 = 10_000
	ProtocolFeeBps            uint64 = 500
	EarlyWithdrawalPenaltyBps uint64 = 100
)

// Team is the side a staker commits to. TeamNone doubles as the settled tie.
type Team uint8

const (
	TeamNone Team = iota
	TeamA
	TeamB
)

func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

func (t Team) Other() Team {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	default:
		return TeamNone
	}
}

func (t Team) String() string {
	switch t {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	default:
		return "NONE"
	}
}

func (t Team) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Team) UnmarshalText(b []byte) error {
	v, err := ParseTeam(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTeam accepts "A", "B", "TEAM_A", "TEAM_B", "1", "2" and "NONE".
func ParseTeam(s string) (Team, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "TEAM_A", "1":
		return TeamA, nil
	case "B", "TEAM_B", "2":
		return TeamB, nil
	case "NONE", "", "0":
		return TeamNone, nil
	}
	return TeamNone, fmt.Errorf("%w: %q", ErrInvalidTeam, s)
}

// Status of a battle. Transitions only go Active -> Settled or Active -> Cancelled.
type Status uint8

const (
	StatusActive Status = iota
	StatusSettled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusSettled:
		return "SETTLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return StatusActive, nil
	case "SETTLED":
		return StatusSettled, nil
	case "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	}
	return StatusActive, fmt.Errorf("unknown battle status %q", s)
}

// VaultRef is the escrow reference of one team of one battle.
func VaultRef(battleID uint64, team Team) string {
	return fmt.Sprintf("%d/%s", battleID, team)
}

// ReceiptMintFor names the receipt mint of one team of one battle.
func ReceiptMintFor(battleID uint64, team Team) string {
	return fmt.Sprintf("receipt/%d/%s", battleID, team)
}

func ValidateDuration(d time.Duration) error {
	if d < MinDuration || d > MaxDuration {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidDuration, d, MinDuration, MaxDuration)
	}
	return nil
}
