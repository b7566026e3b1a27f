package battle

import "errors"

type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindArithmetic    Kind = "arithmetic"
	KindOracle        Kind = "oracle"
	KindAuthorization Kind = "authorization"
	KindFunds         Kind = "funds"
	KindNotFound      Kind = "not_found"
	KindExternal      Kind = "external"
	KindInternal      Kind = "internal"
)

// Error is a named failure. Sentinels are compared with errors.Is, so callers
// wrap them with fmt.Errorf("...: %w", ErrX) to add context.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrInvalidDuration = newError("InvalidDuration", KindValidation, "battle duration out of range")
	ErrInvalidTeam     = newError("InvalidTeam", KindValidation, "team must be A or B")
	ErrInvalidVault    = newError("InvalidVault", KindValidation, "vault does not belong to this battle and team")
	ErrInvalidAmount   = newError("InvalidAmount", KindValidation, "amount must be positive")
	ErrInvalidAsset    = newError("InvalidAsset", KindValidation, "asset and price feed are required")
	ErrBattleExists    = newError("BattleExists", KindValidation, "battle id already in use")

	ErrBattleNotActive   = newError("BattleNotActive", KindState, "battle is not active")
	ErrBattleNotEnded    = newError("BattleNotEnded", KindState, "battle has not ended yet")
	ErrBattleNotSettled  = newError("BattleNotSettled", KindState, "battle is not settled")
	ErrBattleTimeExpired = newError("BattleTimeExpired", KindState, "battle staking window is closed")
	ErrAlreadyClaimed    = newError("AlreadyClaimed", KindState, "position already paid out")
	ErrCannotChangeTeam  = newError("CannotChangeTeam", KindState, "position is committed to the other team")
	ErrProtocolExists    = newError("ProtocolExists", KindState, "protocol already initialized")

	ErrOverflow = newError("Overflow", KindArithmetic, "arithmetic overflow")

	ErrStalePriceFeed     = newError("StalePriceFeed", KindOracle, "price observation is too old")
	ErrLowPriceConfidence = newError("LowPriceConfidence", KindOracle, "price confidence interval too wide")
	ErrInvalidPriceFeed   = newError("InvalidPriceFeed", KindOracle, "price feed payload is invalid")

	ErrUnauthorized = newError("Unauthorized", KindAuthorization, "caller is not allowed to perform this operation")

	ErrInsufficientFunds = newError("InsufficientFunds", KindFunds, "insufficient funds")

	ErrBattleNotFound   = newError("BattleNotFound", KindNotFound, "battle not found")
	ErrPositionNotFound = newError("PositionNotFound", KindNotFound, "stake position not found")
	ErrProtocolNotFound = newError("ProtocolNotFound", KindNotFound, "protocol not initialized")

	ErrYieldUnavailable = newError("YieldUnavailable", KindExternal, "yield backend unavailable")
)

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns KindInternal for errors that are not named failures.
func KindOf(err error) Kind {
	if e := asError(err); e != nil {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	if e := asError(err); e != nil {
		return e.Code
	}
	return "Internal"
}

// Retryable reports whether the same call may succeed later without any
// change from the caller.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindState, KindOracle, KindExternal:
		return true
	default:
		return false
	}
}
