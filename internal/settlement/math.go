package settlement

import (
	"math"

	"github.com/holiman/uint256"

	"memewars/internal/battle"
)

// MulDiv returns a*b/c truncated, computed in 256 bits. It fails with
// ErrOverflow when c is zero or the quotient does not fit in 64 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, battle.ErrOverflow
	}
	x := new(uint256.Int).SetUint64(a)
	x.Mul(x, new(uint256.Int).SetUint64(b))
	x.Div(x, new(uint256.Int).SetUint64(c))
	if !x.IsUint64() {
		return 0, battle.ErrOverflow
	}
	return x.Uint64(), nil
}

// mulDivSum returns a*b/(c+d) with the sum taken in 256 bits.
func mulDivSum(a, b, c, d uint64) (uint64, error) {
	den := new(uint256.Int).SetUint64(c)
	den.Add(den, new(uint256.Int).SetUint64(d))
	if den.IsZero() {
		return 0, battle.ErrOverflow
	}
	x := new(uint256.Int).SetUint64(a)
	x.Mul(x, new(uint256.Int).SetUint64(b))
	x.Div(x, den)
	if !x.IsUint64() {
		return 0, battle.ErrOverflow
	}
	return x.Uint64(), nil
}

func AddU64(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, battle.ErrOverflow
	}
	return s, nil
}

func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, battle.ErrOverflow
	}
	return a - b, nil
}

func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func subI64(a, b int64) (int64, error) {
	c := a - b
	if (c < a) != (b > 0) {
		return 0, battle.ErrOverflow
	}
	return c, nil
}

func mulI64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if (c < 0) != ((a < 0) != (b < 0)) || c/b != a {
		return 0, battle.ErrOverflow
	}
	return c, nil
}

func divI64(a, b int64) (int64, error) {
	if b == 0 || (a == math.MinInt64 && b == -1) {
		return 0, battle.ErrOverflow
	}
	return a / b, nil
}
