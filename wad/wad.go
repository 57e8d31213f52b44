package wad

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Decimals is the fixed-point precision shared with the on-chain contracts.
const Decimals = 18

// SecondsPerYear is the compounding horizon used when annualising
// per-second interest rates.
const SecondsPerYear = 365 * 24 * 60 * 60

// ErrInvalidAmount marks input that cannot be interpreted as a positive
// token quantity. It never leaves the process; callers surface it as a
// local validation failure.
var ErrInvalidAmount = errors.New("wad: invalid amount")

// Scale is the WAD base, 1e18. Treat as read-only.
var Scale = mustBigInt("1000000000000000000")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Parse converts a base-10 decimal string into a WAD-scaled integer. The
// conversion is pure integer arithmetic so values that overflow float64
// still round-trip exactly. Fractional digits beyond the 18th are
// truncated, matching the contract's own precision.
func Parse(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, value)
	}
	trimmed = strings.TrimPrefix(trimmed, "+")

	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, fmt.Errorf("%w: malformed decimal %q", ErrInvalidAmount, value)
		}
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: malformed decimal %q", ErrInvalidAmount, value)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: non-numeric input %q", ErrInvalidAmount, value)
	}
	if len(frac) > Decimals {
		frac = frac[:Decimals]
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: non-numeric input %q", ErrInvalidAmount, value)
	}
	return result, nil
}

// Format renders a WAD integer as a decimal string without losing
// precision. Trailing fractional zeros are trimmed; whole values render
// without a decimal point.
func Format(value *big.Int) string {
	if value == nil || value.Sign() == 0 {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(value)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, Scale, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	digits := fmt.Sprintf("%018s", frac.String())
	digits = strings.TrimRight(digits, "0")
	return sign + whole.String() + "." + digits
}

// IsValidAmount reports whether the string parses to a finite, strictly
// positive decimal. This is the fast validation path for form input; it
// deliberately uses float parsing and is independent of Parse, which must
// still handle magnitudes beyond float64 exactly.
func IsValidAmount(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return false
	}
	return num > 0 && !math.IsNaN(num) && !math.IsInf(num, 0)
}

// FormatPercent renders a WAD fraction (Scale == 100%) as a two-decimal
// percentage string.
func FormatPercent(value *big.Int) string {
	if value == nil {
		return "0.00%"
	}
	// value * 10_000 / Scale keeps two decimal places in integer math.
	scaled := new(big.Int).Mul(value, big.NewInt(10_000))
	scaled.Quo(scaled, Scale)
	sign := ""
	if scaled.Sign() < 0 {
		sign = "-"
		scaled.Neg(scaled)
	}
	whole, cents := new(big.Int).QuoRem(scaled, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s%s.%02d%%", sign, whole.String(), cents.Int64())
}

// RatePerSecondToAPY compounds a WAD per-second rate over a year and
// returns the annual percentage yield. Floating point is acceptable here:
// the result feeds displays only, never on-chain amounts.
func RatePerSecondToAPY(ratePerSecond *big.Int) float64 {
	if ratePerSecond == nil || ratePerSecond.Sign() <= 0 {
		return 0
	}
	rate, _ := new(big.Rat).SetFrac(ratePerSecond, Scale).Float64()
	return (math.Pow(1+rate, SecondsPerYear) - 1) * 100
}

// TruncateAddress shortens a hex address for display, 0x1234...abcd.
func TruncateAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
