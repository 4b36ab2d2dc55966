// Package numeric converts raw on-chain integer amounts into human decimal amounts and back.
//
// Raw amounts are carried as uint64 end to end. The float64 values returned by ToDecimal
// are exact only while the raw amount stays below 2^53; larger amounts keep their
// magnitude but lose low-order digits. Callers needing exact arithmetic use Decimal.
package numeric

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the widest scale the codec accepts; wider scales are clamped.
const MaxDecimals = 9

func clampDecimals(decimals int) int32 {
	if decimals < 0 {
		return 0
	}
	if decimals > MaxDecimals {
		return MaxDecimals
	}
	return int32(decimals)
}

// Decimal returns raw / 10^decimals as an exact decimal.
func Decimal(raw uint64, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -clampDecimals(decimals))
}

// ToDecimal returns raw / 10^decimals.
func ToDecimal(raw uint64, decimals int) float64 {
	return Decimal(raw, decimals).InexactFloat64()
}

// ToRaw returns floor(value * 10^decimals). Negative, NaN and infinite inputs yield 0,
// and values beyond the uint64 range saturate.
func ToRaw(value float64, decimals int) uint64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0
	}
	return RawFromDecimal(decimal.NewFromFloat(value), decimals)
}

// RawFromDecimal is ToRaw for an exact decimal input.
func RawFromDecimal(value decimal.Decimal, decimals int) uint64 {
	if !value.IsPositive() {
		return 0
	}
	return saturate(value.Shift(clampDecimals(decimals)).Floor())
}

func saturate(d decimal.Decimal) uint64 {
	bi := d.BigInt()
	if !bi.IsUint64() {
		return math.MaxUint64
	}
	return bi.Uint64()
}

// Float converts a decimal to float64, mapping non-finite results to 0.
func Float(d decimal.Decimal) float64 {
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Div returns num/den, or zero when den is zero.
func Div(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// SafeFloat maps NaN and infinities to 0.
func SafeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Round returns f rounded half away from zero, with non-finite inputs mapped to 0.
func Round(f float64) int64 {
	f = SafeFloat(f)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(math.Round(f))
}

// Format renders value with a fixed number of fractional digits, truncating toward zero.
func Format(value decimal.Decimal, places int) string {
	if places < 0 {
		places = 0
	}
	return value.Truncate(int32(places)).StringFixed(int32(places))
}

// Parse converts a decimal string. On failure it returns (zero, false).
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
