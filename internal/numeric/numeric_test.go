package numeric

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	require.Equal(t, 1.5, ToDecimal(1_500_000, 6))
	require.Equal(t, 0.00001, ToDecimal(1, 5))
	require.Equal(t, 2.0, ToDecimal(2_000_000_000, 9))
	require.Equal(t, 42.0, ToDecimal(42, 0))
	require.Equal(t, 0.0, ToDecimal(0, 6))
}

func TestToRawFloors(t *testing.T) {
	require.Equal(t, uint64(1_500_000), ToRaw(1.5, 6))
	require.Equal(t, uint64(1), ToRaw(0.0000019, 6))
	require.Equal(t, uint64(0), ToRaw(-3, 6))
	require.Equal(t, uint64(0), ToRaw(math.NaN(), 6))
	require.Equal(t, uint64(0), ToRaw(math.Inf(1), 6))
	require.Equal(t, uint64(math.MaxUint64), ToRaw(1e30, 9))
}

func TestRoundTripAcrossObservedScales(t *testing.T) {
	raws := []uint64{0, 1, 7, 999, 1_000_000, 123_456_789, 999_999_999_999_999}
	for _, d := range []int{0, 5, 6, 9} {
		for _, r := range raws {
			require.Equal(t, r, ToRaw(ToDecimal(r, d), d), "raw=%d decimals=%d", r, d)
			require.Equal(t, r, RawFromDecimal(Decimal(r, d), d), "raw=%d decimals=%d", r, d)
		}
	}
}

func TestDecimalsAreClamped(t *testing.T) {
	require.Equal(t, ToDecimal(5, 0), ToDecimal(5, -2))
	require.Equal(t, ToDecimal(5, MaxDecimals), ToDecimal(5, 18))
}

func TestDivAndSafeHelpers(t *testing.T) {
	require.True(t, Div(decimal.NewFromInt(1), decimal.Zero).IsZero())
	require.Equal(t, "2", Div(decimal.NewFromInt(10), decimal.NewFromInt(5)).String())
	require.Equal(t, 0.0, SafeFloat(math.NaN()))
	require.Equal(t, 0.0, SafeFloat(math.Inf(-1)))
	require.Equal(t, int64(0), Round(math.NaN()))
	require.Equal(t, int64(3), Round(2.5))
	require.Equal(t, int64(-3), Round(-2.5))
}

func TestFormatAndParse(t *testing.T) {
	d, ok := Parse(" 12.345678 ")
	require.True(t, ok)
	require.Equal(t, "12.3456", Format(d, 4))
	require.Equal(t, "12", Format(d, 0))
	require.Equal(t, "-0.50", Format(decimal.RequireFromString("-0.509"), 2))

	_, ok = Parse("abc")
	require.False(t, ok)
	_, ok = Parse("")
	require.False(t, ok)
}
