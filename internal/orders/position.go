package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/internal/numeric"
	"github.com/coachpo/orderlens/internal/tokens"
)

type cycles struct {
	total, completed, remaining uint64
}

func cycleCounts(acc accounts.Recurring, flash, recurring bool) cycles {
	switch {
	case recurring:
		if acc.InAmountPerCycle == 0 {
			return cycles{}
		}
		total := acc.InDeposited / acc.InAmountPerCycle
		completed := acc.InUsed / acc.InAmountPerCycle
		if completed > total {
			completed = total
		}
		return cycles{total: total, completed: completed, remaining: total - completed}
	case flash:
		return cycles{total: 1, completed: 1}
	default:
		return cycles{total: 1}
	}
}

type priceBounds struct {
	min, max       decimal.Decimal
	minEst, maxEst decimal.Decimal
}

// buyBounds prices in input per output token. minOut caps the price paid, maxOut floors it.
func buyBounds(remaining, perCycle, minOut, maxOut, market decimal.Decimal) priceBounds {
	b := priceBounds{min: market, max: market}
	if perCycle.IsPositive() && minOut.IsPositive() {
		b.max = perCycle.Div(minOut)
	}
	if perCycle.IsPositive() && maxOut.IsPositive() {
		b.min = perCycle.Div(maxOut)
	}
	b.minEst = numeric.Div(remaining, b.max)
	b.maxEst = numeric.Div(remaining, b.min)
	return b
}

// sellBounds prices in output per input token.
func sellBounds(remaining, perCycle, minOut, maxOut, market decimal.Decimal) priceBounds {
	b := priceBounds{min: market}
	if perCycle.IsPositive() && minOut.IsPositive() {
		b.min = minOut.Div(perCycle)
	}
	b.max = b.min
	if perCycle.IsPositive() && maxOut.IsPositive() {
		b.max = maxOut.Div(perCycle)
	}
	b.minEst = remaining.Mul(b.min)
	b.maxEst = remaining.Mul(b.max)
	return b
}

// BuildPosition derives a Position from a decoded DCA account. marketPrice is the tracked
// token's price in the counter token (input per output for buys, output per input for
// sells); zero means unknown and yields zero estimates when no limits are set.
func BuildPosition(acc accounts.Recurring, side Side, marketPrice float64, reg *tokens.Registry) Position {
	in := reg.ByKey(acc.InputMint)
	out := reg.ByKey(acc.OutputMint)

	flash := acc.InUsed == acc.InDeposited && acc.InDeposited > 0
	recurring := !flash && acc.InDeposited > 0
	c := cycleCounts(acc, flash, recurring)

	var remainingRaw uint64
	if acc.InDeposited > acc.InUsed {
		remainingRaw = acc.InDeposited - acc.InUsed
	}
	remaining := numeric.Decimal(remainingRaw, in.Decimals)
	perCycle := numeric.Decimal(acc.InAmountPerCycle, in.Decimals)
	minOut := numeric.Decimal(acc.MinOutAmount, out.Decimals)
	maxOut := numeric.Decimal(acc.MaxOutAmount, out.Decimals)

	market := decimal.Zero
	if p := numeric.SafeFloat(marketPrice); p > 0 {
		market = decimal.NewFromFloat(p)
	}

	var bounds priceBounds
	if side == SideBuy {
		bounds = buyBounds(remaining, perCycle, minOut, maxOut, market)
	} else {
		bounds = sellBounds(remaining, perCycle, minOut, maxOut, market)
	}

	tracked := in
	if side == SideBuy {
		tracked = out
	}

	pos := Position{
		ID:                 acc.Pubkey.String(),
		Owner:              acc.User.String(),
		Side:               side,
		Token:              tracked.Symbol,
		InputToken:         refOf(in),
		OutputToken:        refOf(out),
		PriceToken:         in.Symbol + "/" + out.Symbol,
		AmountPerCycle:     numeric.Float(perCycle),
		TotalAmount:        numeric.ToDecimal(acc.InDeposited, in.Decimals),
		UsedAmount:         numeric.ToDecimal(acc.InUsed, in.Decimals),
		RemainingAmount:    numeric.Float(remaining),
		OutReceived:        numeric.ToDecimal(acc.OutReceived, out.Decimals),
		TotalCycles:        c.total,
		CompletedCycles:    c.completed,
		RemainingCycles:    c.remaining,
		IsActive:           recurring && c.remaining > 0,
		IsFlashFill:        flash,
		MinExecutionPrice:  numeric.Float(bounds.min),
		MaxExecutionPrice:  numeric.Float(bounds.max),
		EstimatedOutput:    numeric.Float(bounds.minEst),
		MinEstimatedOutput: numeric.Float(bounds.minEst),
		MaxEstimatedOutput: numeric.Float(bounds.maxEst),
		CurrentPrice:       numeric.Float(market),
		CreatedAtMs:        unixMilli(acc.CreatedAt),
		LastUpdateMs:       unixMilli(acc.CreatedAt),
	}
	if recurring {
		pos.CycleFrequencySeconds = acc.CycleFrequency
		pos.NextCycleAtMs = unixMilli(acc.NextCycleAt)
	}
	return pos
}

func unixMilli(sec int64) int64 {
	if sec <= 0 {
		return 0
	}
	return time.Unix(sec, 0).UnixMilli()
}
